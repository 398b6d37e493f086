/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package sequencer

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/framewall/internal/events"
	"github.com/friendsincode/framewall/internal/models"
)

// Manager tracks one sequencer per connected display, fans registry
// mutations out to them, and drives the periodic re-resolution tick that
// keeps clock windows current.
type Manager struct {
	source   Source
	bus      *events.Bus
	interval time.Duration
	logger   zerolog.Logger

	mu         sync.Mutex
	sequencers map[string]*Sequencer
	cancels    map[string]context.CancelFunc
	runCtx     context.Context
}

// NewManager creates a sequencer manager. interval is the re-resolution
// period; clock-window boundaries are only ever late by at most one tick.
func NewManager(source Source, bus *events.Bus, interval time.Duration, logger zerolog.Logger) *Manager {
	return &Manager{
		source:     source,
		bus:        bus,
		interval:   interval,
		logger:     logger,
		sequencers: make(map[string]*Sequencer),
		cancels:    make(map[string]context.CancelFunc),
	}
}

// Attach creates and starts a sequencer for a display session. Attaching
// an already attached display replaces its sequencer; the display
// reloaded, so its runtime state starts over.
func (m *Manager) Attach(displayID string, slotA, slotB RenderSlot) *Sequencer {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cancel, ok := m.cancels[displayID]; ok {
		cancel()
	}

	seq := New(displayID, m.source, m.bus, slotA, slotB, m.logger)
	parent := m.runCtx
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	m.sequencers[displayID] = seq
	m.cancels[displayID] = cancel

	go func() {
		if err := seq.Run(ctx); err != nil && err != context.Canceled {
			m.logger.Error().Err(err).Str("display", displayID).Msg("sequencer exited")
		}
	}()

	m.bus.Publish(events.EventDisplayOnline, events.Payload{"display_id": displayID})
	return seq
}

// Detach stops and removes a display's sequencer.
func (m *Manager) Detach(displayID string) {
	m.mu.Lock()
	cancel, ok := m.cancels[displayID]
	delete(m.cancels, displayID)
	delete(m.sequencers, displayID)
	m.mu.Unlock()

	if ok {
		cancel()
		m.bus.Publish(events.EventDisplayOffline, events.Payload{"display_id": displayID})
	}
}

// Get returns the sequencer for a display, if attached.
func (m *Manager) Get(displayID string) (*Sequencer, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seq, ok := m.sequencers[displayID]
	return seq, ok
}

// Each calls fn for every attached sequencer.
func (m *Manager) Each(fn func(displayID string, seq *Sequencer)) {
	m.mu.Lock()
	sequencers := make(map[string]*Sequencer, len(m.sequencers))
	for id, seq := range m.sequencers {
		sequencers[id] = seq
	}
	m.mu.Unlock()

	for id, seq := range sequencers {
		fn(id, seq)
	}
}

// States returns the runtime state of every attached display.
func (m *Manager) States() map[string]models.RuntimeState {
	states := make(map[string]models.RuntimeState)
	m.Each(func(id string, seq *Sequencer) {
		states[id] = seq.State()
	})
	return states
}

// Run fans registry mutations out to attached sequencers and drives the
// re-resolution ticker until context cancellation.
func (m *Manager) Run(ctx context.Context) error {
	m.mu.Lock()
	m.runCtx = ctx
	m.mu.Unlock()

	m.logger.Info().Dur("interval", m.interval).Msg("sequencer manager started")

	mutations := []events.EventType{
		events.EventContentCreated,
		events.EventContentDeleted,
		events.EventScheduleCreated,
		events.EventScheduleDeleted,
		events.EventSettingsUpdated,
	}
	subs := make([]events.Subscriber, 0, len(mutations))
	for _, eventType := range mutations {
		subs = append(subs, m.bus.Subscribe(eventType))
	}
	defer func() {
		for i, eventType := range mutations {
			m.bus.Unsubscribe(eventType, subs[i])
		}
	}()

	merged := make(chan struct{}, 1)
	for _, sub := range subs {
		go func(sub events.Subscriber) {
			for range sub {
				select {
				case merged <- struct{}{}:
				default:
				}
			}
		}(sub)
	}

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.detachAll()
			m.logger.Info().Msg("sequencer manager stopped")
			return ctx.Err()
		case <-ticker.C:
			m.refreshAll("tick")
		case <-merged:
			m.refreshAll("mutation")
		}
	}
}

func (m *Manager) refreshAll(trigger string) {
	m.Each(func(id string, seq *Sequencer) {
		seq.Refresh(trigger)
	})
}

func (m *Manager) detachAll() {
	m.mu.Lock()
	cancels := m.cancels
	m.cancels = make(map[string]context.CancelFunc)
	m.sequencers = make(map[string]*Sequencer)
	m.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
}

// Shutdown detaches every display outside of Run.
func (m *Manager) Shutdown() error {
	m.detachAll()
	return nil
}
