/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package sequencer

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/framewall/internal/events"
	"github.com/friendsincode/framewall/internal/models"
	"github.com/friendsincode/framewall/internal/playlist"
	"github.com/friendsincode/framewall/internal/registry"
	"github.com/friendsincode/framewall/internal/telemetry"
)

// TransitionGrace bounds how long a video handoff waits for the incoming
// buffer to report ready before being forced through.
const TransitionGrace = 2 * time.Second

// RenderSlot is one of the two alternating buffers on a display surface.
// Content is prepared in the hidden slot and revealed only once ready, so
// the outgoing frame never drops before the incoming one can paint.
type RenderSlot interface {
	Prepare(item models.ContentItem, duration time.Duration)
	IsReadyToRender() bool
	Reveal()
	Conceal()
}

// Source provides the registry state a sequencer resolves against.
type Source interface {
	Snapshot(ctx context.Context) (registry.Snapshot, error)
}

type eventKind int

const (
	evTimerFired eventKind = iota
	evGraceFired
	evRefresh
	evSkip
	evStop
	evPower
	evSlotReady
	evVideoEnded
)

type event struct {
	kind    eventKind
	gen     uint64
	trigger string
	step    int
	on      bool
	slot    models.BufferSlot
}

// Sequencer drives playback for a single display. All state lives on the
// event loop goroutine; external callers post events and never touch it
// directly. At most one advance timer is armed at any moment.
type Sequencer struct {
	displayID string
	source    Source
	bus       *events.Bus
	logger    zerolog.Logger
	slots     map[models.BufferSlot]RenderSlot

	events chan event

	// Loop-owned state.
	state    models.RuntimeState
	showing  bool
	stopped  bool
	entries  []models.DisplayEntry
	items    map[string]models.ContentItem
	settings models.Settings
	loc      *time.Location

	timer    *time.Timer
	gen      uint64
	grace    *time.Timer
	graceGen uint64
	pending  int
	pendKind string

	published publishedState
}

// New creates a sequencer for one display. slotA and slotB are the two
// render buffers the display exposes.
func New(displayID string, source Source, bus *events.Bus, slotA, slotB RenderSlot, logger zerolog.Logger) *Sequencer {
	return &Sequencer{
		displayID: displayID,
		source:    source,
		bus:       bus,
		logger:    logger.With().Str("display", displayID).Logger(),
		slots: map[models.BufferSlot]RenderSlot{
			models.SlotA: slotA,
			models.SlotB: slotB,
		},
		events: make(chan event, 32),
		items:  make(map[string]models.ContentItem),
		state: models.RuntimeState{
			ActiveSlot: models.SlotA,
		},
	}
}

// Refresh asks the loop to re-resolve the playlist. trigger labels the
// resolution metric (tick, mutation, refresh).
func (s *Sequencer) Refresh(trigger string) {
	s.post(event{kind: evRefresh, trigger: trigger})
}

// SkipNext advances to the next playlist entry immediately.
func (s *Sequencer) SkipNext() { s.post(event{kind: evSkip, step: 1}) }

// SkipPrev steps back to the previous playlist entry.
func (s *Sequencer) SkipPrev() { s.post(event{kind: evSkip, step: -1}) }

// Stop blanks the display without powering it off.
func (s *Sequencer) Stop() { s.post(event{kind: evStop}) }

// SetPower turns playback on or off. Off cancels the advance timer and
// conceals both slots; on restarts the current entry from the beginning.
func (s *Sequencer) SetPower(on bool) { s.post(event{kind: evPower, on: on}) }

// NotifySlotReady reports that a buffer finished loading its content.
func (s *Sequencer) NotifySlotReady(slot models.BufferSlot) {
	s.post(event{kind: evSlotReady, slot: slot})
}

// NotifyVideoEnded reports natural end of the active video, advancing
// ahead of the padded timer.
func (s *Sequencer) NotifyVideoEnded() { s.post(event{kind: evVideoEnded}) }

// State returns a copy of the current playback state.
func (s *Sequencer) State() models.RuntimeState {
	return s.published.load()
}

func (s *Sequencer) post(ev event) {
	select {
	case s.events <- ev:
	default:
		s.logger.Warn().Int("kind", int(ev.kind)).Msg("sequencer event dropped, queue full")
	}
}

// Run executes the sequencer loop until context cancellation.
func (s *Sequencer) Run(ctx context.Context) error {
	s.logger.Info().Msg("sequencer started")

	if err := s.refresh(ctx, "startup"); err != nil {
		s.logger.Error().Err(err).Msg("initial resolution failed")
	}
	s.state.Orientation = s.settings.Orientation
	s.state.Brightness = s.settings.Brightness
	if s.settings.AutoStart && !s.state.HasAutoStarted {
		s.state.HasAutoStarted = true
		s.state.PoweredOn = true
		s.show(0, "autostart")
	}
	s.publishState()

	for {
		select {
		case <-ctx.Done():
			s.disarm()
			s.disarmGrace()
			s.logger.Info().Msg("sequencer stopped")
			return ctx.Err()
		case ev := <-s.events:
			s.handle(ctx, ev)
		}
	}
}

func (s *Sequencer) handle(ctx context.Context, ev event) {
	switch ev.kind {
	case evTimerFired:
		if ev.gen != s.gen {
			return
		}
		telemetry.TimersLive.WithLabelValues(s.displayID).Set(0)
		s.timer = nil
		s.advance(1, "timer")
	case evGraceFired:
		if ev.gen != s.graceGen {
			return
		}
		s.grace = nil
		telemetry.TransitionStalls.Inc()
		s.logger.Warn().Int("index", s.pending).Msg("incoming slot never reported ready, forcing transition")
		s.completeTransition()
	case evRefresh:
		if err := s.refresh(ctx, ev.trigger); err != nil {
			s.logger.Error().Err(err).Str("trigger", ev.trigger).Msg("resolution failed")
		}
	case evSkip:
		if !s.state.PoweredOn || !s.showing {
			return
		}
		s.advance(ev.step, "skip")
	case evStop:
		s.halt()
		s.stopped = true
		s.publishState()
	case evPower:
		s.setPower(ev.on)
		s.publishState()
	case evSlotReady:
		if s.grace == nil {
			return
		}
		if ev.slot != s.incomingSlot() {
			return
		}
		s.disarmGrace()
		s.completeTransition()
	case evVideoEnded:
		if !s.state.PoweredOn || !s.showing {
			return
		}
		s.advance(1, "ended")
	}
}

// refresh re-resolves the playlist from the registry and repairs the
// active index if the entry under it moved or vanished.
func (s *Sequencer) refresh(ctx context.Context, trigger string) error {
	start := time.Now()
	snap, err := s.source.Snapshot(ctx)
	if err != nil {
		return err
	}
	telemetry.ResolveDuration.Observe(time.Since(start).Seconds())
	telemetry.ResolutionsTotal.WithLabelValues(trigger).Inc()

	s.settings = snap.Settings
	s.loc = snap.Location()
	s.state.Orientation = s.settings.Orientation
	s.state.Brightness = s.settings.Brightness
	s.items = make(map[string]models.ContentItem, len(snap.Items))
	for _, item := range snap.Items {
		s.items[item.ID] = item
	}

	var currentContent string
	if s.showing && s.state.ActiveIndex < len(s.entries) {
		currentContent = s.entries[s.state.ActiveIndex].ContentItemID
	}
	var pendingContent string
	if s.grace != nil && s.pending < len(s.entries) {
		pendingContent = s.entries[s.pending].ContentItemID
	}

	s.entries = playlist.Resolve(time.Now(), snap.Items, snap.Rules, s.loc)

	if !s.showing {
		if s.state.PoweredOn && !s.stopped && len(s.entries) > 0 {
			// The display went idle on an empty playlist; content is back.
			s.show(0, trigger)
			return nil
		}
		// A first frame may still be buffering; its grace timer must not
		// fire into the new list.
		s.disarmGrace()
		s.publishState()
		return nil
	}
	if len(s.entries) == 0 {
		s.idle()
		return nil
	}
	if s.grace != nil {
		// A handoff is mid-flight against the old list. Restart it so the
		// grace timer and pending index cannot land on stale entries.
		s.disarmGrace()
		if pendingContent != "" {
			for i, entry := range s.entries {
				if entry.ContentItemID == pendingContent {
					s.show(i, s.pendKind)
					return nil
				}
			}
		}
		s.show(0, "stale_reset")
		return nil
	}
	if currentContent != "" {
		for i, entry := range s.entries {
			if entry.ContentItemID == currentContent {
				// Same content survived; follow it to its new position
				// without restarting the frame or the timer.
				s.state.ActiveIndex = i
				s.publishState()
				return nil
			}
		}
	}
	// The entry on screen no longer exists in the playlist.
	s.logger.Info().Str("content", currentContent).Msg("active entry removed, resetting to start")
	s.show(0, "stale_reset")
	return nil
}

// advance moves step entries through the playlist, wrapping at both ends.
func (s *Sequencer) advance(step int, kind string) {
	if len(s.entries) == 0 {
		s.idle()
		return
	}
	next := (s.state.ActiveIndex + step) % len(s.entries)
	if next < 0 {
		next += len(s.entries)
	}
	s.show(next, kind)
}

// show begins the transition to the playlist entry at index. Videos wait,
// bounded by TransitionGrace, for the hidden slot to buffer before the
// swap; everything else swaps immediately.
func (s *Sequencer) show(index int, kind string) {
	s.disarm()
	s.disarmGrace()

	if len(s.entries) == 0 {
		s.idle()
		return
	}
	if index >= len(s.entries) {
		index = 0
	}
	entry := s.entries[index]
	item, ok := s.items[entry.ContentItemID]
	if !ok {
		s.logger.Warn().Str("content", entry.ContentItemID).Msg("playlist entry references unknown content")
		s.idle()
		return
	}

	s.pending = index
	s.pendKind = kind
	incoming := s.slots[s.incomingSlot()]
	incoming.Prepare(item, playlist.Duration(entry, item, s.settings))

	if item.MediaClass == models.MediaVideo && !incoming.IsReadyToRender() {
		s.armGrace()
		return
	}
	s.completeTransition()
}

// completeTransition reveals the prepared slot, conceals the outgoing one
// and arms the advance timer for the new entry.
func (s *Sequencer) completeTransition() {
	index := s.pending
	if index >= len(s.entries) {
		// The playlist shrank under a pending handoff.
		if len(s.entries) == 0 {
			s.idle()
			return
		}
		index = 0
	}
	entry := s.entries[index]
	item := s.items[entry.ContentItemID]

	incoming := s.incomingSlot()
	s.slots[incoming].Reveal()
	s.slots[s.state.ActiveSlot].Conceal()
	s.state.ActiveSlot = incoming
	s.state.ActiveIndex = index
	s.showing = true

	telemetry.TransitionsTotal.WithLabelValues(s.pendKind).Inc()

	duration := playlist.Duration(entry, item, s.settings)
	s.arm(duration)

	s.bus.Publish(events.EventNowShowing, events.Payload{
		"display_id":       s.displayID,
		"index":            index,
		"content_item_id":  item.ID,
		"name":             item.Name,
		"media_class":      string(item.MediaClass),
		"duration_seconds": duration.Seconds(),
		"slot":             string(incoming),
		"transition":       s.pendKind,
	})
	s.publishState()
}

// arm starts the single advance timer. Any previously armed timer has
// already been disarmed by show; the generation guard makes a late fire
// from a stopped timer harmless.
func (s *Sequencer) arm(d time.Duration) {
	s.gen++
	gen := s.gen
	s.timer = time.AfterFunc(d, func() {
		s.post(event{kind: evTimerFired, gen: gen})
	})
	telemetry.TimersArmed.WithLabelValues(s.displayID).Inc()
	telemetry.TimersLive.WithLabelValues(s.displayID).Set(1)
}

func (s *Sequencer) disarm() {
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
		telemetry.TimersCancelled.WithLabelValues(s.displayID).Inc()
		telemetry.TimersLive.WithLabelValues(s.displayID).Set(0)
	}
}

func (s *Sequencer) armGrace() {
	s.graceGen++
	gen := s.graceGen
	s.grace = time.AfterFunc(TransitionGrace, func() {
		s.post(event{kind: evGraceFired, gen: gen})
	})
}

func (s *Sequencer) disarmGrace() {
	s.graceGen++
	if s.grace != nil {
		s.grace.Stop()
		s.grace = nil
	}
}

func (s *Sequencer) incomingSlot() models.BufferSlot {
	if s.state.ActiveSlot == models.SlotA {
		return models.SlotB
	}
	return models.SlotA
}

func (s *Sequencer) idle() {
	wasShowing := s.showing
	s.halt()
	if wasShowing {
		s.logger.Info().Msg("playlist empty, display idle")
	}
	s.bus.Publish(events.EventPlaybackIdle, events.Payload{
		"display_id": s.displayID,
	})
	s.publishState()
}

// halt stops playback without changing power state.
func (s *Sequencer) halt() {
	s.disarm()
	s.disarmGrace()
	for _, slot := range s.slots {
		slot.Conceal()
	}
	s.showing = false
}

func (s *Sequencer) setPower(on bool) {
	if on == s.state.PoweredOn {
		return
	}
	if !on {
		s.halt()
		s.state.PoweredOn = false
		return
	}
	s.state.PoweredOn = true
	s.stopped = false
	s.show(s.state.ActiveIndex, "power")
}

func (s *Sequencer) publishState() {
	s.published.store(s.state)
	s.bus.Publish(events.EventStateChanged, events.Payload{
		"display_id":   s.displayID,
		"active_index": s.state.ActiveIndex,
		"powered_on":   s.state.PoweredOn,
		"active_slot":  string(s.state.ActiveSlot),
		"showing":      s.showing,
	})
}
