/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/friendsincode/framewall/internal/models"
	"github.com/friendsincode/framewall/internal/telemetry"
)

// pollTTL evicts a polling display that stops calling in. Poll clients
// call every few seconds; well under this.
const pollTTL = 90 * time.Second

// pollQueueCap bounds the per-display backlog; the oldest directive is
// dropped first, and a dropped prepare is recovered by the refresh the
// display performs on reconnect.
const pollQueueCap = 256

// pollSession is the HTTP long-poll fallback for a display that cannot
// hold a WebSocket. Outbound directives accumulate in a queue drained by
// each poll call.
type pollSession struct {
	id    string
	slotA *remoteSlot
	slotB *remoteSlot

	mu       sync.Mutex
	queue    []Message
	lastPoll time.Time
}

func (p *pollSession) enqueue(msg Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.queue) >= pollQueueCap {
		p.queue = p.queue[1:]
	}
	p.queue = append(p.queue, msg)
}

func (p *pollSession) drain() []Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastPoll = time.Now()
	out := p.queue
	p.queue = nil
	return out
}

func (p *pollSession) stale() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return time.Since(p.lastPoll) > pollTTL
}

// Poll registers the display on first call and returns every directive
// queued since the previous call. ack carries frame types the display
// reports inbound (heartbeat, slot_ready, video_ended), mirroring what a
// WebSocket display would send.
func (h *Hub) Poll(ctx context.Context, displayID, displayName string, ack []Message) ([]Message, error) {
	h.mu.Lock()
	ps, ok := h.polls[displayID]
	_, hasWS := h.displays[displayID]
	h.mu.Unlock()

	if hasWS {
		// A live websocket owns this display; polling returns nothing.
		return nil, nil
	}

	if !ok {
		if _, err := h.store.UpsertDisplay(ctx, displayID, displayName); err != nil {
			return nil, err
		}
		ps = &pollSession{id: displayID, lastPoll: time.Now()}
		ps.slotA = newRemoteSlot(models.SlotA, ps.enqueue)
		ps.slotB = newRemoteSlot(models.SlotB, ps.enqueue)

		h.mu.Lock()
		h.polls[displayID] = ps
		h.mu.Unlock()

		h.manager.Attach(displayID, ps.slotA, ps.slotB)
		telemetry.RealtimeClients.WithLabelValues("poll").Inc()
		h.logger.Info().Str("display", displayID).Msg("display polling session started")
	}

	seq, attached := h.manager.Get(displayID)
	for _, msg := range ack {
		switch msg.Type {
		case TypeHeartbeat:
			if err := h.store.TouchDisplay(ctx, displayID); err != nil {
				h.logger.Debug().Err(err).Str("display", displayID).Msg("touch failed")
			}
		case TypeSlotReady:
			if !attached {
				continue
			}
			switch models.BufferSlot(msg.Slot) {
			case models.SlotA:
				ps.slotA.markReady()
				seq.NotifySlotReady(models.SlotA)
			case models.SlotB:
				ps.slotB.markReady()
				seq.NotifySlotReady(models.SlotB)
			}
		case TypeVideoEnded:
			if attached {
				seq.NotifyVideoEnded()
			}
		}
	}

	return ps.drain(), nil
}

func (h *Hub) dropPoll(displayID string) {
	h.mu.Lock()
	_, ok := h.polls[displayID]
	delete(h.polls, displayID)
	h.mu.Unlock()
	if ok {
		telemetry.RealtimeClients.WithLabelValues("poll").Dec()
	}
}

func (h *Hub) expirePolls() {
	h.mu.Lock()
	expired := make([]string, 0)
	for id, ps := range h.polls {
		if ps.stale() {
			expired = append(expired, id)
			delete(h.polls, id)
		}
	}
	h.mu.Unlock()

	for _, id := range expired {
		h.manager.Detach(id)
		telemetry.RealtimeClients.WithLabelValues("poll").Dec()
		h.logger.Info().Str("display", id).Msg("polling session expired")
	}
}
