/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	ws "nhooyr.io/websocket"

	"github.com/friendsincode/framewall/internal/command"
	"github.com/friendsincode/framewall/internal/events"
	"github.com/friendsincode/framewall/internal/models"
	"github.com/friendsincode/framewall/internal/registry"
	"github.com/friendsincode/framewall/internal/sequencer"
	"github.com/friendsincode/framewall/internal/telemetry"
)

// heartbeatTimeout closes a display connection that stops sending
// heartbeats; the player sends one every 30 seconds.
const heartbeatTimeout = 90 * time.Second

type session struct {
	id   string
	kind string
	send chan Message

	mu       sync.Mutex
	lastSeen time.Time
}

func (s *session) enqueue(msg Message) {
	select {
	case s.send <- msg:
	default:
	}
}

func (s *session) touch() {
	s.mu.Lock()
	s.lastSeen = time.Now()
	s.mu.Unlock()
}

func (s *session) stale(timeout time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.lastSeen) > timeout
}

// Hub owns every realtime client: display players over WebSocket, admin
// consoles over WebSocket, and displays degraded to HTTP polling. It
// relays bus events outward and routes inbound frames to the sequencer
// and the command interpreter.
type Hub struct {
	store    *registry.Store
	manager  *sequencer.Manager
	commands *command.Interpreter
	bus      *events.Bus
	logger   zerolog.Logger

	mu       sync.Mutex
	displays map[string]*session
	consoles map[*session]struct{}
	polls    map[string]*pollSession
}

// NewHub creates the realtime hub.
func NewHub(store *registry.Store, manager *sequencer.Manager, commands *command.Interpreter, bus *events.Bus, logger zerolog.Logger) *Hub {
	return &Hub{
		store:    store,
		manager:  manager,
		commands: commands,
		bus:      bus,
		logger:   logger.With().Str("component", "realtime").Logger(),
		displays: make(map[string]*session),
		consoles: make(map[*session]struct{}),
		polls:    make(map[string]*pollSession),
	}
}

// HandleDisplay upgrades a display player connection. The display drives
// its two render buffers from the directives we send and acknowledges
// buffer readiness back.
func (h *Hub) HandleDisplay(w http.ResponseWriter, r *http.Request, displayID, displayName string) {
	conn, err := ws.Accept(w, r, &ws.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.logger.Error().Err(err).Msg("websocket accept failed")
		return
	}
	defer conn.Close(ws.StatusInternalError, "server error")

	if _, err := h.store.UpsertDisplay(r.Context(), displayID, displayName); err != nil {
		h.logger.Error().Err(err).Str("display", displayID).Msg("upsert display failed")
		conn.Close(ws.StatusInternalError, "registration failed")
		return
	}

	sess := &session{id: displayID, kind: "display", send: make(chan Message, 64), lastSeen: time.Now()}
	slotA := newRemoteSlot(models.SlotA, sess.enqueue)
	slotB := newRemoteSlot(models.SlotB, sess.enqueue)

	// A websocket display replaces any polling session for the same ID.
	h.dropPoll(displayID)

	h.mu.Lock()
	h.displays[displayID] = sess
	h.mu.Unlock()

	seq := h.manager.Attach(displayID, slotA, slotB)

	telemetry.RealtimeClients.WithLabelValues("display").Inc()
	defer telemetry.RealtimeClients.WithLabelValues("display").Dec()
	defer func() {
		h.manager.Detach(displayID)
		h.mu.Lock()
		if h.displays[displayID] == sess {
			delete(h.displays, displayID)
		}
		h.mu.Unlock()
	}()

	h.logger.Info().Str("display", displayID).Msg("display connected")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go h.writeLoop(ctx, conn, sess)

	for {
		if sess.stale(heartbeatTimeout) {
			conn.Close(ws.StatusNormalClosure, "heartbeat timeout")
			return
		}
		_, data, err := conn.Read(ctx)
		if err != nil {
			h.logger.Debug().Err(err).Str("display", displayID).Msg("display disconnected")
			return
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			h.logger.Warn().Err(err).Str("display", displayID).Msg("malformed frame dropped")
			continue
		}
		sess.touch()

		switch msg.Type {
		case TypeHeartbeat:
			sess.enqueue(Message{Type: TypePong, SentAt: time.Now().UTC()})
			if err := h.store.TouchDisplay(ctx, displayID); err != nil {
				h.logger.Debug().Err(err).Str("display", displayID).Msg("touch failed")
			}
		case TypeSlotReady:
			switch models.BufferSlot(msg.Slot) {
			case models.SlotA:
				slotA.markReady()
				seq.NotifySlotReady(models.SlotA)
			case models.SlotB:
				slotB.markReady()
				seq.NotifySlotReady(models.SlotB)
			}
		case TypeVideoEnded:
			seq.NotifyVideoEnded()
		default:
			h.logger.Debug().Str("type", msg.Type).Str("display", displayID).Msg("unexpected frame from display")
		}
	}
}

// HandleConsole upgrades an admin console connection. Consoles receive
// playback events and may send commands.
func (h *Hub) HandleConsole(w http.ResponseWriter, r *http.Request) {
	conn, err := ws.Accept(w, r, &ws.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.logger.Error().Err(err).Msg("websocket accept failed")
		return
	}
	defer conn.Close(ws.StatusInternalError, "server error")

	sess := &session{kind: "console", send: make(chan Message, 64), lastSeen: time.Now()}
	h.mu.Lock()
	h.consoles[sess] = struct{}{}
	h.mu.Unlock()

	telemetry.RealtimeClients.WithLabelValues("console").Inc()
	defer telemetry.RealtimeClients.WithLabelValues("console").Dec()
	defer func() {
		h.mu.Lock()
		delete(h.consoles, sess)
		h.mu.Unlock()
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Initial state snapshot so the console renders without waiting for
	// the next event.
	for id, state := range h.manager.States() {
		sess.enqueue(Message{Type: TypeState, DisplayID: id, Payload: statePayload(state)})
	}

	go h.writeLoop(ctx, conn, sess)

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			h.logger.Warn().Err(err).Msg("malformed console frame dropped")
			continue
		}
		sess.touch()

		switch msg.Type {
		case TypeHeartbeat:
			sess.enqueue(Message{Type: TypePong, SentAt: time.Now().UTC()})
		case TypeCommand:
			cmd := models.Command{Kind: models.CommandKind(msg.Action), Value: msg.Value, SentAt: msg.SentAt}
			if _, err := h.commands.Apply(ctx, msg.DisplayID, cmd); err != nil {
				h.logger.Warn().Err(err).Str("action", msg.Action).Msg("command rejected")
			}
		}
	}
}

func (h *Hub) writeLoop(ctx context.Context, conn *ws.Conn, sess *session) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-sess.send:
			data, err := json.Marshal(msg)
			if err != nil {
				continue
			}
			if err := conn.Write(ctx, ws.MessageText, data); err != nil {
				return
			}
		}
	}
}

// Run relays bus events to connected clients until context cancellation.
func (h *Hub) Run(ctx context.Context) error {
	h.logger.Info().Msg("realtime hub started")

	type relay struct {
		event events.EventType
		sub   events.Subscriber
	}
	subscribed := []events.EventType{
		events.EventContentCreated,
		events.EventContentDeleted,
		events.EventScheduleCreated,
		events.EventScheduleDeleted,
		events.EventSettingsUpdated,
		events.EventNowShowing,
		events.EventStateChanged,
		events.EventPlaybackIdle,
		events.EventIdentify,
	}
	relays := make([]relay, 0, len(subscribed))
	for _, eventType := range subscribed {
		relays = append(relays, relay{event: eventType, sub: h.bus.Subscribe(eventType)})
	}
	defer func() {
		for _, r := range relays {
			h.bus.Unsubscribe(r.event, r.sub)
		}
	}()

	type busEvent struct {
		event   events.EventType
		payload events.Payload
	}
	merged := make(chan busEvent, 64)
	for _, r := range relays {
		go func(r relay) {
			for payload := range r.sub {
				select {
				case merged <- busEvent{event: r.event, payload: payload}:
				default:
				}
			}
		}(r)
	}

	janitor := time.NewTicker(30 * time.Second)
	defer janitor.Stop()

	for {
		select {
		case <-ctx.Done():
			h.logger.Info().Msg("realtime hub stopped")
			return ctx.Err()
		case <-janitor.C:
			h.expirePolls()
		case ev := <-merged:
			h.dispatch(ev.event, ev.payload)
		}
	}
}

func (h *Hub) dispatch(event events.EventType, payload events.Payload) {
	switch event {
	case events.EventContentCreated, events.EventContentDeleted,
		events.EventScheduleCreated, events.EventScheduleDeleted,
		events.EventSettingsUpdated:
		h.broadcastDisplays(Message{Type: TypeRefresh, SentAt: time.Now().UTC()})
	case events.EventNowShowing:
		h.broadcastConsoles(Message{Type: TypeNowShowing, DisplayID: asString(payload["display_id"]), Payload: payload})
	case events.EventStateChanged:
		h.broadcastConsoles(Message{Type: TypeState, DisplayID: asString(payload["display_id"]), Payload: payload})
	case events.EventPlaybackIdle:
		h.broadcastConsoles(Message{Type: TypeIdle, DisplayID: asString(payload["display_id"]), Payload: payload})
	case events.EventIdentify:
		h.sendToDisplay(asString(payload["display_id"]), Message{
			Type:   TypeCommand,
			Action: string(models.CommandIdentify),
			SentAt: time.Now().UTC(),
		})
	}
}

func (h *Hub) broadcastDisplays(msg Message) {
	h.mu.Lock()
	sessions := make([]*session, 0, len(h.displays))
	for _, sess := range h.displays {
		sessions = append(sessions, sess)
	}
	polls := make([]*pollSession, 0, len(h.polls))
	for _, ps := range h.polls {
		polls = append(polls, ps)
	}
	h.mu.Unlock()

	for _, sess := range sessions {
		sess.enqueue(msg)
	}
	for _, ps := range polls {
		ps.enqueue(msg)
	}
}

func (h *Hub) broadcastConsoles(msg Message) {
	h.mu.Lock()
	sessions := make([]*session, 0, len(h.consoles))
	for sess := range h.consoles {
		sessions = append(sessions, sess)
	}
	h.mu.Unlock()

	for _, sess := range sessions {
		sess.enqueue(msg)
	}
}

func (h *Hub) sendToDisplay(displayID string, msg Message) {
	if displayID == "" {
		h.broadcastDisplays(msg)
		return
	}
	h.mu.Lock()
	sess, ok := h.displays[displayID]
	ps, pollOK := h.polls[displayID]
	h.mu.Unlock()
	if ok {
		sess.enqueue(msg)
	}
	if pollOK {
		ps.enqueue(msg)
	}
}

func statePayload(state models.RuntimeState) map[string]any {
	return map[string]any{
		"active_index": state.ActiveIndex,
		"powered_on":   state.PoweredOn,
		"orientation":  string(state.Orientation),
		"brightness":   state.Brightness,
		"active_slot":  string(state.ActiveSlot),
	}
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}
