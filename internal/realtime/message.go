/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package realtime

import "time"

// Message is the wire envelope shared by the WebSocket channel and the
// polling fallback. Every frame carries a type; the remaining fields are
// populated per type.
type Message struct {
	Type   string `json:"type"`
	Action string `json:"action,omitempty"`
	Value  any    `json:"value,omitempty"`

	// Slot directives sent to displays.
	Slot            string  `json:"slot,omitempty"`
	ContentItemID   string  `json:"content_item_id,omitempty"`
	MediaClass      string  `json:"media_class,omitempty"`
	SourceURL       string  `json:"source_url,omitempty"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`

	// Event payloads relayed to consoles.
	DisplayID string         `json:"display_id,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`

	SentAt time.Time `json:"sent_at,omitempty"`
}

// Frame types understood by both sides of the channel.
const (
	TypeRefresh   = "refresh"
	TypeCommand   = "command"
	TypeHeartbeat = "heartbeat"
	TypePong      = "pong"

	// Server to display slot directives.
	TypePrepare = "prepare"
	TypeReveal  = "reveal"
	TypeConceal = "conceal"

	// Display to server acknowledgements.
	TypeSlotReady  = "slot_ready"
	TypeVideoEnded = "video_ended"

	// Console event relays.
	TypeNowShowing = "now_showing"
	TypeState      = "state"
	TypeIdle       = "idle"
	TypeIdentify   = "identify"
)
