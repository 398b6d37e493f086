/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "time"

// CommandKind enumerates display control actions.
type CommandKind string

const (
	CommandPower       CommandKind = "power"
	CommandOrientation CommandKind = "orientation"
	CommandBrightness  CommandKind = "brightness"
	CommandSkipNext    CommandKind = "skipNext"
	CommandSkipPrev    CommandKind = "skipPrev"
	CommandIdentify    CommandKind = "identify"
	CommandStop        CommandKind = "stop"
)

// Command is an inbound control message for a display. Commands may arrive
// duplicated or out of order; every command must be idempotent in effect.
type Command struct {
	Kind  CommandKind `json:"action"`
	Value any         `json:"value,omitempty"`
	// SentAt is set by the sender when known. Zero is accepted.
	SentAt time.Time `json:"sent_at,omitempty"`
}

// Brightness bounds accepted by the command interpreter; out-of-range values
// are clamped, never rejected.
const (
	BrightnessMin = 0
	BrightnessMax = 200
)
