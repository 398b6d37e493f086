/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "time"

// MediaClass classifies what a content item renders as.
type MediaClass string

const (
	MediaImage MediaClass = "image"
	MediaVideo MediaClass = "video"
	MediaLink  MediaClass = "link"
)

// Valid reports whether the media class is a known value.
func (m MediaClass) Valid() bool {
	switch m {
	case MediaImage, MediaVideo, MediaLink:
		return true
	}
	return false
}

// Orientation is the physical display rotation.
type Orientation string

const (
	OrientationLandscape Orientation = "landscape"
	OrientationPortrait  Orientation = "portrait"
)

// Valid reports whether the orientation is a known value.
func (o Orientation) Valid() bool {
	return o == OrientationLandscape || o == OrientationPortrait
}

// ContentItem is an uploaded media file or registered external link.
// Items are immutable after creation except for deletion; deleting one
// cascades to every ScheduleRule that references it.
type ContentItem struct {
	ID         string     `gorm:"type:uuid;primaryKey" json:"id"`
	Name       string     `gorm:"index" json:"name"`
	MediaClass MediaClass `gorm:"type:varchar(16);index" json:"media_class"`
	// SourceRef is a storage key for uploads or an absolute URL for links.
	SourceRef string `json:"source_ref"`
	MimeType  string `gorm:"type:varchar(64)" json:"mime_type,omitempty"`
	SizeBytes int64  `json:"size_bytes,omitempty"`
	// DurationSeconds is the item-level duration override set at upload or
	// link-creation time. Nil means no override.
	DurationSeconds *int `json:"duration_seconds,omitempty"`
	// NaturalDurationSeconds is the probed playback length for videos.
	// Zero means unknown (probe failed or not a video).
	NaturalDurationSeconds float64   `json:"natural_duration_seconds,omitempty"`
	CreatedAt              time.Time `json:"created_at"`
	UpdatedAt              time.Time `json:"updated_at"`
}

// ScheduleRule binds a ContentItem to the active playlist inside a time
// window, optionally gated by weekday and daily clock. Rules are never
// mutated in place; replacement is delete-and-recreate.
type ScheduleRule struct {
	ID            string `gorm:"type:uuid;primaryKey" json:"id"`
	ContentItemID string `gorm:"type:uuid;index;not null" json:"content_item_id"`
	// Active window, inclusive on both ends.
	StartsAt time.Time `gorm:"index" json:"starts_at"`
	EndsAt   time.Time `gorm:"index" json:"ends_at"`
	// DaysOfWeek restricts the rule to the listed weekdays (0 = Sunday).
	// Empty means every day.
	DaysOfWeek []int `gorm:"serializer:json" json:"days_of_week,omitempty"`
	// Daily clock window in "HH:MM" local wall-clock time, inclusive.
	// Empty strings mean the rule is active all day.
	ClockStart string `gorm:"type:varchar(5)" json:"clock_start,omitempty"`
	ClockEnd   string `gorm:"type:varchar(5)" json:"clock_end,omitempty"`
	// SortOrder is the playlist sort key. Not unique; ties keep creation order.
	SortOrder int `gorm:"index" json:"sort_order"`
	// DurationSeconds is the rule-level duration override. Nil means none.
	DurationSeconds *int      `json:"duration_seconds,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// TableName returns the table name for GORM.
func (ScheduleRule) TableName() string {
	return "schedule_rules"
}

// MatchesDay reports whether the rule is active on the given weekday.
func (r *ScheduleRule) MatchesDay(day time.Weekday) bool {
	if len(r.DaysOfWeek) == 0 {
		return true
	}
	for _, d := range r.DaysOfWeek {
		if d == int(day) {
			return true
		}
	}
	return false
}

// Settings is the singleton of global display configuration.
type Settings struct {
	ID          int         `gorm:"primaryKey" json:"-"`
	Brightness  int         `json:"brightness"`
	Orientation Orientation `gorm:"type:varchar(16)" json:"orientation"`
	AutoStart   bool        `json:"auto_start"`
	// Class defaults applied when neither rule nor item carries an override.
	DefaultImageSeconds int `json:"default_image_seconds"`
	DefaultLinkSeconds  int `json:"default_link_seconds"`
	// Timezone is the IANA zone used to evaluate daily clock windows.
	// Empty means the server's local zone.
	Timezone          string    `gorm:"type:varchar(48)" json:"timezone,omitempty"`
	AdminPasswordHash string    `json:"-"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// SettingsID is the fixed primary key of the settings singleton row.
const SettingsID = 1

// DefaultSettings returns the settings applied on first boot.
func DefaultSettings() Settings {
	return Settings{
		ID:                  SettingsID,
		Brightness:          100,
		Orientation:         OrientationLandscape,
		AutoStart:           true,
		DefaultImageSeconds: 10,
		DefaultLinkSeconds:  30,
	}
}

// DisplayEntry is one resolved playlist position. Derived, never persisted;
// recomputed on every resolution.
type DisplayEntry struct {
	ContentItemID string `json:"content_item_id"`
	// DurationSeconds carries the schedule-rule override when the entry came
	// from a rule, or the item-level override in fallback mode.
	DurationSeconds *int `json:"duration_seconds,omitempty"`
}

// Display is a registered player endpoint.
type Display struct {
	ID         string    `gorm:"type:uuid;primaryKey" json:"id"`
	Name       string    `gorm:"index" json:"name"`
	LastSeenAt time.Time `json:"last_seen_at"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// BufferSlot names one of the two alternating render buffers.
type BufferSlot string

const (
	SlotA BufferSlot = "A"
	SlotB BufferSlot = "B"
)

// RuntimeState is the ephemeral per-display playback state. It is created
// when a display session starts and discarded on reload; nothing here is
// persisted.
type RuntimeState struct {
	ActiveIndex    int         `json:"active_index"`
	PoweredOn      bool        `json:"powered_on"`
	Orientation    Orientation `json:"orientation"`
	Brightness     int         `json:"brightness"`
	HasAutoStarted bool        `json:"has_auto_started"`
	ActiveSlot     BufferSlot  `json:"active_slot"`
}
