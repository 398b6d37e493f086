/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package registry owns the content, schedule, and settings stores. Every
// mutation publishes a bus event so display sessions re-resolve their
// playlists without polling.
package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/framewall/internal/events"
	"github.com/friendsincode/framewall/internal/models"
	"github.com/friendsincode/framewall/internal/playlist"
)

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrContentMissing indicates a schedule rule references a content item
	// that does not exist.
	ErrContentMissing = errors.New("referenced content item not found")

	// ErrInvalidWindow indicates endAt is not strictly after startAt.
	ErrInvalidWindow = errors.New("active window end must be after start")

	// ErrInvalidClock indicates a malformed or inverted daily clock window.
	ErrInvalidClock = errors.New("daily clock end must be after start")
)

// Store provides registry access over the database.
type Store struct {
	db     *gorm.DB
	bus    *events.Bus
	logger zerolog.Logger
}

// New creates a registry store.
func New(db *gorm.DB, bus *events.Bus, logger zerolog.Logger) *Store {
	return &Store{
		db:     db,
		bus:    bus,
		logger: logger.With().Str("component", "registry").Logger(),
	}
}

// ListContentItems returns all content items in creation order.
func (s *Store) ListContentItems(ctx context.Context) ([]models.ContentItem, error) {
	var items []models.ContentItem
	err := s.db.WithContext(ctx).Order("created_at ASC").Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("list content items: %w", err)
	}
	return items, nil
}

// GetContentItem returns one content item by id.
func (s *Store) GetContentItem(ctx context.Context, id string) (*models.ContentItem, error) {
	var item models.ContentItem
	err := s.db.WithContext(ctx).First(&item, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get content item: %w", err)
	}
	return &item, nil
}

// CreateContentItem stores a new item. A missing ID is generated.
func (s *Store) CreateContentItem(ctx context.Context, item *models.ContentItem) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if !item.MediaClass.Valid() {
		return fmt.Errorf("invalid media class %q", item.MediaClass)
	}
	if err := s.db.WithContext(ctx).Create(item).Error; err != nil {
		return fmt.Errorf("create content item: %w", err)
	}

	s.logger.Info().Str("id", item.ID).Str("class", string(item.MediaClass)).Msg("content item created")
	s.bus.Publish(events.EventContentCreated, events.Payload{"id": item.ID, "name": item.Name})
	return nil
}

// DeleteContentItem removes an item and, in the same transaction, every
// schedule rule referencing it. No rule may outlive its content.
func (s *Store) DeleteContentItem(ctx context.Context, id string) error {
	var cascaded int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&models.ContentItem{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		ruleRes := tx.Where("content_item_id = ?", id).Delete(&models.ScheduleRule{})
		if ruleRes.Error != nil {
			return ruleRes.Error
		}
		cascaded = ruleRes.RowsAffected
		return nil
	})
	if errors.Is(err, ErrNotFound) {
		return err
	}
	if err != nil {
		return fmt.Errorf("delete content item: %w", err)
	}

	s.logger.Info().Str("id", id).Int64("cascaded_rules", cascaded).Msg("content item deleted")
	s.bus.Publish(events.EventContentDeleted, events.Payload{"id": id, "cascaded_rules": cascaded})
	return nil
}

// ListScheduleRules returns all rules in creation order, the order the
// resolver needs for a stable tie-break.
func (s *Store) ListScheduleRules(ctx context.Context) ([]models.ScheduleRule, error) {
	var rules []models.ScheduleRule
	err := s.db.WithContext(ctx).Order("created_at ASC").Find(&rules).Error
	if err != nil {
		return nil, fmt.Errorf("list schedule rules: %w", err)
	}
	return rules, nil
}

// CreateScheduleRule validates and stores a rule.
func (s *Store) CreateScheduleRule(ctx context.Context, rule *models.ScheduleRule) error {
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	if !rule.EndsAt.After(rule.StartsAt) {
		return ErrInvalidWindow
	}
	if (rule.ClockStart != "") != (rule.ClockEnd != "") {
		return ErrInvalidClock
	}
	if rule.ClockStart != "" && !playlist.ValidateClockWindow(rule.ClockStart, rule.ClockEnd) {
		return ErrInvalidClock
	}
	for _, d := range rule.DaysOfWeek {
		if d < 0 || d > 6 {
			return fmt.Errorf("invalid weekday %d", d)
		}
	}

	if _, err := s.GetContentItem(ctx, rule.ContentItemID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrContentMissing
		}
		return err
	}

	if err := s.db.WithContext(ctx).Create(rule).Error; err != nil {
		return fmt.Errorf("create schedule rule: %w", err)
	}

	s.logger.Info().Str("id", rule.ID).Str("content", rule.ContentItemID).Msg("schedule rule created")
	s.bus.Publish(events.EventScheduleCreated, events.Payload{"id": rule.ID})
	return nil
}

// DeleteScheduleRule removes one rule.
func (s *Store) DeleteScheduleRule(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Delete(&models.ScheduleRule{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("delete schedule rule: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}

	s.bus.Publish(events.EventScheduleDeleted, events.Payload{"id": id})
	return nil
}

// GetSettings returns the settings singleton, creating the default row on
// first access.
func (s *Store) GetSettings(ctx context.Context) (models.Settings, error) {
	var settings models.Settings
	err := s.db.WithContext(ctx).First(&settings, "id = ?", models.SettingsID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		settings = models.DefaultSettings()
		if err := s.db.WithContext(ctx).Create(&settings).Error; err != nil {
			return settings, fmt.Errorf("create default settings: %w", err)
		}
		return settings, nil
	}
	if err != nil {
		return settings, fmt.Errorf("get settings: %w", err)
	}
	return settings, nil
}

// UpdateSettings applies a mutation to the settings singleton and persists
// it. Brightness is clamped, never rejected.
func (s *Store) UpdateSettings(ctx context.Context, apply func(*models.Settings)) (models.Settings, error) {
	settings, err := s.GetSettings(ctx)
	if err != nil {
		return settings, err
	}

	apply(&settings)
	settings.ID = models.SettingsID
	if settings.Brightness < models.BrightnessMin {
		settings.Brightness = models.BrightnessMin
	}
	if settings.Brightness > models.BrightnessMax {
		settings.Brightness = models.BrightnessMax
	}
	if !settings.Orientation.Valid() {
		settings.Orientation = models.OrientationLandscape
	}

	if err := s.db.WithContext(ctx).Save(&settings).Error; err != nil {
		return settings, fmt.Errorf("update settings: %w", err)
	}

	s.bus.Publish(events.EventSettingsUpdated, events.Payload{})
	return settings, nil
}

// Snapshot is one consistent view of the registries, the resolver's input.
type Snapshot struct {
	Items    []models.ContentItem
	Rules    []models.ScheduleRule
	Settings models.Settings
	TakenAt  time.Time
}

// Snapshot reads items, rules, and settings in a single transaction so one
// resolution pass never sees a half-applied mutation.
func (s *Store) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Order("created_at ASC").Find(&snap.Items).Error; err != nil {
			return err
		}
		if err := tx.Order("created_at ASC").Find(&snap.Rules).Error; err != nil {
			return err
		}
		err := tx.First(&snap.Settings, "id = ?", models.SettingsID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			snap.Settings = models.DefaultSettings()
			return nil
		}
		return err
	})
	if err != nil {
		return snap, fmt.Errorf("registry snapshot: %w", err)
	}
	snap.TakenAt = time.Now()
	return snap, nil
}

// Location returns the timezone daily clock windows are evaluated in.
func (snap Snapshot) Location() *time.Location {
	if snap.Settings.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(snap.Settings.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// UpsertDisplay registers or refreshes a display endpoint.
func (s *Store) UpsertDisplay(ctx context.Context, id, name string) (*models.Display, error) {
	if id == "" {
		id = uuid.NewString()
	}
	display := models.Display{ID: id, Name: name, LastSeenAt: time.Now()}
	err := s.db.WithContext(ctx).Save(&display).Error
	if err != nil {
		return nil, fmt.Errorf("upsert display: %w", err)
	}
	return &display, nil
}

// TouchDisplay records a heartbeat from a display.
func (s *Store) TouchDisplay(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).
		Model(&models.Display{}).
		Where("id = ?", id).
		Update("last_seen_at", time.Now()).Error
}

// ListDisplays returns all registered displays.
func (s *Store) ListDisplays(ctx context.Context) ([]models.Display, error) {
	var displays []models.Display
	err := s.db.WithContext(ctx).Order("created_at ASC").Find(&displays).Error
	if err != nil {
		return nil, fmt.Errorf("list displays: %w", err)
	}
	return displays, nil
}
