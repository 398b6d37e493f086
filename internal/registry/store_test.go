/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package registry

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/friendsincode/framewall/internal/events"
	"github.com/friendsincode/framewall/internal/models"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&models.ContentItem{}, &models.ScheduleRule{}, &models.Settings{}, &models.Display{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return New(db, events.NewBus(), zerolog.Nop())
}

func addItem(t *testing.T, s *Store, name string, class models.MediaClass) *models.ContentItem {
	t.Helper()
	item := &models.ContentItem{Name: name, MediaClass: class, SourceRef: "ref-" + name}
	if err := s.CreateContentItem(context.Background(), item); err != nil {
		t.Fatalf("create item: %v", err)
	}
	return item
}

func TestContentDeleteCascadesRules(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	kept := addItem(t, s, "kept", models.MediaImage)
	doomed := addItem(t, s, "doomed", models.MediaVideo)

	now := time.Now()
	for _, contentID := range []string{kept.ID, doomed.ID, doomed.ID} {
		rule := &models.ScheduleRule{
			ContentItemID: contentID,
			StartsAt:      now,
			EndsAt:        now.Add(time.Hour),
		}
		if err := s.CreateScheduleRule(ctx, rule); err != nil {
			t.Fatalf("create rule: %v", err)
		}
	}

	if err := s.DeleteContentItem(ctx, doomed.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	rules, err := s.ListScheduleRules(ctx)
	if err != nil {
		t.Fatalf("list rules: %v", err)
	}
	if len(rules) != 1 {
		t.Fatalf("len(rules) = %d, want 1", len(rules))
	}
	if rules[0].ContentItemID != kept.ID {
		t.Errorf("surviving rule references %s, want %s", rules[0].ContentItemID, kept.ID)
	}
}

func TestScheduleRuleRejectsMissingContent(t *testing.T) {
	s := testStore(t)
	rule := &models.ScheduleRule{
		ContentItemID: "no-such-item",
		StartsAt:      time.Now(),
		EndsAt:        time.Now().Add(time.Hour),
	}
	if err := s.CreateScheduleRule(context.Background(), rule); !errors.Is(err, ErrContentMissing) {
		t.Errorf("err = %v, want ErrContentMissing", err)
	}
}

func TestScheduleRuleRejectsInvertedWindow(t *testing.T) {
	s := testStore(t)
	item := addItem(t, s, "a", models.MediaImage)
	now := time.Now()

	rule := &models.ScheduleRule{ContentItemID: item.ID, StartsAt: now, EndsAt: now}
	if err := s.CreateScheduleRule(context.Background(), rule); !errors.Is(err, ErrInvalidWindow) {
		t.Errorf("err = %v, want ErrInvalidWindow", err)
	}
}

func TestScheduleRuleRejectsInvertedClock(t *testing.T) {
	s := testStore(t)
	item := addItem(t, s, "a", models.MediaImage)
	now := time.Now()

	rule := &models.ScheduleRule{
		ContentItemID: item.ID,
		StartsAt:      now,
		EndsAt:        now.Add(time.Hour),
		ClockStart:    "17:00",
		ClockEnd:      "09:00",
	}
	if err := s.CreateScheduleRule(context.Background(), rule); !errors.Is(err, ErrInvalidClock) {
		t.Errorf("err = %v, want ErrInvalidClock", err)
	}
}

func TestSettingsSingletonAndClamp(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	settings, err := s.GetSettings(ctx)
	if err != nil {
		t.Fatalf("get settings: %v", err)
	}
	if settings.Brightness != 100 || settings.Orientation != models.OrientationLandscape {
		t.Errorf("unexpected defaults: %+v", settings)
	}

	updated, err := s.UpdateSettings(ctx, func(st *models.Settings) {
		st.Brightness = 900
	})
	if err != nil {
		t.Fatalf("update settings: %v", err)
	}
	if updated.Brightness != models.BrightnessMax {
		t.Errorf("brightness = %d, want clamp to %d", updated.Brightness, models.BrightnessMax)
	}
}

func TestSnapshotOrdering(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	first := addItem(t, s, "first", models.MediaImage)
	second := addItem(t, s, "second", models.MediaLink)

	snap, err := s.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snap.Items) != 2 {
		t.Fatalf("len(items) = %d, want 2", len(snap.Items))
	}
	if snap.Items[0].ID != first.ID || snap.Items[1].ID != second.ID {
		t.Error("snapshot items must keep creation order")
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	item := addItem(t, s, "a", models.MediaImage)
	rule := &models.ScheduleRule{
		ContentItemID: item.ID,
		StartsAt:      time.Now().UTC().Truncate(time.Second),
		EndsAt:        time.Now().UTC().Add(time.Hour).Truncate(time.Second),
		SortOrder:     3,
	}
	if err := s.CreateScheduleRule(ctx, rule); err != nil {
		t.Fatalf("create rule: %v", err)
	}

	var buf bytes.Buffer
	if err := s.Export(ctx, &buf); err != nil {
		t.Fatalf("export: %v", err)
	}

	restored := testStore(t)
	if err := restored.Import(ctx, &buf); err != nil {
		t.Fatalf("import: %v", err)
	}

	items, err := restored.ListContentItems(ctx)
	if err != nil {
		t.Fatalf("list items: %v", err)
	}
	if len(items) != 1 || items[0].ID != item.ID {
		t.Errorf("restored items = %+v", items)
	}
	rules, err := restored.ListScheduleRules(ctx)
	if err != nil {
		t.Fatalf("list rules: %v", err)
	}
	if len(rules) != 1 || rules[0].SortOrder != 3 {
		t.Errorf("restored rules = %+v", rules)
	}
}
