/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package command

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/friendsincode/framewall/internal/events"
	"github.com/friendsincode/framewall/internal/models"
	"github.com/friendsincode/framewall/internal/registry"
	"github.com/friendsincode/framewall/internal/sequencer"
)

type nopSlot struct{}

func (nopSlot) Prepare(models.ContentItem, time.Duration) {}
func (nopSlot) IsReadyToRender() bool                     { return true }
func (nopSlot) Reveal()                                   {}
func (nopSlot) Conceal()                                  {}

func testInterpreter(t *testing.T) (*Interpreter, *registry.Store, *sequencer.Manager) {
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

	bus := events.NewBus()
	store := registry.New(db, bus, zerolog.Nop())
	manager := sequencer.NewManager(store, bus, time.Minute, zerolog.Nop())
	t.Cleanup(func() { manager.Shutdown() })

	return New(store, manager, bus, zerolog.Nop()), store, manager
}

func attachDisplay(t *testing.T, interp *Interpreter, store *registry.Store, manager *sequencer.Manager, id string) *sequencer.Sequencer {
	t.Helper()
	ctx := context.Background()
	item := &models.ContentItem{Name: "frame", MediaClass: models.MediaImage, SourceRef: "media/frame"}
	if err := store.CreateContentItem(ctx, item); err != nil {
		t.Fatalf("create item: %v", err)
	}
	seq := manager.Attach(id, nopSlot{}, nopSlot{})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if seq.State().PoweredOn {
			return seq
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("display never auto-started")
	return nil
}

func TestPowerOffIsIdempotent(t *testing.T) {
	interp, store, manager := testInterpreter(t)
	seq := attachDisplay(t, interp, store, manager, "d1")
	ctx := context.Background()

	outcome, err := interp.Apply(ctx, "d1", models.Command{Kind: models.CommandPower, Value: false})
	if err != nil || outcome != OutcomeApplied {
		t.Fatalf("first power off: outcome=%s err=%v", outcome, err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && seq.State().PoweredOn {
		time.Sleep(5 * time.Millisecond)
	}
	if seq.State().PoweredOn {
		t.Fatal("display still powered on")
	}

	outcome, err = interp.Apply(ctx, "d1", models.Command{Kind: models.CommandPower, Value: false})
	if err != nil || outcome != OutcomeNoop {
		t.Errorf("second power off: outcome=%s err=%v, want noop", outcome, err)
	}
}

func TestPowerAcceptsStringValues(t *testing.T) {
	interp, store, manager := testInterpreter(t)
	attachDisplay(t, interp, store, manager, "d1")

	outcome, err := interp.Apply(context.Background(), "d1", models.Command{Kind: models.CommandPower, Value: "off"})
	if err != nil || outcome != OutcomeApplied {
		t.Errorf("power off via string: outcome=%s err=%v", outcome, err)
	}
}

func TestUnknownActionIgnored(t *testing.T) {
	interp, _, _ := testInterpreter(t)
	outcome, err := interp.Apply(context.Background(), "", models.Command{Kind: "reboot"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != OutcomeIgnored {
		t.Errorf("outcome = %s, want ignored", outcome)
	}
}

func TestBrightnessClampsAndDeduplicates(t *testing.T) {
	interp, store, _ := testInterpreter(t)
	ctx := context.Background()

	outcome, err := interp.Apply(ctx, "", models.Command{Kind: models.CommandBrightness, Value: float64(500)})
	if err != nil || outcome != OutcomeApplied {
		t.Fatalf("brightness 500: outcome=%s err=%v", outcome, err)
	}
	settings, err := store.GetSettings(ctx)
	if err != nil {
		t.Fatalf("get settings: %v", err)
	}
	if settings.Brightness != models.BrightnessMax {
		t.Errorf("brightness = %d, want clamp to %d", settings.Brightness, models.BrightnessMax)
	}

	outcome, err = interp.Apply(ctx, "", models.Command{Kind: models.CommandBrightness, Value: float64(500)})
	if err != nil || outcome != OutcomeNoop {
		t.Errorf("repeated brightness: outcome=%s err=%v, want noop", outcome, err)
	}
}

func TestOrientationValidation(t *testing.T) {
	interp, _, _ := testInterpreter(t)
	ctx := context.Background()

	outcome, err := interp.Apply(ctx, "", models.Command{Kind: models.CommandOrientation, Value: "sideways"})
	if err == nil || outcome != OutcomeIgnored {
		t.Errorf("invalid orientation: outcome=%s err=%v, want ignored with error", outcome, err)
	}

	outcome, err = interp.Apply(ctx, "", models.Command{Kind: models.CommandOrientation, Value: "portrait"})
	if err != nil || outcome != OutcomeApplied {
		t.Errorf("portrait: outcome=%s err=%v", outcome, err)
	}

	outcome, err = interp.Apply(ctx, "", models.Command{Kind: models.CommandOrientation, Value: "portrait"})
	if err != nil || outcome != OutcomeNoop {
		t.Errorf("repeated portrait: outcome=%s err=%v, want noop", outcome, err)
	}
}

func TestSkipWithoutDisplaysIgnored(t *testing.T) {
	interp, _, _ := testInterpreter(t)
	outcome, err := interp.Apply(context.Background(), "", models.Command{Kind: models.CommandSkipNext})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != OutcomeIgnored {
		t.Errorf("outcome = %s, want ignored", outcome)
	}
}
