/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package command

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/friendsincode/framewall/internal/events"
	"github.com/friendsincode/framewall/internal/models"
	"github.com/friendsincode/framewall/internal/registry"
	"github.com/friendsincode/framewall/internal/sequencer"
	"github.com/friendsincode/framewall/internal/telemetry"
)

// Outcome classifies what applying a command did.
type Outcome string

const (
	// OutcomeApplied means the command changed something.
	OutcomeApplied Outcome = "applied"
	// OutcomeNoop means the system was already in the requested state.
	OutcomeNoop Outcome = "noop"
	// OutcomeIgnored means the command was malformed or had no target.
	OutcomeIgnored Outcome = "ignored"
)

// Interpreter applies control commands. Every command is idempotent:
// re-sending one the system already satisfies reports a noop and changes
// nothing, so duplicate delivery over a flaky transport is harmless.
type Interpreter struct {
	store   *registry.Store
	manager *sequencer.Manager
	bus     *events.Bus
	logger  zerolog.Logger
}

// New creates a command interpreter.
func New(store *registry.Store, manager *sequencer.Manager, bus *events.Bus, logger zerolog.Logger) *Interpreter {
	return &Interpreter{store: store, manager: manager, bus: bus, logger: logger}
}

// Apply executes one command. displayID targets a single display; empty
// targets every attached display.
func (i *Interpreter) Apply(ctx context.Context, displayID string, cmd models.Command) (Outcome, error) {
	outcome, err := i.apply(ctx, displayID, cmd)
	telemetry.CommandsTotal.WithLabelValues(string(cmd.Kind), string(outcome)).Inc()
	i.logger.Info().
		Str("action", string(cmd.Kind)).
		Str("display", displayID).
		Str("outcome", string(outcome)).
		Msg("command processed")
	return outcome, err
}

func (i *Interpreter) apply(ctx context.Context, displayID string, cmd models.Command) (Outcome, error) {
	switch cmd.Kind {
	case models.CommandPower:
		return i.applyPower(displayID, cmd.Value)
	case models.CommandOrientation:
		return i.applyOrientation(ctx, cmd.Value)
	case models.CommandBrightness:
		return i.applyBrightness(ctx, cmd.Value)
	case models.CommandSkipNext:
		return i.routeSkip(displayID, 1), nil
	case models.CommandSkipPrev:
		return i.routeSkip(displayID, -1), nil
	case models.CommandIdentify:
		i.bus.Publish(events.EventIdentify, events.Payload{"display_id": displayID})
		return OutcomeApplied, nil
	case models.CommandStop:
		return i.routeStop(displayID), nil
	default:
		i.logger.Warn().Str("action", string(cmd.Kind)).Msg("unknown command action ignored")
		return OutcomeIgnored, nil
	}
}

func (i *Interpreter) applyPower(displayID string, value any) (Outcome, error) {
	on, ok := asBool(value)
	if !ok {
		return OutcomeIgnored, fmt.Errorf("power: invalid value %v", value)
	}

	changed := false
	found := false
	i.eachTarget(displayID, func(id string, seq *sequencer.Sequencer) {
		found = true
		if seq.State().PoweredOn != on {
			changed = true
		}
		seq.SetPower(on)
	})
	if !found {
		return OutcomeIgnored, nil
	}
	if !changed {
		return OutcomeNoop, nil
	}
	return OutcomeApplied, nil
}

func (i *Interpreter) applyOrientation(ctx context.Context, value any) (Outcome, error) {
	raw, ok := value.(string)
	if !ok {
		return OutcomeIgnored, fmt.Errorf("orientation: invalid value %v", value)
	}
	orientation := models.Orientation(strings.ToLower(raw))
	if orientation != models.OrientationLandscape && orientation != models.OrientationPortrait {
		return OutcomeIgnored, fmt.Errorf("orientation: unknown value %q", raw)
	}

	current, err := i.store.GetSettings(ctx)
	if err != nil {
		return OutcomeIgnored, err
	}
	if current.Orientation == orientation {
		return OutcomeNoop, nil
	}
	_, err = i.store.UpdateSettings(ctx, func(s *models.Settings) {
		s.Orientation = orientation
	})
	if err != nil {
		return OutcomeIgnored, err
	}
	return OutcomeApplied, nil
}

func (i *Interpreter) applyBrightness(ctx context.Context, value any) (Outcome, error) {
	level, ok := asInt(value)
	if !ok {
		return OutcomeIgnored, fmt.Errorf("brightness: invalid value %v", value)
	}
	if level < models.BrightnessMin {
		level = models.BrightnessMin
	}
	if level > models.BrightnessMax {
		level = models.BrightnessMax
	}

	current, err := i.store.GetSettings(ctx)
	if err != nil {
		return OutcomeIgnored, err
	}
	if current.Brightness == level {
		return OutcomeNoop, nil
	}
	_, err = i.store.UpdateSettings(ctx, func(s *models.Settings) {
		s.Brightness = level
	})
	if err != nil {
		return OutcomeIgnored, err
	}
	return OutcomeApplied, nil
}

func (i *Interpreter) routeSkip(displayID string, step int) Outcome {
	routed := false
	i.eachTarget(displayID, func(id string, seq *sequencer.Sequencer) {
		if !seq.State().PoweredOn {
			return
		}
		routed = true
		if step > 0 {
			seq.SkipNext()
		} else {
			seq.SkipPrev()
		}
	})
	if !routed {
		return OutcomeIgnored
	}
	return OutcomeApplied
}

func (i *Interpreter) routeStop(displayID string) Outcome {
	routed := false
	i.eachTarget(displayID, func(id string, seq *sequencer.Sequencer) {
		routed = true
		seq.Stop()
	})
	if !routed {
		return OutcomeIgnored
	}
	return OutcomeApplied
}

func (i *Interpreter) eachTarget(displayID string, fn func(string, *sequencer.Sequencer)) {
	if displayID != "" {
		if seq, ok := i.manager.Get(displayID); ok {
			fn(displayID, seq)
		}
		return
	}
	i.manager.Each(fn)
}

func asBool(value any) (bool, bool) {
	switch v := value.(type) {
	case bool:
		return v, true
	case string:
		switch strings.ToLower(v) {
		case "on", "true", "1":
			return true, true
		case "off", "false", "0":
			return false, true
		}
	}
	return false, false
}

func asInt(value any) (int, bool) {
	switch v := value.(type) {
	case int:
		return v, true
	case float64:
		return int(v), true
	case string:
		n, err := strconv.Atoi(v)
		if err == nil {
			return n, true
		}
	}
	return 0, false
}
