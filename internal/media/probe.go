/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package media

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const probeTimeout = 30 * time.Second

// Prober extracts media durations with ffprobe. An uploaded video whose
// duration cannot be probed still plays; the player falls back to a
// default advance interval until the natural duration is known.
type Prober struct {
	bin    string
	logger zerolog.Logger
}

// NewProber creates a prober using the given ffprobe binary.
func NewProber(bin string, logger zerolog.Logger) *Prober {
	if bin == "" {
		bin = "ffprobe"
	}
	return &Prober{bin: bin, logger: logger}
}

// Duration returns the container duration of a local file in seconds.
func (p *Prober) Duration(ctx context.Context, path string) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.bin,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe %s: %w", path, err)
	}

	raw := strings.TrimSpace(string(out))
	seconds, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("parse ffprobe output %q: %w", raw, err)
	}
	if seconds < 0 {
		return 0, fmt.Errorf("negative duration %f", seconds)
	}
	return seconds, nil
}
