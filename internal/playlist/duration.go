/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playlist

import (
	"time"

	"github.com/friendsincode/framewall/internal/models"
)

const (
	// MinDuration is the floor for any resolved on-screen time.
	MinDuration = 100 * time.Millisecond

	// VideoEndedPad is added to a video's natural length so the advance
	// timer cannot fire a few milliseconds before the decoder's own ended
	// signal.
	VideoEndedPad = 500 * time.Millisecond

	// UnknownVideoDuration is used when a video's natural length could not
	// be probed. Stalling indefinitely is worse than a wrong guess.
	UnknownVideoDuration = 30 * time.Second
)

// Duration returns the effective on-screen time for one display entry.
//
// Precedence, highest first: the entry's schedule-rule override, the content
// item's own override, then the media-class global default. Videos with no
// override at either level run for their natural length plus VideoEndedPad,
// or UnknownVideoDuration when the length was never probed. Images and links
// always land on a class default.
func Duration(entry models.DisplayEntry, item models.ContentItem, settings models.Settings) time.Duration {
	if entry.DurationSeconds != nil && *entry.DurationSeconds > 0 {
		return clampMin(secondsToDuration(*entry.DurationSeconds))
	}
	if item.DurationSeconds != nil && *item.DurationSeconds > 0 {
		return clampMin(secondsToDuration(*item.DurationSeconds))
	}

	switch item.MediaClass {
	case models.MediaImage:
		return clampMin(secondsToDuration(settings.DefaultImageSeconds))
	case models.MediaLink:
		return clampMin(secondsToDuration(settings.DefaultLinkSeconds))
	case models.MediaVideo:
		if item.NaturalDurationSeconds > 0 {
			natural := time.Duration(item.NaturalDurationSeconds * float64(time.Second))
			return clampMin(natural + VideoEndedPad)
		}
		return UnknownVideoDuration
	}

	// Unknown media class: treat like an image so nothing wedges.
	return clampMin(secondsToDuration(settings.DefaultImageSeconds))
}

func secondsToDuration(s int) time.Duration {
	return time.Duration(s) * time.Second
}

func clampMin(d time.Duration) time.Duration {
	if d < MinDuration {
		return MinDuration
	}
	return d
}
