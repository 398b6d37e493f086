/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package playlist computes which content is eligible to show at a given
// instant. Resolution is pure: the same registry snapshot and instant always
// produce the same display list, so the admin console and every display
// session can run the identical algorithm.
package playlist

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/friendsincode/framewall/internal/models"
)

// Resolve computes the ordered display list for the given instant.
//
// A schedule rule survives when now falls inside its active window (inclusive
// both ends), its weekday set is empty or contains now's weekday, and its
// daily clock window is unset or contains now's minute of day in loc's wall
// clock. Survivors sort ascending by SortOrder; equal orders keep their
// position in rules, which callers supply in creation order.
//
// When no rule survives, every content item becomes an entry carrying the
// item's own duration override, in items order. When there is no content at
// all the result is empty and the caller renders an idle state.
func Resolve(now time.Time, items []models.ContentItem, rules []models.ScheduleRule, loc *time.Location) []models.DisplayEntry {
	if loc == nil {
		loc = time.Local
	}
	local := now.In(loc)
	minuteOfDay := local.Hour()*60 + local.Minute()
	weekday := local.Weekday()

	matched := make([]models.ScheduleRule, 0, len(rules))
	for _, rule := range rules {
		if now.Before(rule.StartsAt) || now.After(rule.EndsAt) {
			continue
		}
		if !rule.MatchesDay(weekday) {
			continue
		}
		if !clockContains(rule.ClockStart, rule.ClockEnd, minuteOfDay) {
			continue
		}
		matched = append(matched, rule)
	}

	if len(matched) > 0 {
		sort.SliceStable(matched, func(i, j int) bool {
			return matched[i].SortOrder < matched[j].SortOrder
		})
		entries := make([]models.DisplayEntry, len(matched))
		for i, rule := range matched {
			entries[i] = models.DisplayEntry{
				ContentItemID:   rule.ContentItemID,
				DurationSeconds: rule.DurationSeconds,
			}
		}
		return entries
	}

	// Fallback "show everything" mode.
	entries := make([]models.DisplayEntry, len(items))
	for i, item := range items {
		entries[i] = models.DisplayEntry{
			ContentItemID:   item.ID,
			DurationSeconds: item.DurationSeconds,
		}
	}
	return entries
}

// clockContains reports whether minuteOfDay lies within the [start, end]
// clock window, inclusive. Empty or unparseable bounds mean no restriction;
// malformed rules are treated as always-on rather than dropped.
func clockContains(start, end string, minuteOfDay int) bool {
	if start == "" || end == "" {
		return true
	}
	from, okFrom := parseClock(start)
	to, okTo := parseClock(end)
	if !okFrom || !okTo {
		return true
	}
	return minuteOfDay >= from && minuteOfDay <= to
}

// parseClock converts "HH:MM" to a minute of day.
func parseClock(s string) (int, bool) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, false
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, false
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, false
	}
	return h*60 + m, true
}

// ValidateClockWindow checks that both bounds parse and end is strictly
// after start. Used at rule creation time.
func ValidateClockWindow(start, end string) bool {
	if start == "" && end == "" {
		return true
	}
	from, okFrom := parseClock(start)
	to, okTo := parseClock(end)
	return okFrom && okTo && to > from
}
