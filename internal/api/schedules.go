/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/friendsincode/framewall/internal/models"
	"github.com/friendsincode/framewall/internal/registry"
)

func (a *API) handleScheduleList(w http.ResponseWriter, r *http.Request) {
	rules, err := a.store.ListScheduleRules(r.Context())
	if err != nil {
		a.logger.Error().Err(err).Msg("list schedules failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, rules)
}

func (a *API) handleScheduleCreate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ContentItemID   string    `json:"content_item_id"`
		StartsAt        time.Time `json:"starts_at"`
		EndsAt          time.Time `json:"ends_at"`
		DaysOfWeek      []int     `json:"days_of_week"`
		ClockStart      string    `json:"clock_start"`
		ClockEnd        string    `json:"clock_end"`
		SortOrder       int       `json:"sort_order"`
		DurationSeconds *int      `json:"duration_seconds"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	rule := &models.ScheduleRule{
		ContentItemID:   req.ContentItemID,
		StartsAt:        req.StartsAt,
		EndsAt:          req.EndsAt,
		DaysOfWeek:      req.DaysOfWeek,
		ClockStart:      req.ClockStart,
		ClockEnd:        req.ClockEnd,
		SortOrder:       req.SortOrder,
		DurationSeconds: req.DurationSeconds,
	}

	err := a.store.CreateScheduleRule(r.Context(), rule)
	switch {
	case errors.Is(err, registry.ErrContentMissing):
		writeError(w, http.StatusUnprocessableEntity, "content_missing")
	case errors.Is(err, registry.ErrInvalidWindow):
		writeError(w, http.StatusUnprocessableEntity, "invalid_window")
	case errors.Is(err, registry.ErrInvalidClock):
		writeError(w, http.StatusUnprocessableEntity, "invalid_clock")
	case err != nil:
		a.logger.Error().Err(err).Msg("create schedule failed")
		writeError(w, http.StatusInternalServerError, "db_error")
	default:
		writeJSON(w, http.StatusCreated, rule)
	}
}

func (a *API) handleScheduleDelete(w http.ResponseWriter, r *http.Request) {
	err := a.store.DeleteScheduleRule(r.Context(), chi.URLParam(r, "ruleID"))
	if errors.Is(err, registry.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func decodeJSON(r *http.Request, dst any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(dst)
}

func parseOptionalInt(raw string) *int {
	if raw == "" {
		return nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return nil
	}
	return &n
}
