/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"net/http"
	"time"

	"github.com/friendsincode/framewall/internal/auth"
	"github.com/friendsincode/framewall/internal/models"
)

// settingsResponse omits the password hash.
type settingsResponse struct {
	Brightness          int                `json:"brightness"`
	Orientation         models.Orientation `json:"orientation"`
	AutoStart           bool               `json:"auto_start"`
	DefaultImageSeconds int                `json:"default_image_seconds"`
	DefaultLinkSeconds  int                `json:"default_link_seconds"`
	Timezone            string             `json:"timezone"`
}

func toSettingsResponse(s models.Settings) settingsResponse {
	return settingsResponse{
		Brightness:          s.Brightness,
		Orientation:         s.Orientation,
		AutoStart:           s.AutoStart,
		DefaultImageSeconds: s.DefaultImageSeconds,
		DefaultLinkSeconds:  s.DefaultLinkSeconds,
		Timezone:            s.Timezone,
	}
}

func (a *API) handleSettingsGet(w http.ResponseWriter, r *http.Request) {
	settings, err := a.store.GetSettings(r.Context())
	if err != nil {
		a.logger.Error().Err(err).Msg("load settings failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, toSettingsResponse(settings))
}

func (a *API) handleSettingsUpdate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Brightness          *int    `json:"brightness"`
		Orientation         *string `json:"orientation"`
		AutoStart           *bool   `json:"auto_start"`
		DefaultImageSeconds *int    `json:"default_image_seconds"`
		DefaultLinkSeconds  *int    `json:"default_link_seconds"`
		Timezone            *string `json:"timezone"`
		AdminPassword       *string `json:"admin_password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	if req.Timezone != nil && *req.Timezone != "" {
		if _, err := time.LoadLocation(*req.Timezone); err != nil {
			writeError(w, http.StatusUnprocessableEntity, "invalid_timezone")
			return
		}
	}

	var passwordHash string
	if req.AdminPassword != nil && *req.AdminPassword != "" {
		hash, err := auth.HashPassword(*req.AdminPassword)
		if err != nil {
			a.logger.Error().Err(err).Msg("hash password failed")
			writeError(w, http.StatusInternalServerError, "hash_error")
			return
		}
		passwordHash = hash
	}

	updated, err := a.store.UpdateSettings(r.Context(), func(s *models.Settings) {
		if req.Brightness != nil {
			s.Brightness = *req.Brightness
		}
		if req.Orientation != nil {
			s.Orientation = models.Orientation(*req.Orientation)
		}
		if req.AutoStart != nil {
			s.AutoStart = *req.AutoStart
		}
		if req.DefaultImageSeconds != nil && *req.DefaultImageSeconds > 0 {
			s.DefaultImageSeconds = *req.DefaultImageSeconds
		}
		if req.DefaultLinkSeconds != nil && *req.DefaultLinkSeconds > 0 {
			s.DefaultLinkSeconds = *req.DefaultLinkSeconds
		}
		if req.Timezone != nil {
			s.Timezone = *req.Timezone
		}
		if passwordHash != "" {
			s.AdminPasswordHash = passwordHash
		}
	})
	if err != nil {
		a.logger.Error().Err(err).Msg("update settings failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, toSettingsResponse(updated))
}

func (a *API) handleExport(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	w.Header().Set("Content-Disposition", `attachment; filename="framewall-backup.yaml"`)
	if err := a.store.Export(r.Context(), w); err != nil {
		a.logger.Error().Err(err).Msg("export failed")
	}
}

func (a *API) handleImport(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	if err := a.store.Import(r.Context(), r.Body); err != nil {
		a.logger.Error().Err(err).Msg("import failed")
		writeError(w, http.StatusUnprocessableEntity, "invalid_backup")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "imported"})
}
