/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/friendsincode/framewall/internal/auth"
	"github.com/friendsincode/framewall/internal/command"
	"github.com/friendsincode/framewall/internal/config"
	"github.com/friendsincode/framewall/internal/media"
	"github.com/friendsincode/framewall/internal/realtime"
	"github.com/friendsincode/framewall/internal/registry"
	"github.com/friendsincode/framewall/internal/sequencer"
)

const sessionTTL = 12 * time.Hour

// API exposes the HTTP handlers.
type API struct {
	cfg      *config.Config
	store    *registry.Store
	media    *media.Service
	manager  *sequencer.Manager
	commands *command.Interpreter
	hub      *realtime.Hub
	logger   zerolog.Logger
}

// New creates the API router wrapper.
func New(cfg *config.Config, store *registry.Store, mediaSvc *media.Service, manager *sequencer.Manager, commands *command.Interpreter, hub *realtime.Hub, logger zerolog.Logger) *API {
	return &API{
		cfg:      cfg,
		store:    store,
		media:    mediaSvc,
		manager:  manager,
		commands: commands,
		hub:      hub,
		logger:   logger,
	}
}

// Routes registers every endpoint on the router.
func (a *API) Routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", a.handleHealth)
		r.Post("/auth/login", a.handleLogin)

		// Content files are fetched by displays (shared token) and by
		// the admin console preview (JWT); accept either credential.
		r.Group(func(r chi.Router) {
			r.Use(a.eitherAuth())
			r.Get("/content/{contentID}/file", a.handleContentFile)
		})

		// Admin console surface.
		r.Group(func(r chi.Router) {
			r.Use(auth.AdminMiddleware([]byte(a.cfg.JWTSigningKey)))

			r.Route("/content", func(r chi.Router) {
				r.Get("/", a.handleContentList)
				r.Post("/", a.handleContentUpload)
				r.Post("/link", a.handleLinkCreate)
				r.Get("/{contentID}", a.handleContentGet)
				r.Delete("/{contentID}", a.handleContentDelete)
			})

			r.Route("/schedules", func(r chi.Router) {
				r.Get("/", a.handleScheduleList)
				r.Post("/", a.handleScheduleCreate)
				r.Delete("/{ruleID}", a.handleScheduleDelete)
			})

			r.Route("/settings", func(r chi.Router) {
				r.Get("/", a.handleSettingsGet)
				r.Put("/", a.handleSettingsUpdate)
			})

			r.Get("/backup/export", a.handleExport)
			r.Post("/backup/import", a.handleImport)

			r.Route("/displays", func(r chi.Router) {
				r.Get("/", a.handleDisplaysList)
				r.Get("/states", a.handleDisplayStates)
			})

			r.Post("/commands", a.handleCommand)
			r.Get("/console/ws", a.handleConsoleWS)
		})

		// Display player surface.
		r.Group(func(r chi.Router) {
			r.Use(auth.PlayerMiddleware(a.cfg.PlayerToken))

			r.Get("/player/playlist", a.handlePlayerPlaylist)
			r.Get("/player/ws", a.handlePlayerWS)
			r.Post("/player/poll", a.handlePlayerPoll)
		})
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if err := a.media.CheckStorageAccess(); err != nil {
		a.logger.Warn().Err(err).Msg("storage access check failed")
		status = "degraded"
	}
	writeJSON(w, code, map[string]string{"status": status})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	settings, err := a.store.GetSettings(r.Context())
	if err != nil {
		a.logger.Error().Err(err).Msg("load settings failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	if settings.AdminPasswordHash == "" || !auth.CheckPassword(settings.AdminPasswordHash, req.Password) {
		writeError(w, http.StatusUnauthorized, "invalid_credentials")
		return
	}

	token, err := auth.Issue([]byte(a.cfg.JWTSigningKey), "admin", "admin", sessionTTL)
	if err != nil {
		a.logger.Error().Err(err).Msg("issue token failed")
		writeError(w, http.StatusInternalServerError, "token_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token":      token,
		"expires_in": int(sessionTTL.Seconds()),
	})
}

// eitherAuth accepts the shared player token or a valid admin JWT.
func (a *API) eitherAuth() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		admin := auth.AdminMiddleware([]byte(a.cfg.JWTSigningKey))(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if a.cfg.PlayerToken == "" {
				next.ServeHTTP(w, r)
				return
			}
			if token := bearerToken(r); token != "" &&
				subtle.ConstantTimeCompare([]byte(token), []byte(a.cfg.PlayerToken)) == 1 {
				next.ServeHTTP(w, r)
				return
			}
			admin.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if len(header) > 7 && (header[:7] == "Bearer " || header[:7] == "bearer ") {
		return header[7:]
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
