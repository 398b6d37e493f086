/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"net/http"
	"time"

	"github.com/friendsincode/framewall/internal/models"
	"github.com/friendsincode/framewall/internal/playlist"
	"github.com/friendsincode/framewall/internal/realtime"
)

func (a *API) handleDisplaysList(w http.ResponseWriter, r *http.Request) {
	displays, err := a.store.ListDisplays(r.Context())
	if err != nil {
		a.logger.Error().Err(err).Msg("list displays failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, displays)
}

func (a *API) handleDisplayStates(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.manager.States())
}

func (a *API) handleCommand(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DisplayID string `json:"display_id"`
		Action    string `json:"action"`
		Value     any    `json:"value"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	cmd := models.Command{
		Kind:   models.CommandKind(req.Action),
		Value:  req.Value,
		SentAt: time.Now().UTC(),
	}
	outcome, err := a.commands.Apply(r.Context(), req.DisplayID, cmd)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"outcome": outcome,
			"error":   err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"outcome": outcome})
}

func (a *API) handleConsoleWS(w http.ResponseWriter, r *http.Request) {
	a.hub.HandleConsole(w, r)
}

func (a *API) handlePlayerWS(w http.ResponseWriter, r *http.Request) {
	displayID := r.URL.Query().Get("display_id")
	if displayID == "" {
		writeError(w, http.StatusBadRequest, "display_id_required")
		return
	}
	a.hub.HandleDisplay(w, r, displayID, r.URL.Query().Get("name"))
}

func (a *API) handlePlayerPoll(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DisplayID string             `json:"display_id"`
		Name      string             `json:"name"`
		Ack       []realtime.Message `json:"ack"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.DisplayID == "" {
		writeError(w, http.StatusBadRequest, "display_id_required")
		return
	}

	messages, err := a.hub.Poll(r.Context(), req.DisplayID, req.Name, req.Ack)
	if err != nil {
		a.logger.Error().Err(err).Str("display", req.DisplayID).Msg("poll failed")
		writeError(w, http.StatusInternalServerError, "poll_error")
		return
	}
	if messages == nil {
		messages = []realtime.Message{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

// playlistEntry is a resolved playlist position enriched for the player.
type playlistEntry struct {
	ContentItemID   string  `json:"content_item_id"`
	Name            string  `json:"name"`
	MediaClass      string  `json:"media_class"`
	SourceURL       string  `json:"source_url"`
	DurationSeconds float64 `json:"duration_seconds"`
}

// handlePlayerPlaylist returns the current resolved playlist plus the
// display settings, the bootstrap payload for a connecting player.
func (a *API) handlePlayerPlaylist(w http.ResponseWriter, r *http.Request) {
	snap, err := a.store.Snapshot(r.Context())
	if err != nil {
		a.logger.Error().Err(err).Msg("snapshot failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	items := make(map[string]models.ContentItem, len(snap.Items))
	for _, item := range snap.Items {
		items[item.ID] = item
	}

	entries := playlist.Resolve(time.Now(), snap.Items, snap.Rules, snap.Location())
	out := make([]playlistEntry, 0, len(entries))
	for _, entry := range entries {
		item, ok := items[entry.ContentItemID]
		if !ok {
			continue
		}
		sourceURL := item.SourceRef
		if item.MediaClass != models.MediaLink {
			sourceURL = "/api/v1/content/" + item.ID + "/file"
		}
		out = append(out, playlistEntry{
			ContentItemID:   item.ID,
			Name:            item.Name,
			MediaClass:      string(item.MediaClass),
			SourceURL:       sourceURL,
			DurationSeconds: playlist.Duration(entry, item, snap.Settings).Seconds(),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entries":  out,
		"settings": toSettingsResponse(snap.Settings),
		"resolved": snap.TakenAt,
	})
}
