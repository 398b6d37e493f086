/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/friendsincode/framewall/internal/auth"
	"github.com/friendsincode/framewall/internal/command"
	"github.com/friendsincode/framewall/internal/config"
	"github.com/friendsincode/framewall/internal/events"
	"github.com/friendsincode/framewall/internal/media"
	"github.com/friendsincode/framewall/internal/models"
	"github.com/friendsincode/framewall/internal/realtime"
	"github.com/friendsincode/framewall/internal/registry"
	"github.com/friendsincode/framewall/internal/sequencer"
)

func testAPI(t *testing.T) (*API, *registry.Store, chi.Router) {
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

	cfg := &config.Config{
		JWTSigningKey: "test-signing-key",
		PlayerToken:   "player-token",
		MediaRoot:     t.TempDir(),
	}

	bus := events.NewBus()
	store := registry.New(db, bus, zerolog.Nop())
	mediaSvc, err := media.NewService(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("media service: %v", err)
	}
	manager := sequencer.NewManager(store, bus, time.Minute, zerolog.Nop())
	t.Cleanup(func() { manager.Shutdown() })
	interp := command.New(store, manager, bus, zerolog.Nop())
	hub := realtime.NewHub(store, manager, interp, bus, zerolog.Nop())

	api := New(cfg, store, mediaSvc, manager, interp, hub, zerolog.Nop())
	router := chi.NewRouter()
	api.Routes(router)
	return api, store, router
}

func adminToken(t *testing.T) string {
	t.Helper()
	token, err := auth.Issue([]byte("test-signing-key"), "admin", "admin", time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func doJSON(t *testing.T, router chi.Router, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestLoginFlow(t *testing.T) {
	_, store, router := testAPI(t)

	hash, err := auth.HashPassword("correct horse")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if _, err := store.UpdateSettings(t.Context(), func(s *models.Settings) {
		s.AdminPasswordHash = hash
	}); err != nil {
		t.Fatalf("seed password: %v", err)
	}

	rec := doJSON(t, router, "POST", "/api/v1/auth/login", "", map[string]string{"password": "wrong"})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong password: status = %d", rec.Code)
	}

	rec = doJSON(t, router, "POST", "/api/v1/auth/login", "", map[string]string{"password": "correct horse"})
	if rec.Code != http.StatusOK {
		t.Fatalf("login: status = %d body=%s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil || resp.Token == "" {
		t.Fatalf("login response: %s", rec.Body.String())
	}

	// The issued token works on an admin endpoint.
	rec = doJSON(t, router, "GET", "/api/v1/content/", resp.Token, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("content list with issued token: status = %d", rec.Code)
	}
}

func TestAdminEndpointsRequireAuth(t *testing.T) {
	_, _, router := testAPI(t)
	rec := doJSON(t, router, "GET", "/api/v1/content/", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestLinkContentLifecycle(t *testing.T) {
	_, _, router := testAPI(t)
	token := adminToken(t)

	rec := doJSON(t, router, "POST", "/api/v1/content/link", token, map[string]any{
		"name":             "dashboard",
		"url":              "https://example.com/board",
		"duration_seconds": 45,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create link: status = %d body=%s", rec.Code, rec.Body.String())
	}
	var item models.ContentItem
	if err := json.Unmarshal(rec.Body.Bytes(), &item); err != nil {
		t.Fatalf("decode item: %v", err)
	}
	if item.MediaClass != models.MediaLink || item.DurationSeconds == nil || *item.DurationSeconds != 45 {
		t.Errorf("item = %+v", item)
	}

	rec = doJSON(t, router, "POST", "/api/v1/content/link", token, map[string]any{
		"url": "ftp://example.com/nope",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad scheme: status = %d", rec.Code)
	}

	rec = doJSON(t, router, "DELETE", "/api/v1/content/"+item.ID, token, nil)
	if rec.Code != http.StatusNoContent {
		t.Errorf("delete: status = %d", rec.Code)
	}
	rec = doJSON(t, router, "GET", "/api/v1/content/"+item.ID, token, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("get after delete: status = %d", rec.Code)
	}
}

func TestScheduleValidationErrors(t *testing.T) {
	_, store, router := testAPI(t)
	token := adminToken(t)

	rec := doJSON(t, router, "POST", "/api/v1/schedules/", token, map[string]any{
		"content_item_id": "missing",
		"starts_at":       time.Now(),
		"ends_at":         time.Now().Add(time.Hour),
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("missing content: status = %d", rec.Code)
	}

	item := &models.ContentItem{Name: "a", MediaClass: models.MediaImage, SourceRef: "x"}
	if err := store.CreateContentItem(t.Context(), item); err != nil {
		t.Fatalf("create item: %v", err)
	}

	rec = doJSON(t, router, "POST", "/api/v1/schedules/", token, map[string]any{
		"content_item_id": item.ID,
		"starts_at":       time.Now().Add(time.Hour),
		"ends_at":         time.Now(),
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("inverted window: status = %d", rec.Code)
	}

	rec = doJSON(t, router, "POST", "/api/v1/schedules/", token, map[string]any{
		"content_item_id": item.ID,
		"starts_at":       time.Now(),
		"ends_at":         time.Now().Add(time.Hour),
		"clock_start":     "09:00",
		"clock_end":       "17:00",
		"days_of_week":    []int{1, 2, 3},
	})
	if rec.Code != http.StatusCreated {
		t.Errorf("valid rule: status = %d body=%s", rec.Code, rec.Body.String())
	}
}

func TestSettingsUpdate(t *testing.T) {
	_, _, router := testAPI(t)
	token := adminToken(t)

	rec := doJSON(t, router, "PUT", "/api/v1/settings/", token, map[string]any{
		"brightness":  150,
		"orientation": "portrait",
		"timezone":    "UTC",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("update: status = %d body=%s", rec.Code, rec.Body.String())
	}
	var resp settingsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Brightness != 150 || resp.Orientation != models.OrientationPortrait {
		t.Errorf("settings = %+v", resp)
	}

	rec = doJSON(t, router, "PUT", "/api/v1/settings/", token, map[string]any{
		"timezone": "Not/AZone",
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("bad timezone: status = %d", rec.Code)
	}
}

func TestCommandEndpoint(t *testing.T) {
	_, _, router := testAPI(t)
	token := adminToken(t)

	rec := doJSON(t, router, "POST", "/api/v1/commands", token, map[string]any{
		"action": "brightness",
		"value":  80,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("command: status = %d body=%s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Outcome string `json:"outcome"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Outcome != string(command.OutcomeApplied) {
		t.Errorf("outcome = %s", resp.Outcome)
	}
}

func TestPlayerPlaylistBootstrap(t *testing.T) {
	_, store, router := testAPI(t)

	item := &models.ContentItem{Name: "a", MediaClass: models.MediaImage, SourceRef: "ab/cd/a.png"}
	if err := store.CreateContentItem(t.Context(), item); err != nil {
		t.Fatalf("create item: %v", err)
	}

	rec := doJSON(t, router, "GET", "/api/v1/player/playlist", "player-token", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("playlist: status = %d body=%s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Entries []playlistEntry `json:"entries"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Entries) != 1 {
		t.Fatalf("entries = %+v", resp.Entries)
	}
	entry := resp.Entries[0]
	if entry.SourceURL != "/api/v1/content/"+item.ID+"/file" {
		t.Errorf("source url = %s", entry.SourceURL)
	}
	if entry.DurationSeconds != 10 {
		t.Errorf("duration = %f, want default image 10s", entry.DurationSeconds)
	}

	// Player endpoints reject a bad token.
	rec = doJSON(t, router, "GET", "/api/v1/player/playlist", "wrong", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("bad token: status = %d", rec.Code)
	}
}
