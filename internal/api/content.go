/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/friendsincode/framewall/internal/models"
	"github.com/friendsincode/framewall/internal/registry"
)

// defaultMaxUploadSize applies when no explicit limit is configured.
const defaultMaxUploadSize = 512 << 20 // 512 MB

func (a *API) handleContentList(w http.ResponseWriter, r *http.Request) {
	items, err := a.store.ListContentItems(r.Context())
	if err != nil {
		a.logger.Error().Err(err).Msg("list content failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (a *API) handleContentGet(w http.ResponseWriter, r *http.Request) {
	item, err := a.store.GetContentItem(r.Context(), chi.URLParam(r, "contentID"))
	if errors.Is(err, registry.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// handleContentUpload accepts a multipart file upload. Videos are probed
// for their natural duration before the file is stored.
func (a *API) handleContentUpload(w http.ResponseWriter, r *http.Request) {
	maxSize := a.cfg.MaxUploadSizeBytes()
	if maxSize <= 0 {
		maxSize = defaultMaxUploadSize
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_multipart")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file_missing")
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = mime.TypeByExtension(filepath.Ext(header.Filename))
	}
	class, ok := classForMime(contentType)
	if !ok {
		writeError(w, http.StatusUnsupportedMediaType, "unsupported_media_type")
		return
	}

	name := r.FormValue("name")
	if name == "" {
		name = header.Filename
	}

	// Spool the upload so videos can be probed before storage, which may
	// be remote.
	tmp, err := os.CreateTemp("", "framewall-upload-*")
	if err != nil {
		a.logger.Error().Err(err).Msg("create temp file failed")
		writeError(w, http.StatusInternalServerError, "upload_error")
		return
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	if _, err := io.Copy(tmp, file); err != nil {
		writeError(w, http.StatusBadRequest, "upload_error")
		return
	}

	var naturalDuration float64
	if class == models.MediaVideo {
		naturalDuration = a.media.ProbeDuration(r.Context(), tmp.Name())
	}

	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		writeError(w, http.StatusInternalServerError, "upload_error")
		return
	}

	contentID := uuid.NewString()
	ext := filepath.Ext(header.Filename)
	path, size, err := a.media.Store(r.Context(), contentID, ext, tmp)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "storage_error")
		return
	}

	item := &models.ContentItem{
		ID:                     contentID,
		Name:                   name,
		MediaClass:             class,
		SourceRef:              path,
		MimeType:               contentType,
		SizeBytes:              size,
		NaturalDurationSeconds: naturalDuration,
	}
	if override := parseOptionalInt(r.FormValue("duration_seconds")); override != nil {
		item.DurationSeconds = override
	}

	if err := a.store.CreateContentItem(r.Context(), item); err != nil {
		// Do not leave an orphan file behind.
		if delErr := a.media.Delete(r.Context(), path); delErr != nil {
			a.logger.Warn().Err(delErr).Str("path", path).Msg("orphan cleanup failed")
		}
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

// handleLinkCreate registers a web page as content; nothing is stored.
func (a *API) handleLinkCreate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name            string `json:"name"`
		URL             string `json:"url"`
		DurationSeconds *int   `json:"duration_seconds"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	parsed, err := url.Parse(req.URL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		writeError(w, http.StatusBadRequest, "invalid_url")
		return
	}
	if req.Name == "" {
		req.Name = parsed.Host
	}

	item := &models.ContentItem{
		Name:            req.Name,
		MediaClass:      models.MediaLink,
		SourceRef:       req.URL,
		DurationSeconds: req.DurationSeconds,
	}
	if err := a.store.CreateContentItem(r.Context(), item); err != nil {
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (a *API) handleContentDelete(w http.ResponseWriter, r *http.Request) {
	contentID := chi.URLParam(r, "contentID")
	item, err := a.store.GetContentItem(r.Context(), contentID)
	if errors.Is(err, registry.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	if err := a.store.DeleteContentItem(r.Context(), contentID); err != nil {
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	// Remove the stored file after the registry row is gone; a leftover
	// file is recoverable, a dangling row is not.
	if item.MediaClass != models.MediaLink {
		if err := a.media.Delete(r.Context(), item.SourceRef); err != nil {
			a.logger.Warn().Err(err).Str("path", item.SourceRef).Msg("file removal failed")
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleContentFile(w http.ResponseWriter, r *http.Request) {
	item, err := a.store.GetContentItem(r.Context(), chi.URLParam(r, "contentID"))
	if errors.Is(err, registry.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	if item.MediaClass == models.MediaLink {
		http.Redirect(w, r, item.SourceRef, http.StatusFound)
		return
	}
	a.media.Serve(w, r, item.SourceRef, item.MimeType)
}

func classForMime(contentType string) (models.MediaClass, bool) {
	switch {
	case strings.HasPrefix(contentType, "image/"):
		return models.MediaImage, true
	case strings.HasPrefix(contentType, "video/"):
		return models.MediaVideo, true
	default:
		return "", false
	}
}
