/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package media

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestFilesystemStoreServeDelete(t *testing.T) {
	root := t.TempDir()
	fs := NewFilesystemStorage(root, zerolog.Nop())
	ctx := context.Background()

	path, size, err := fs.Store(ctx, "0123456789abcdef", ".png", strings.NewReader("fake image bytes"))
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if size != int64(len("fake image bytes")) {
		t.Errorf("size = %d", size)
	}
	if path != "01/23/0123456789abcdef.png" {
		t.Errorf("path = %s, want fanned-out layout", path)
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/file", nil)
	fs.Serve(rec, req, path, "image/png")
	if rec.Code != 200 {
		t.Fatalf("serve status = %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	if string(body) != "fake image bytes" {
		t.Errorf("served body = %q", body)
	}
	if got := rec.Header().Get("Content-Type"); got != "image/png" {
		t.Errorf("content type = %q", got)
	}

	// Range requests must work for video seeking.
	rec = httptest.NewRecorder()
	req = httptest.NewRequest("GET", "/file", nil)
	req.Header.Set("Range", "bytes=5-9")
	fs.Serve(rec, req, path, "image/png")
	if rec.Code != 206 {
		t.Fatalf("range status = %d, want 206", rec.Code)
	}
	body, _ = io.ReadAll(rec.Body)
	if string(body) != "image" {
		t.Errorf("range body = %q, want %q", body, "image")
	}

	if err := fs.Delete(ctx, path); err != nil {
		t.Fatalf("delete: %v", err)
	}
	// Deleting again is not an error.
	if err := fs.Delete(ctx, path); err != nil {
		t.Errorf("repeat delete: %v", err)
	}

	rec = httptest.NewRecorder()
	fs.Serve(rec, httptest.NewRequest("GET", "/file", nil), path, "")
	if rec.Code != 404 {
		t.Errorf("serve after delete = %d, want 404", rec.Code)
	}
}

func TestServeRejectsTraversal(t *testing.T) {
	fs := NewFilesystemStorage(t.TempDir(), zerolog.Nop())
	rec := httptest.NewRecorder()
	fs.Serve(rec, httptest.NewRequest("GET", "/file", nil), "../../etc/passwd", "")
	if rec.Code != 400 {
		t.Errorf("traversal status = %d, want 400", rec.Code)
	}
}

func TestBuildContentPath(t *testing.T) {
	if got := buildContentPath("ab", ".png"); got != "ab.png" {
		t.Errorf("short id path = %s", got)
	}
	if got := buildContentPath("abcdef", ".mp4"); got != "ab/cd/abcdef.mp4" {
		t.Errorf("path = %s", got)
	}
}
