/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package media

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/framewall/internal/config"
)

// Storage abstracts where uploaded content files live.
type Storage interface {
	// Store writes the file and returns its storage path and size.
	Store(ctx context.Context, contentID, extension string, file io.Reader) (string, int64, error)
	Delete(ctx context.Context, path string) error
	// Serve delivers the file to an HTTP client with range support, so
	// video elements can seek.
	Serve(w http.ResponseWriter, r *http.Request, path, contentType string)
	CheckAccess(ctx context.Context) error
}

// Service manages content file storage and duration probing.
type Service struct {
	storage Storage
	prober  *Prober
	logger  zerolog.Logger
}

// NewService creates a media service using filesystem or S3 storage
// depending on whether a bucket is configured.
func NewService(cfg *config.Config, logger zerolog.Logger) (*Service, error) {
	var storage Storage

	if cfg.S3Bucket != "" {
		s3Storage, err := NewS3Storage(context.Background(), S3Config{
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			Region:          cfg.S3Region,
			Bucket:          cfg.S3Bucket,
			Endpoint:        cfg.S3Endpoint,
			PublicBaseURL:   cfg.S3PublicBaseURL,
			UsePathStyle:    cfg.S3UsePathStyle,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("initialize s3 storage: %w", err)
		}
		storage = s3Storage
	} else {
		storage = NewFilesystemStorage(cfg.MediaRoot, logger)
	}

	return &Service{
		storage: storage,
		prober:  NewProber(cfg.FFProbeBin, logger),
		logger:  logger,
	}, nil
}

// Store saves an uploaded file and returns its storage path and size.
func (s *Service) Store(ctx context.Context, contentID, extension string, file io.Reader) (string, int64, error) {
	path, size, err := s.storage.Store(ctx, contentID, extension, file)
	if err != nil {
		s.logger.Error().Err(err).Str("content_id", contentID).Msg("media store failed")
		return "", 0, fmt.Errorf("store media: %w", err)
	}
	s.logger.Info().
		Str("content_id", contentID).
		Str("path", path).
		Int64("size", size).
		Msg("media stored")
	return path, size, nil
}

// Delete removes a stored file.
func (s *Service) Delete(ctx context.Context, path string) error {
	if err := s.storage.Delete(ctx, path); err != nil {
		s.logger.Error().Err(err).Str("path", path).Msg("media delete failed")
		return fmt.Errorf("delete media: %w", err)
	}
	return nil
}

// Serve streams a stored file to an HTTP client.
func (s *Service) Serve(w http.ResponseWriter, r *http.Request, path, contentType string) {
	s.storage.Serve(w, r, path, contentType)
}

// ProbeDuration returns the duration in seconds of a local media file,
// or 0 when probing is unavailable.
func (s *Service) ProbeDuration(ctx context.Context, localPath string) float64 {
	seconds, err := s.prober.Duration(ctx, localPath)
	if err != nil {
		s.logger.Warn().Err(err).Str("path", localPath).Msg("duration probe failed")
		return 0
	}
	return seconds
}

// CheckStorageAccess verifies the storage backend is reachable.
func (s *Service) CheckStorageAccess() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.storage.CheckAccess(ctx)
}

// buildContentPath fans files out over two nested directory levels so no
// single directory accumulates thousands of entries.
func buildContentPath(contentID, extension string) string {
	if len(contentID) < 4 {
		return contentID + extension
	}
	return filepath.Join(contentID[0:2], contentID[2:4], contentID+extension)
}
