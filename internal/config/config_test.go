/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("FRAMEWALL_JWT_SIGNING_KEY", "test-secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.DBBackend != DatabaseSQLite {
		t.Errorf("DBBackend = %s, want sqlite", cfg.DBBackend)
	}
	if cfg.HTTPPort != 8080 {
		t.Errorf("HTTPPort = %d, want 8080", cfg.HTTPPort)
	}
	if cfg.EventBus != EventBusMemory {
		t.Errorf("EventBus = %s, want memory", cfg.EventBus)
	}
	if cfg.ResolveInterval != time.Minute {
		t.Errorf("ResolveInterval = %s, want 1m", cfg.ResolveInterval)
	}
}

func TestLoadRequiresSigningKey(t *testing.T) {
	t.Setenv("FRAMEWALL_JWT_SIGNING_KEY", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when signing key is missing")
	}
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	t.Setenv("FRAMEWALL_JWT_SIGNING_KEY", "test-secret")
	t.Setenv("FRAMEWALL_DB_BACKEND", "mongodb")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown database backend")
	}
}

func TestResolveIntervalFloor(t *testing.T) {
	t.Setenv("FRAMEWALL_JWT_SIGNING_KEY", "test-secret")
	t.Setenv("FRAMEWALL_RESOLVE_INTERVAL_SECONDS", "5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ResolveInterval != time.Minute {
		t.Errorf("ResolveInterval = %s, want floor of 1m", cfg.ResolveInterval)
	}
}

func TestProductionRequiresPlayerToken(t *testing.T) {
	t.Setenv("FRAMEWALL_JWT_SIGNING_KEY", "test-secret")
	t.Setenv("FRAMEWALL_ENV", "production")
	t.Setenv("FRAMEWALL_PLAYER_TOKEN", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when player token missing in production")
	}
}
