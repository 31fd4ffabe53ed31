package main

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"daybook/config"
	"daybook/upload"
)

func TestParseLogLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := parseLogLevel(in); got != want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewUploadBackend(t *testing.T) {
	cfg := config.Defaults()
	cfg.UploadDir = filepath.Join(t.TempDir(), "uploads")

	backend, err := newUploadBackend(context.Background(), cfg)
	if err != nil {
		t.Fatalf("local backend: %v", err)
	}
	if _, ok := backend.(*upload.LocalBackend); !ok {
		t.Errorf("Expected *upload.LocalBackend, got %T", backend)
	}

	cfg.UploadBackend = "ftp"
	if _, err := newUploadBackend(context.Background(), cfg); err == nil {
		t.Error("Expected unknown backend to fail")
	}
}
