package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HIGHLIGHT_KEYWORDS", "")
	t.Setenv("HIGHLIGHT_WINDOW", "")
	t.Setenv("REVENUE_DECIMALS", "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.HighlightWindow != time.Minute {
		t.Errorf("HighlightWindow = %v, want 1m", cfg.HighlightWindow)
	}
	if cfg.RevenueDecimals != 1 {
		t.Errorf("RevenueDecimals = %d, want 1", cfg.RevenueDecimals)
	}
	if len(cfg.HighlightKeywords) == 0 {
		t.Errorf("expected default highlight keywords, got none")
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q, want :8080", cfg.HTTPAddr)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("HIGHLIGHT_KEYWORDS", "草, kusa ,w")
	t.Setenv("HIGHLIGHT_WINDOW", "30s")
	t.Setenv("REVENUE_DECIMALS", "2")
	t.Setenv("ALLOWED_ORIGINS", "https://matsuri.example.com,http://localhost:3000")
	t.Setenv("BLREC_BASE_URL", "http://blrec:2233/")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if got := len(cfg.HighlightKeywords); got != 3 {
		t.Errorf("HighlightKeywords len = %d, want 3", got)
	}
	if cfg.HighlightKeywords[1] != "kusa" {
		t.Errorf("HighlightKeywords[1] = %q, want kusa (trimmed)", cfg.HighlightKeywords[1])
	}
	if cfg.HighlightWindow != 30*time.Second {
		t.Errorf("HighlightWindow = %v, want 30s", cfg.HighlightWindow)
	}
	if cfg.RevenueDecimals != 2 {
		t.Errorf("RevenueDecimals = %d, want 2", cfg.RevenueDecimals)
	}
	if len(cfg.AllowedOrigins) != 2 {
		t.Errorf("AllowedOrigins = %v, want 2 entries", cfg.AllowedOrigins)
	}
	if cfg.RecorderBaseURL != "http://blrec:2233" {
		t.Errorf("RecorderBaseURL = %q, want trailing slash trimmed", cfg.RecorderBaseURL)
	}
}

func TestLoadRejectsBadWindow(t *testing.T) {
	t.Setenv("HIGHLIGHT_WINDOW", "-10s")
	if _, err := Load(); err == nil {
		t.Errorf("expected error for non-positive HIGHLIGHT_WINDOW")
	}
	t.Setenv("HIGHLIGHT_WINDOW", "soon")
	if _, err := Load(); err == nil {
		t.Errorf("expected error for unparseable HIGHLIGHT_WINDOW")
	}
}

func TestValidateSubtitleReady(t *testing.T) {
	t.Setenv("BILI_UID", "12345")
	t.Setenv("BILI_SERIES_ID", "678")
	cfg, _ := Load()
	if err := cfg.ValidateSubtitleReady(); err != nil {
		t.Errorf("expected valid subtitle config, got %v", err)
	}
	if err := os.Unsetenv("BILI_SERIES_ID"); err != nil {
		t.Fatalf("failed to unset BILI_SERIES_ID: %v", err)
	}
	cfg, _ = Load()
	if err := cfg.ValidateSubtitleReady(); err == nil {
		t.Errorf("expected error when missing bilibili envs")
	}
}
