package config_test

import (
	"errors"
	"testing"
	"time"

	"github.com/pagelens/pagelens/internal/config"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"APP_ENV", "LISTEN_ADDR", "STORAGE_ROOT", "CAPTURE_BACKEND",
		"FIRECRAWL_API_KEY", "GOOGLE_API_KEY", "CALL_TIMEOUT",
		"REPORT_TTL", "REPORT_SWEEP_INTERVAL",
	} {
		t.Setenv(k, "")
	}
}

func TestLoad_MissingVisionKey(t *testing.T) {
	clearEnv(t)
	t.Setenv("FIRECRAWL_API_KEY", "fc-key")

	_, err := config.Load()
	if err == nil {
		t.Fatal("expected error for missing GOOGLE_API_KEY")
	}
	var cfgErr *config.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError, got %T: %v", err, err)
	}
	if cfgErr.Key != "GOOGLE_API_KEY" {
		t.Errorf("expected GOOGLE_API_KEY, got %q", cfgErr.Key)
	}
}

func TestLoad_MissingCaptureKeyForAPIBackend(t *testing.T) {
	clearEnv(t)
	t.Setenv("GOOGLE_API_KEY", "g-key")

	_, err := config.Load()
	var cfgErr *config.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
	if cfgErr.Key != "FIRECRAWL_API_KEY" {
		t.Errorf("expected FIRECRAWL_API_KEY, got %q", cfgErr.Key)
	}
}

func TestLoad_ChromedpBackendNeedsNoCaptureKey(t *testing.T) {
	clearEnv(t)
	t.Setenv("GOOGLE_API_KEY", "g-key")
	t.Setenv("CAPTURE_BACKEND", "chromedp")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.CaptureBackend != "chromedp" {
		t.Errorf("expected chromedp backend, got %q", cfg.CaptureBackend)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("GOOGLE_API_KEY", "g-key")
	t.Setenv("FIRECRAWL_API_KEY", "fc-key")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":8080" {
		t.Errorf("expected :8080, got %q", cfg.ListenAddr)
	}
	if cfg.CallTimeout != 60*time.Second {
		t.Errorf("expected 60s call timeout, got %s", cfg.CallTimeout)
	}
	if cfg.ReportTTL != time.Hour {
		t.Errorf("expected 1h report TTL, got %s", cfg.ReportTTL)
	}
}

func TestLoad_DurationOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("GOOGLE_API_KEY", "g-key")
	t.Setenv("FIRECRAWL_API_KEY", "fc-key")
	t.Setenv("CALL_TIMEOUT", "30s")
	t.Setenv("REPORT_TTL", "120")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.CallTimeout != 30*time.Second {
		t.Errorf("expected 30s, got %s", cfg.CallTimeout)
	}
	// Bare integers are read as seconds
	if cfg.ReportTTL != 120*time.Second {
		t.Errorf("expected 120s, got %s", cfg.ReportTTL)
	}
}
