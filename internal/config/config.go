package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// ConfigurationError indicates the process cannot serve any request at all,
// typically because a required secret is absent from the environment.
type ConfigurationError struct {
	Key    string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration: %s: %s", e.Key, e.Reason)
}

// Config is the process-level configuration, resolved once at startup.
type Config struct {
	Env        string
	ListenAddr string

	// StorageRoot is the base directory for the report registry and files.
	StorageRoot string

	// CaptureBackend selects the screenshot backend: "api" or "chromedp".
	CaptureBackend string

	// CaptureAPIKey authenticates against the remote capture API. Required
	// when CaptureBackend is "api".
	CaptureAPIKey string

	// VisionAPIKey authenticates against the vision-language model API.
	VisionAPIKey string

	// CallTimeout bounds each outbound remote call (capture, vision).
	CallTimeout time.Duration

	// ReportTTL and SweepInterval drive the report cleanup sweeper.
	ReportTTL     time.Duration
	SweepInterval time.Duration
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return def
}

// Load reads configuration from the process environment. A .env file in the
// working directory is honored when present, mirroring local development
// workflows; a missing file is not an error.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Env:            getenv("APP_ENV", "development"),
		ListenAddr:     getenv("LISTEN_ADDR", ":8080"),
		StorageRoot:    getenv("STORAGE_ROOT", os.TempDir()),
		CaptureBackend: getenv("CAPTURE_BACKEND", "api"),
		CaptureAPIKey:  os.Getenv("FIRECRAWL_API_KEY"),
		VisionAPIKey:   os.Getenv("GOOGLE_API_KEY"),
		CallTimeout:    getenvDuration("CALL_TIMEOUT", 60*time.Second),
		ReportTTL:      getenvDuration("REPORT_TTL", time.Hour),
		SweepInterval:  getenvDuration("REPORT_SWEEP_INTERVAL", 5*time.Minute),
	}

	if cfg.VisionAPIKey == "" {
		return cfg, &ConfigurationError{Key: "GOOGLE_API_KEY", Reason: "not set"}
	}
	if cfg.CaptureBackend == "api" && cfg.CaptureAPIKey == "" {
		return cfg, &ConfigurationError{Key: "FIRECRAWL_API_KEY", Reason: "not set (required for the api capture backend)"}
	}

	return cfg, nil
}
