package app

import (
	"os"
	"time"

	"github.com/pagelens/pagelens/internal/annotate"
	"github.com/pagelens/pagelens/internal/capture"
	"github.com/pagelens/pagelens/internal/critique"
)

// Config carries the runtime configuration for the orchestrator and the
// components it builds. Keep this small; add fields as wiring requires them.
type Config struct {
	// StorageRoot is the base path for the report registry and files.
	StorageRoot string

	// CaptureCfg configures the screenshot backend.
	CaptureCfg capture.Config

	// CritiqueCfg configures the vision analyzer.
	CritiqueCfg critique.Config

	// AnnotateStyle is the fixed marker style.
	AnnotateStyle annotate.Style

	// ReportTTL and SweepInterval drive report cleanup.
	ReportTTL     time.Duration
	SweepInterval time.Duration

	// RunRetention is how long finished runs stay queryable over the API.
	RunRetention time.Duration

	// EventBufferSize is the per-run progress channel capacity. It must
	// exceed the maximum number of events one run can emit (five) so sends
	// never block or drop.
	EventBufferSize int
}

// DefaultConfig returns a Config populated with sensible development defaults.
func DefaultConfig() *Config {
	return &Config{
		StorageRoot: os.TempDir(),
		CaptureCfg: capture.Config{
			Backend: capture.BackendAPI,
			Timeout: 60 * time.Second,
		},
		CritiqueCfg: critique.Config{
			Timeout: 60 * time.Second,
		},
		AnnotateStyle:   annotate.DefaultStyle(),
		ReportTTL:       time.Hour,
		SweepInterval:   5 * time.Minute,
		RunRetention:    30 * time.Minute,
		EventBufferSize: 16,
	}
}
