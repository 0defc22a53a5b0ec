// Command pagelens serves the conversion-audit API: submit a URL, watch the
// capture/critique/annotate/compile pipeline stream progress, download the
// PDF report.
package main

import (
	"log"

	"github.com/pagelens/pagelens/internal/app"
	"github.com/pagelens/pagelens/internal/capture"
	"github.com/pagelens/pagelens/internal/config"
	"github.com/pagelens/pagelens/internal/logging"
	"github.com/pagelens/pagelens/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Missing secrets are startup-fatal: the process serves nothing
		// rather than failing every request later.
		log.Fatalf("configuration error: %v", err)
	}

	capture.RegisterDefaultBackends()

	appCfg := app.DefaultConfig()
	appCfg.StorageRoot = cfg.StorageRoot
	appCfg.CaptureCfg.Backend = capture.Backend(cfg.CaptureBackend)
	appCfg.CaptureCfg.APIKey = cfg.CaptureAPIKey
	appCfg.CaptureCfg.Timeout = cfg.CallTimeout
	appCfg.CritiqueCfg.APIKey = cfg.VisionAPIKey
	appCfg.CritiqueCfg.Timeout = cfg.CallTimeout
	appCfg.ReportTTL = cfg.ReportTTL
	appCfg.SweepInterval = cfg.SweepInterval

	logger := logging.NewStdoutLogger("pagelens")

	srv, err := server.NewServer(server.Config{
		ListenAddr: cfg.ListenAddr,
		AppConfig:  appCfg,
		Logger:     logger,
	})
	if err != nil {
		log.Fatalf("server setup error: %v", err)
	}
	defer srv.Close()

	logger.Info("listening",
		logging.Field{Key: "addr", Value: cfg.ListenAddr},
		logging.Field{Key: "capture_backend", Value: cfg.CaptureBackend})

	if err := srv.HTTPServer().ListenAndServe(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
