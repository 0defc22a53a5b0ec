package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/pagelens/pagelens/internal/annotate"
	"github.com/pagelens/pagelens/internal/app"
	"github.com/pagelens/pagelens/internal/capture"
	"github.com/pagelens/pagelens/internal/critique"
	"github.com/pagelens/pagelens/internal/logging"
	"github.com/pagelens/pagelens/internal/pagemeta"
	"github.com/pagelens/pagelens/internal/report"

	_ "modernc.org/sqlite" // SQLite driver
)

// Server is the HTTP + SSE + WebSocket API surface for pagelens.
type Server struct {
	cfg          Config
	orchestrator *app.Orchestrator
	registry     *report.Registry
	router       chi.Router
	upgrader     websocket.Upgrader
	logger       logging.Logger
	registryDB   *sql.DB

	sweepCancel context.CancelFunc
}

// NewServer creates a new Server with its own Orchestrator and report
// registry.
func NewServer(cfg Config) (*Server, error) {
	if cfg.AppConfig == nil {
		cfg.AppConfig = app.DefaultConfig()
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewStdoutLogger("Server")
	}

	storageRoot := cfg.AppConfig.StorageRoot
	if err := os.MkdirAll(storageRoot, 0o755); err != nil {
		return nil, fmt.Errorf("creating storage root %s: %w", storageRoot, err)
	}

	db, err := sql.Open("sqlite", filepath.Join(storageRoot, "pagelens.db"))
	if err != nil {
		return nil, fmt.Errorf("opening report database: %w", err)
	}

	registry, err := report.NewRegistry(db, logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating report registry: %w", err)
	}

	comps, err := buildComponents(cfg, registry, logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	orch := app.NewOrchestrator(cfg.AppConfig, comps, logger)

	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	registry.StartSweeper(sweepCtx, cfg.AppConfig.ReportTTL, cfg.AppConfig.SweepInterval)

	s := &Server{
		cfg:          cfg,
		orchestrator: orch,
		registry:     registry,
		router:       chi.NewRouter(),
		logger:       logger,
		registryDB:   db,
		sweepCancel:  sweepCancel,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// TODO: tighten for production
				return true
			},
		},
	}

	s.routes()
	return s, nil
}

func buildComponents(cfg Config, registry *report.Registry, logger logging.Logger) (app.Components, error) {
	compiler, err := report.NewCompiler(filepath.Join(cfg.AppConfig.StorageRoot, "reports"), logger)
	if err != nil {
		return app.Components{}, fmt.Errorf("creating report compiler: %w", err)
	}

	if cfg.Components != nil {
		comps := *cfg.Components
		if comps.Renderer == nil {
			comps.Renderer = annotate.NewRenderer(cfg.AppConfig.AnnotateStyle, logger)
		}
		if comps.Compiler == nil {
			comps.Compiler = compiler
		}
		if comps.Registry == nil {
			comps.Registry = registry
		}
		return comps, nil
	}

	capClient, err := capture.NewClient(cfg.AppConfig.CaptureCfg, logger)
	if err != nil {
		return app.Components{}, fmt.Errorf("creating capture client: %w", err)
	}

	analyzer, err := critique.NewGeminiAnalyzer(cfg.AppConfig.CritiqueCfg, logger, nil)
	if err != nil {
		return app.Components{}, fmt.Errorf("creating vision analyzer: %w", err)
	}

	return app.Components{
		Capture:  capClient,
		Analyzer: analyzer,
		Renderer: annotate.NewRenderer(cfg.AppConfig.AnnotateStyle, logger),
		Meta:     pagemeta.NewFetcher(logger, nil),
		Compiler: compiler,
		Registry: registry,
	}, nil
}

// Orchestrator returns the underlying orchestrator for advanced use (tests, etc.).
func (s *Server) Orchestrator() *app.Orchestrator {
	return s.orchestrator
}

func (s *Server) routes() {
	r := s.router

	r.Use(s.corsMiddleware)

	// CORS preflight
	r.Options("/api/analyses", s.optionsHandler("GET, POST"))
	r.Options("/api/analyses/{runID}", s.optionsHandler("GET, DELETE"))
	r.Options("/api/stream", s.optionsHandler("GET"))
	r.Options("/api/reports/{reportID}", s.optionsHandler("GET"))
	r.Options("/ws/analyze", s.optionsHandler("GET"))

	// Runs over REST
	r.Post("/api/analyses", s.handleStartAnalysis)
	r.Get("/api/analyses", s.handleListRuns)
	r.Get("/api/analyses/{runID}", s.handleGetRun)
	r.Delete("/api/analyses/{runID}", s.handleCancelRun)

	// Progress streams
	r.Get("/api/stream", s.handleStream)
	r.Get("/ws/analyze", s.handleAnalyzeWS)

	// Report download
	r.Get("/api/reports/{reportID}", s.handleDownloadReport)
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		next.ServeHTTP(w, r)
	})
}

func (s *Server) optionsHandler(methods string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Methods", methods)
		w.WriteHeader(http.StatusNoContent)
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	fields := []logging.Field{
		{Key: "method", Value: r.Method},
		{Key: "path", Value: r.URL.Path},
	}
	if q := r.URL.Query(); len(q) > 0 {
		fields = append(fields, logging.Field{Key: "query", Value: q})
	}

	s.logger.Info("http_request", fields...)

	s.router.ServeHTTP(w, r)
}

// Close shuts down the orchestrator and underlying resources.
func (s *Server) Close() {
	if s.sweepCancel != nil {
		s.sweepCancel()
	}
	if s.orchestrator != nil {
		s.orchestrator.Close()
	}
	if s.registryDB != nil {
		s.registryDB.Close()
	}
}

// HTTPServer creates an *http.Server ready to ListenAndServe.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:         s.cfg.ListenAddr,
		Handler:      s,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // allow streaming
	}
}

// --- JSON helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// --- HTTP handlers ---

func (s *Server) handleStartAnalysis(w http.ResponseWriter, r *http.Request) {
	var body startAnalysisRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	// Detached context: a REST-started run outlives the request.
	run, err := s.orchestrator.StartAnalysis(context.Background(), body.URL)
	if err != nil {
		s.logger.Warn("starting analysis", logging.Field{Key: "error", Value: err.Error()})
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Info("started analysis", logging.Field{Key: "run_id", Value: run.ID})
	writeJSON(w, http.StatusAccepted, run)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs := s.orchestrator.ListRuns()
	s.logger.Info("listed runs", logging.Field{Key: "count", Value: len(runs)})
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	run := s.orchestrator.GetRun(runID)
	if run == nil {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	s.orchestrator.CancelRun(runID)
	s.logger.Info("canceled run", logging.Field{Key: "run_id", Value: runID})
	writeJSON(w, http.StatusNoContent, nil)
}

// handleStream starts a run for ?url= and streams its ProgressEvents as
// server-sent events until the terminal event.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	url := r.URL.Query().Get("url")

	// The run is tied to the request context: a client disconnect cancels
	// the stream and, best effort, the pipeline behind it.
	run, err := s.orchestrator.StartAnalysis(r.Context(), url)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for ev := range run.Events {
		data, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			s.orchestrator.CancelRun(run.ID)
			return
		}
		flusher.Flush()
	}
}

// handleAnalyzeWS is the websocket flavor of handleStream.
func (s *Server) handleAnalyzeWS(w http.ResponseWriter, r *http.Request) {
	url := r.URL.Query().Get("url")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrading to websocket", logging.Field{Key: "error", Value: err.Error()})
		return
	}
	defer conn.Close()

	run, err := s.orchestrator.StartAnalysis(r.Context(), url)
	if err != nil {
		_ = conn.WriteJSON(map[string]string{"error": err.Error()})
		return
	}

	for ev := range run.Events {
		if err := conn.WriteJSON(ev); err != nil {
			// Assume client disconnected; cancel the run
			s.orchestrator.CancelRun(run.ID)
			return
		}
	}
}

func (s *Server) handleDownloadReport(w http.ResponseWriter, r *http.Request) {
	reportID := chi.URLParam(r, "reportID")

	rep, err := s.registry.Get(r.Context(), reportID)
	if err != nil {
		if errors.Is(err, report.ErrNotFound) {
			writeError(w, http.StatusNotFound, "report not found")
			return
		}
		s.logger.Warn("resolving report", logging.Field{Key: "error", Value: err.Error()})
		writeError(w, http.StatusInternalServerError, "failed to resolve report")
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(rep.Path)))
	http.ServeFile(w, r, rep.Path)
}
