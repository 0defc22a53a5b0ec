package app

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/bpradana/weave"
	"github.com/google/uuid"

	"github.com/pagelens/pagelens/internal/annotate"
	"github.com/pagelens/pagelens/internal/capture"
	"github.com/pagelens/pagelens/internal/critique"
	"github.com/pagelens/pagelens/internal/logging"
	"github.com/pagelens/pagelens/internal/pagemeta"
	"github.com/pagelens/pagelens/internal/report"
)

// Stage identifies where in the pipeline a run currently is.
type Stage string

const (
	StageIdle       Stage = "idle"
	StageCapturing  Stage = "capturing"
	StageAnalyzing  Stage = "analyzing"
	StageAnnotating Stage = "annotating"
	StageCompiling  Stage = "compiling"
	StageDone       Stage = "done"
	StageFailed     Stage = "failed"
)

// ProgressEvent is one stage-transition notification streamed to the client.
// Exactly one terminal event (done or failed) is emitted per run.
type ProgressEvent struct {
	RunID    string `json:"run_id"`
	Stage    Stage  `json:"stage"`
	Message  string `json:"message"`
	ReportID string `json:"report_id,omitempty"`
}

// Run is one analysis request moving through the pipeline.
type Run struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Status    Stage     `json:"status"`
	Error     string    `json:"error,omitempty"`
	ReportID  string    `json:"report_id,omitempty"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at,omitzero"`

	// Events delivers this run's progress stream to exactly one consumer,
	// in stage order. Closed after the terminal event.
	Events chan ProgressEvent `json:"-"`
}

// Components are the pipeline stages the orchestrator sequences. Interfaces
// where multiple backends exist, concrete types where there is only one
// sensible implementation.
type Components struct {
	Capture  capture.Client
	Analyzer critique.Analyzer
	Renderer *annotate.Renderer
	Meta     *pagemeta.Fetcher
	Compiler *report.Compiler
	Registry *report.Registry
}

// Orchestrator reduces the four pipeline calls into a progress stream, one
// run at a time per request. Runs are independent; no state is shared between
// them beyond the run map itself.
type Orchestrator struct {
	cfg    *Config
	comps  Components
	logger logging.Logger

	runsMu     sync.Mutex
	runs       map[string]*Run
	runCancels map[string]context.CancelFunc
}

// NewOrchestrator ties together config, components and logger.
func NewOrchestrator(cfg *Config, comps Components, logger logging.Logger) *Orchestrator {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.EventBufferSize < 8 {
		cfg.EventBufferSize = 16
	}
	return &Orchestrator{
		cfg:        cfg,
		comps:      comps,
		logger:     logger,
		runs:       make(map[string]*Run),
		runCancels: make(map[string]context.CancelFunc),
	}
}

// ValidateURL enforces the submission contract: a syntactically valid
// absolute http(s) URL. Reachability is the capture backend's problem.
func ValidateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid url: %q is not an absolute http(s) url", raw)
	}
	return nil
}

// StartAnalysis validates the URL, registers a run and launches the pipeline
// in the background. The returned Run's Events channel delivers the progress
// stream.
func (o *Orchestrator) StartAnalysis(ctx context.Context, rawURL string) (*Run, error) {
	if err := ValidateURL(rawURL); err != nil {
		return nil, err
	}

	o.pruneRuns()

	runID := uuid.New().String()
	run := &Run{
		ID:        runID,
		URL:       rawURL,
		Status:    StageIdle,
		StartedAt: time.Now().UTC(),
		Events:    make(chan ProgressEvent, o.cfg.EventBufferSize),
	}

	runCtx, cancel := context.WithCancel(ctx)

	o.runsMu.Lock()
	o.runs[runID] = run
	o.runCancels[runID] = cancel
	o.runsMu.Unlock()

	o.logger.Info("starting analysis",
		logging.Field{Key: "run_id", Value: runID},
		logging.Field{Key: "url", Value: rawURL})

	go o.execute(runCtx, run)

	return run, nil
}

// execute drives one run through the four-stage chain and emits the terminal
// event. The chain is a linear weave graph: each stage depends on the one
// before it, FailFast skips everything downstream of the first error.
func (o *Orchestrator) execute(ctx context.Context, run *Run) {
	defer func() {
		o.runsMu.Lock()
		run.EndedAt = time.Now().UTC()
		delete(o.runCancels, run.ID)
		o.runsMu.Unlock()
		close(run.Events)
	}()

	graph := weave.NewGraph()

	stageHooks := func(stage Stage, msg string) weave.TaskOption {
		return weave.WithHooks(weave.Hooks{
			OnStart: func(context.Context, weave.TaskEvent) {
				o.setStatus(run, stage)
				o.emit(run, ProgressEvent{RunID: run.ID, Stage: stage, Message: msg})
			},
		})
	}

	captureTask, err := weave.AddTask(graph, "capture",
		func(ctx context.Context, _ weave.DependencyResolver) ([]byte, error) {
			return o.comps.Capture.Capture(ctx, run.URL)
		},
		stageHooks(StageCapturing, "Capturing full-page screenshot of "+run.URL))
	if err != nil {
		o.fail(run, err)
		return
	}

	critiqueTask, err := weave.AddTask(graph, "critique",
		func(ctx context.Context, deps weave.DependencyResolver) (*critique.Critique, error) {
			shot, err := captureTask.Value(deps)
			if err != nil {
				return nil, err
			}
			return o.comps.Analyzer.Analyze(ctx, shot)
		},
		weave.DependsOn(captureTask),
		stageHooks(StageAnalyzing, "Analyzing screenshot with the vision model"))
	if err != nil {
		o.fail(run, err)
		return
	}

	annotateTask, err := weave.AddTask(graph, "annotate",
		func(ctx context.Context, deps weave.DependencyResolver) ([]byte, error) {
			shot, err := captureTask.Value(deps)
			if err != nil {
				return nil, err
			}
			crit, err := critiqueTask.Value(deps)
			if err != nil {
				return nil, err
			}
			// A critique without findings yields a summary-only report with
			// the untouched screenshot.
			if len(crit.Findings) == 0 {
				return shot, nil
			}
			return o.comps.Renderer.Annotate(shot, crit.Findings)
		},
		weave.DependsOn(captureTask, critiqueTask),
		stageHooks(StageAnnotating, "Drawing annotations on the screenshot"))
	if err != nil {
		o.fail(run, err)
		return
	}

	compileTask, err := weave.AddTask(graph, "compile",
		func(ctx context.Context, deps weave.DependencyResolver) (string, error) {
			crit, err := critiqueTask.Value(deps)
			if err != nil {
				return "", err
			}
			annotated, err := annotateTask.Value(deps)
			if err != nil {
				return "", err
			}

			var meta *pagemeta.Meta
			if o.comps.Meta != nil {
				if m, err := o.comps.Meta.Fetch(ctx, run.URL); err == nil {
					meta = m
				} else {
					o.logger.Debug("page metadata unavailable",
						logging.Field{Key: "run_id", Value: run.ID},
						logging.Field{Key: "error", Value: err.Error()})
				}
			}

			reportID := uuid.New().String()
			path, err := o.comps.Compiler.Compile(reportID, run.URL, meta, crit, annotated)
			if err != nil {
				return "", err
			}
			if err := o.comps.Registry.Add(ctx, &report.Report{ID: reportID, URL: run.URL, Path: path}); err != nil {
				return "", &report.WriteError{Path: path, Err: err}
			}
			return reportID, nil
		},
		weave.DependsOn(critiqueTask, annotateTask),
		stageHooks(StageCompiling, "Compiling PDF report"))
	if err != nil {
		o.fail(run, err)
		return
	}

	results, _, err := graph.Run(ctx)
	if err != nil {
		o.logger.Warn("analysis failed",
			logging.Field{Key: "run_id", Value: run.ID},
			logging.Field{Key: "error", Value: err.Error()})
		o.fail(run, err)
		return
	}

	reportID, err := compileTask.Value(results)
	if err != nil {
		o.fail(run, err)
		return
	}

	o.runsMu.Lock()
	run.Status = StageDone
	run.ReportID = reportID
	o.runsMu.Unlock()

	o.logger.Info("analysis done",
		logging.Field{Key: "run_id", Value: run.ID},
		logging.Field{Key: "report_id", Value: reportID})

	o.emit(run, ProgressEvent{
		RunID:    run.ID,
		Stage:    StageDone,
		Message:  "Report generated",
		ReportID: reportID,
	})
}

// fail marks the run failed and emits the single terminal failure event with
// a user-safe message.
func (o *Orchestrator) fail(run *Run, err error) {
	msg := sanitizeError(err)

	o.runsMu.Lock()
	run.Status = StageFailed
	run.Error = msg
	o.runsMu.Unlock()

	o.emit(run, ProgressEvent{RunID: run.ID, Stage: StageFailed, Message: msg})
}

// sanitizeError maps component errors onto messages safe to put on the wire.
// Raw errors may carry request URLs or API responses; clients get neither.
func sanitizeError(err error) string {
	var capErr *capture.Error
	var parseErr *critique.ParseError
	var reqErr *critique.RequestError
	var imgErr *critique.InvalidImageError
	var decErr *annotate.DecodeError
	var writeErr *report.WriteError

	switch {
	case errors.As(err, &capErr):
		if capErr.StatusCode != 0 {
			return fmt.Sprintf("screenshot capture failed (remote status %d)", capErr.StatusCode)
		}
		return "screenshot capture failed"
	case errors.As(err, &parseErr):
		return "the vision model returned malformed output"
	case errors.As(err, &reqErr):
		return "vision analysis failed"
	case errors.As(err, &imgErr), errors.As(err, &decErr):
		return "the captured screenshot could not be decoded"
	case errors.As(err, &writeErr):
		return "the report could not be written"
	case errors.Is(err, context.DeadlineExceeded):
		return "analysis timed out"
	case errors.Is(err, context.Canceled):
		return "analysis canceled"
	default:
		return "analysis failed"
	}
}

// emit delivers an event to the run's consumer. The buffer exceeds the
// maximum events per run, so the send never blocks a healthy run; if the
// consumer is gone and the buffer somehow fills, the event is dropped rather
// than wedging the pipeline.
func (o *Orchestrator) emit(run *Run, ev ProgressEvent) {
	select {
	case run.Events <- ev:
	default:
		o.logger.Warn("dropping progress event",
			logging.Field{Key: "run_id", Value: run.ID},
			logging.Field{Key: "stage", Value: string(ev.Stage)})
	}
}

func (o *Orchestrator) setStatus(run *Run, stage Stage) {
	o.runsMu.Lock()
	run.Status = stage
	o.runsMu.Unlock()
}

// GetRun returns a run by ID, or nil.
func (o *Orchestrator) GetRun(runID string) *Run {
	o.runsMu.Lock()
	defer o.runsMu.Unlock()
	return o.runs[runID]
}

// ListRuns returns all known runs, newest first not guaranteed.
func (o *Orchestrator) ListRuns() []*Run {
	o.runsMu.Lock()
	defer o.runsMu.Unlock()
	out := make([]*Run, 0, len(o.runs))
	for _, r := range o.runs {
		out = append(out, r)
	}
	return out
}

// CancelRun cancels an in-flight run. In-flight remote calls see the context
// cancellation; delivery of further events stops with the terminal event.
func (o *Orchestrator) CancelRun(runID string) {
	o.runsMu.Lock()
	cancel := o.runCancels[runID]
	o.runsMu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// pruneRuns drops finished runs older than the retention window.
func (o *Orchestrator) pruneRuns() {
	if o.cfg.RunRetention <= 0 {
		return
	}
	cutoff := time.Now().UTC().Add(-o.cfg.RunRetention)

	o.runsMu.Lock()
	defer o.runsMu.Unlock()
	for id, r := range o.runs {
		if !r.EndedAt.IsZero() && r.EndedAt.Before(cutoff) {
			delete(o.runs, id)
		}
	}
}

// Close cancels all in-flight runs and releases component resources.
func (o *Orchestrator) Close() {
	o.runsMu.Lock()
	cancels := make([]context.CancelFunc, 0, len(o.runCancels))
	for _, c := range o.runCancels {
		cancels = append(cancels, c)
	}
	o.runsMu.Unlock()

	for _, c := range cancels {
		c()
	}

	if o.comps.Capture != nil {
		_ = o.comps.Capture.Close()
	}
	if o.comps.Analyzer != nil {
		_ = o.comps.Analyzer.Close()
	}
}
