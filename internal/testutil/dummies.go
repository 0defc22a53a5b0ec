// Package testutil provides shared test doubles for use across package tests.
// All dummies implement the corresponding interfaces from the production
// code, allowing injection into components under test without real I/O.
package testutil

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"sync"

	"github.com/pagelens/pagelens/internal/capture"
	"github.com/pagelens/pagelens/internal/critique"
	"github.com/pagelens/pagelens/internal/logging"
)

// ─── Logger ────────────────────────────────────────────────────────────

// DummyLogger implements logging.Logger with in-memory recording.
type DummyLogger struct {
	mu     sync.Mutex
	Errors []string
	Infos  []string
	Debugs []string
	Warns  []string
}

func (l *DummyLogger) Debug(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Debugs = append(l.Debugs, msg)
}

func (l *DummyLogger) Info(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Infos = append(l.Infos, msg)
}

func (l *DummyLogger) Warn(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Warns = append(l.Warns, msg)
}

func (l *DummyLogger) Error(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Errors = append(l.Errors, msg)
}

func (l *DummyLogger) With(_ ...logging.Field) logging.Logger { return l }

// ─── Capture ───────────────────────────────────────────────────────────

var _ capture.Client = (*DummyCapture)(nil)

// DummyCapture implements capture.Client. By default it returns a small PNG.
// Set Err to force a failure.
type DummyCapture struct {
	Image []byte
	Err   error

	mu   sync.Mutex
	URLs []string
}

func (d *DummyCapture) Capture(ctx context.Context, url string) ([]byte, error) {
	d.mu.Lock()
	d.URLs = append(d.URLs, url)
	d.mu.Unlock()

	if d.Err != nil {
		return nil, d.Err
	}
	if d.Image != nil {
		return d.Image, nil
	}
	return PNG(64, 64), nil
}

func (d *DummyCapture) Close() error { return nil }

// Captured returns the URLs captured so far.
func (d *DummyCapture) Captured() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.URLs...)
}

// ─── Analyzer ──────────────────────────────────────────────────────────

var _ critique.Analyzer = (*DummyAnalyzer)(nil)

// DummyAnalyzer implements critique.Analyzer with a preconfigured result.
type DummyAnalyzer struct {
	Result *critique.Critique
	Err    error

	mu    sync.Mutex
	Calls int
}

func (d *DummyAnalyzer) Analyze(ctx context.Context, imageBytes []byte) (*critique.Critique, error) {
	d.mu.Lock()
	d.Calls++
	d.mu.Unlock()

	if d.Err != nil {
		return nil, d.Err
	}
	if d.Result != nil {
		return d.Result, nil
	}
	return &critique.Critique{Summary: "dummy summary"}, nil
}

func (d *DummyAnalyzer) Close() error { return nil }

// CallCount returns how many times Analyze ran.
func (d *DummyAnalyzer) CallCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.Calls
}

// ─── helpers ───────────────────────────────────────────────────────────

// PNG renders a w x h white PNG for use as a fake screenshot.
func PNG(w, h int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.White)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}
