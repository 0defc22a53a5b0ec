package critique

import (
	"context"
	"fmt"
)

// Category classifies a finding. Unknown values coming back from the model
// normalize to CategorySuggestion.
type Category string

const (
	CategoryIssue      Category = "issue"
	CategorySuggestion Category = "suggestion"
)

// Finding is a single coordinate-anchored critique point on the screenshot.
// Coordinates are pixels relative to the analyzed image.
type Finding struct {
	X        int      `json:"x"`
	Y        int      `json:"y"`
	Label    string   `json:"label"`
	Category Category `json:"category"`
}

// Critique is the full model output for one screenshot. Findings keep the
// model's order; overlapping or duplicate points are allowed.
type Critique struct {
	Summary  string    `json:"summary"`
	Findings []Finding `json:"findings"`
}

// Analyzer produces a structured critique for a page screenshot.
type Analyzer interface {
	Analyze(ctx context.Context, imageBytes []byte) (*Critique, error)

	Close() error
}

// InvalidImageError means the screenshot bytes could not be decoded before
// being sent to the model. Fatal for the run.
type InvalidImageError struct {
	Err error
}

func (e *InvalidImageError) Error() string {
	return fmt.Sprintf("critique: decode screenshot: %v", e.Err)
}

func (e *InvalidImageError) Unwrap() error { return e.Err }

// ParseError means the model returned something that is not a valid critique:
// malformed JSON, a refusal, or an empty summary. Fatal for the run.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("critique parse: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("critique parse: %s", e.Reason)
}

func (e *ParseError) Unwrap() error { return e.Err }

// RequestError covers transport-level failures talking to the model API.
type RequestError struct {
	StatusCode int
	Reason     string
	Err        error
}

func (e *RequestError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("critique request: %s (status %d)", e.Reason, e.StatusCode)
	}
	return fmt.Sprintf("critique request: %s: %v", e.Reason, e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }
