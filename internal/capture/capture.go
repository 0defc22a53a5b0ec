package capture

import (
	"context"
	"fmt"
)

// Client captures a full-page screenshot of a URL and returns the raw image
// bytes. Implementations make exactly one attempt per call; a failed capture
// fails the run.
type Client interface {
	Capture(ctx context.Context, url string) ([]byte, error)

	Close() error
}

// Error is returned when the capture backend fails: remote non-success
// status, timeout, or transport failure.
type Error struct {
	URL        string
	StatusCode int
	Reason     string
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("capture %s: %s (status %d)", e.URL, e.Reason, e.StatusCode)
	}
	if e.Err != nil {
		return fmt.Sprintf("capture %s: %s: %v", e.URL, e.Reason, e.Err)
	}
	return fmt.Sprintf("capture %s: %s", e.URL, e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }
