package capture

import "time"

type Backend string

const (
	BackendAPI      Backend = "api"
	BackendChromedp Backend = "chromedp"
)

// Config is the minimal configuration required for constructing a Client.
type Config struct {
	Backend Backend

	// APIKey authenticates against the remote capture API (api backend).
	APIKey string

	// APIBaseURL overrides the remote capture endpoint, mainly for tests.
	// Empty means the production endpoint.
	APIBaseURL string

	// Timeout bounds one capture call end to end.
	Timeout time.Duration
}
