package server

import (
	"github.com/pagelens/pagelens/internal/app"
	"github.com/pagelens/pagelens/internal/logging"
)

type Config struct {
	// ListenAddr is the HTTP listen address for the API server.
	ListenAddr string

	// AppConfig configures the orchestrator and its components.
	AppConfig *app.Config

	// Components, when non-nil, overrides component construction entirely.
	// Tests inject dummies through this.
	Components *app.Components

	// Logger defaults to a stdout JSON logger when nil.
	Logger logging.Logger
}
