package capture

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/pagelens/pagelens/internal/logging"
)

// BackendConstructor constructs a Client given the config and logger.
type BackendConstructor func(cfg Config, logger logging.Logger) (Client, error)

var (
	mu       sync.RWMutex
	backends = map[string]BackendConstructor{}
)

// RegisterBackend registers a named backend constructor. Name is lower-cased
// internally. Calling RegisterBackend with the same name overwrites the
// previous constructor.
func RegisterBackend(name string, ctor BackendConstructor) {
	if name == "" || ctor == nil {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	backends[strings.ToLower(name)] = ctor
}

// NewClient constructs the configured capture backend. It returns an error if
// the named backend has not been registered.
func NewClient(cfg Config, logger logging.Logger) (Client, error) {
	backend := strings.ToLower(strings.TrimSpace(string(cfg.Backend)))
	if backend == "" {
		backend = string(BackendAPI)
	}

	mu.RLock()
	ctor, ok := backends[backend]
	mu.RUnlock()
	if !ok || ctor == nil {
		return nil, fmt.Errorf("capture backend %q not registered: available backends=%v", backend, ListBackends())
	}

	c, err := ctor(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to construct capture backend %q: %w", backend, err)
	}
	if c == nil {
		return nil, errors.New("capture constructor returned nil")
	}
	return c, nil
}

// ListBackends returns the list of registered backend names.
func ListBackends() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(backends))
	for k := range backends {
		out = append(out, k)
	}
	return out
}

// RegisterDefaultBackends registers the api and chromedp backends. Call this
// early in main() to make backends available to NewClient.
func RegisterDefaultBackends() {
	RegisterBackend(string(BackendAPI), func(cfg Config, logger logging.Logger) (Client, error) {
		return NewAPIClient(cfg, logger, nil)
	})
	RegisterBackend(string(BackendChromedp), func(cfg Config, logger logging.Logger) (Client, error) {
		return NewChromedpClient(cfg, logger)
	})
}
