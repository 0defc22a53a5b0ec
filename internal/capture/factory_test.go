package capture_test

import (
	"context"
	"testing"

	"github.com/pagelens/pagelens/internal/capture"
	"github.com/pagelens/pagelens/internal/logging"
	"github.com/pagelens/pagelens/internal/testutil"
)

type stubClient struct{}

func (stubClient) Capture(context.Context, string) ([]byte, error) { return []byte{1}, nil }
func (stubClient) Close() error                                    { return nil }

func TestNewClient_UsesRegisteredBackend(t *testing.T) {
	capture.RegisterBackend("stub", func(cfg capture.Config, logger logging.Logger) (capture.Client, error) {
		return stubClient{}, nil
	})

	c, err := capture.NewClient(capture.Config{Backend: "stub"}, &testutil.DummyLogger{})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	img, err := c.Capture(context.Background(), "https://example.com")
	if err != nil || len(img) != 1 {
		t.Errorf("expected stub capture, got %v %v", img, err)
	}
}

func TestNewClient_UnknownBackend(t *testing.T) {
	_, err := capture.NewClient(capture.Config{Backend: "no-such-backend"}, &testutil.DummyLogger{})
	if err == nil {
		t.Fatal("expected error for unregistered backend")
	}
}

func TestRegisterDefaultBackends_RegistersAPIAndChromedp(t *testing.T) {
	capture.RegisterDefaultBackends()

	found := map[string]bool{}
	for _, b := range capture.ListBackends() {
		found[b] = true
	}
	if !found["api"] || !found["chromedp"] {
		t.Errorf("expected api and chromedp backends, got %v", capture.ListBackends())
	}
}
