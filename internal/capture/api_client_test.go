package capture_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pagelens/pagelens/internal/capture"
	"github.com/pagelens/pagelens/internal/testutil"
)

// fakeCaptureAPI simulates the remote scrape endpoint plus the screenshot
// download URL it hands back.
func fakeCaptureAPI(t *testing.T, scrapeStatus int, withScreenshot bool) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	var ts *httptest.Server

	mux.HandleFunc("/v2/scrape", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST to /v2/scrape, got %s", r.Method)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("expected bearer auth, got %q", got)
		}

		var body struct {
			URL     string `json:"url"`
			Formats []struct {
				Type     string `json:"type"`
				FullPage bool   `json:"fullPage"`
			} `json:"formats"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode scrape body: %v", err)
		}
		if len(body.Formats) != 1 || body.Formats[0].Type != "screenshot" || !body.Formats[0].FullPage {
			t.Errorf("expected one full-page screenshot format, got %+v", body.Formats)
		}

		if scrapeStatus != http.StatusOK {
			w.WriteHeader(scrapeStatus)
			return
		}

		resp := map[string]any{"success": true, "data": map[string]any{}}
		if withScreenshot {
			resp["data"] = map[string]any{"screenshot": ts.URL + "/shot.png"}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	})

	mux.HandleFunc("/shot.png", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(testutil.PNG(32, 32))
	})

	ts = httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func newAPIClient(t *testing.T, baseURL string) *capture.APIClient {
	t.Helper()
	client, err := capture.NewAPIClient(capture.Config{
		APIKey:     "test-key",
		APIBaseURL: baseURL,
	}, &testutil.DummyLogger{}, nil)
	if err != nil {
		t.Fatalf("NewAPIClient: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestAPIClient_Capture_ReturnsScreenshotBytes(t *testing.T) {
	t.Parallel()
	ts := fakeCaptureAPI(t, http.StatusOK, true)
	client := newAPIClient(t, ts.URL)

	img, err := client.Capture(context.Background(), "https://example.com")
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if len(img) == 0 {
		t.Fatal("expected screenshot bytes")
	}
	// PNG magic
	if string(img[1:4]) != "PNG" {
		t.Errorf("expected PNG bytes, got %q", img[:8])
	}
}

func TestAPIClient_Capture_RemoteRejection(t *testing.T) {
	t.Parallel()
	ts := fakeCaptureAPI(t, http.StatusUnprocessableEntity, false)
	client := newAPIClient(t, ts.URL)

	_, err := client.Capture(context.Background(), "not a real url")
	if err == nil {
		t.Fatal("expected error for 422 scrape response")
	}
	var capErr *capture.Error
	if !errors.As(err, &capErr) {
		t.Fatalf("expected *capture.Error, got %T: %v", err, err)
	}
	if capErr.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("expected status 422, got %d", capErr.StatusCode)
	}
}

func TestAPIClient_Capture_NoScreenshotInResponse(t *testing.T) {
	t.Parallel()
	ts := fakeCaptureAPI(t, http.StatusOK, false)
	client := newAPIClient(t, ts.URL)

	_, err := client.Capture(context.Background(), "https://example.com")
	var capErr *capture.Error
	if !errors.As(err, &capErr) {
		t.Fatalf("expected *capture.Error, got %v", err)
	}
}

func TestNewAPIClient_RequiresKey(t *testing.T) {
	t.Parallel()
	_, err := capture.NewAPIClient(capture.Config{}, &testutil.DummyLogger{}, nil)
	if err == nil {
		t.Fatal("expected error for missing API key")
	}
}
