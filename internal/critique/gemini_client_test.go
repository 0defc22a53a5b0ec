package critique_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pagelens/pagelens/internal/critique"
	"github.com/pagelens/pagelens/internal/testutil"
)

// fakeGemini serves a canned generateContent reply.
func fakeGemini(t *testing.T, status int, replyText string) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, ":generateContent") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("x-goog-api-key"); got != "test-key" {
			t.Errorf("expected api key header, got %q", got)
		}

		var body struct {
			Contents []struct {
				Parts []struct {
					Text       string `json:"text"`
					InlineData *struct {
						MimeType string `json:"mime_type"`
						Data     string `json:"data"`
					} `json:"inline_data"`
				} `json:"parts"`
			} `json:"contents"`
			GenerationConfig struct {
				ResponseMimeType string `json:"response_mime_type"`
			} `json:"generationConfig"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if body.GenerationConfig.ResponseMimeType != "application/json" {
			t.Errorf("expected JSON response mime type, got %q", body.GenerationConfig.ResponseMimeType)
		}
		if len(body.Contents) != 1 || len(body.Contents[0].Parts) != 2 {
			t.Errorf("expected prompt + image parts, got %+v", body.Contents)
		} else if body.Contents[0].Parts[1].InlineData == nil {
			t.Error("expected inline image data in second part")
		}

		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}

		resp := map[string]any{
			"candidates": []map[string]any{{
				"content": map[string]any{
					"parts": []map[string]any{{"text": replyText}},
				},
				"finishReason": "STOP",
			}},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func newAnalyzer(t *testing.T, baseURL string) *critique.GeminiAnalyzer {
	t.Helper()
	a, err := critique.NewGeminiAnalyzer(critique.Config{
		APIKey:  "test-key",
		BaseURL: baseURL,
	}, &testutil.DummyLogger{}, nil)
	if err != nil {
		t.Fatalf("NewGeminiAnalyzer: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func TestGeminiAnalyzer_Analyze_ParsesCritique(t *testing.T) {
	t.Parallel()
	ts := fakeGemini(t, http.StatusOK,
		`{"summary": "Strong layout; weak CTA", "findings": [{"x": 10, "y": 20, "label": "FIX THIS", "category": "issue"}]}`)
	a := newAnalyzer(t, ts.URL)

	crit, err := a.Analyze(context.Background(), testutil.PNG(100, 200))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if crit.Summary != "Strong layout; weak CTA" {
		t.Errorf("unexpected summary %q", crit.Summary)
	}
	if len(crit.Findings) != 1 || crit.Findings[0].Label != "FIX THIS" {
		t.Errorf("unexpected findings %+v", crit.Findings)
	}
}

func TestGeminiAnalyzer_Analyze_ProseOutputIsParseError(t *testing.T) {
	t.Parallel()
	ts := fakeGemini(t, http.StatusOK, "Here are my general thoughts about the page...")
	a := newAnalyzer(t, ts.URL)

	_, err := a.Analyze(context.Background(), testutil.PNG(100, 100))
	var parseErr *critique.ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("expected *ParseError, got %T: %v", err, err)
	}
}

func TestGeminiAnalyzer_Analyze_RemoteErrorIsRequestError(t *testing.T) {
	t.Parallel()
	ts := fakeGemini(t, http.StatusTooManyRequests, "")
	a := newAnalyzer(t, ts.URL)

	_, err := a.Analyze(context.Background(), testutil.PNG(100, 100))
	var reqErr *critique.RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("expected *RequestError, got %v", err)
	}
	if reqErr.StatusCode != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", reqErr.StatusCode)
	}
}

func TestGeminiAnalyzer_Analyze_BadImageIsInvalidImageError(t *testing.T) {
	t.Parallel()
	ts := fakeGemini(t, http.StatusOK, `{"summary": "ok", "findings": []}`)
	a := newAnalyzer(t, ts.URL)

	_, err := a.Analyze(context.Background(), []byte("not an image"))
	var imgErr *critique.InvalidImageError
	if !errors.As(err, &imgErr) {
		t.Fatalf("expected *InvalidImageError for undecodable image, got %v", err)
	}
}

func TestNewGeminiAnalyzer_RequiresKey(t *testing.T) {
	t.Parallel()
	_, err := critique.NewGeminiAnalyzer(critique.Config{}, &testutil.DummyLogger{}, nil)
	if err == nil {
		t.Fatal("expected error for missing API key")
	}
}
