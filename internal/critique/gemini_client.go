package critique

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/pagelens/pagelens/internal/logging"
)

const (
	defaultModel       = "gemini-2.0-flash"
	defaultGeminiBase  = "https://generativelanguage.googleapis.com"
	generateContentFmt = "%s/v1beta/models/%s:generateContent"
)

// Config for the Gemini-backed analyzer.
type Config struct {
	APIKey string

	// Model overrides the default gemini-2.0-flash.
	Model string

	// BaseURL overrides the API endpoint, mainly for tests.
	BaseURL string

	// Timeout bounds one analyze call.
	Timeout time.Duration
}

// GeminiAnalyzer talks to the Gemini generateContent REST endpoint with the
// screenshot inlined as base64 and JSON output forced via response_mime_type.
type GeminiAnalyzer struct {
	cfg    Config
	client *http.Client
	logger logging.Logger
}

func NewGeminiAnalyzer(cfg Config, logger logging.Logger, httpClient *http.Client) (*GeminiAnalyzer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("vision api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultGeminiBase
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}

	componentLogger := logger.With(logging.Field{Key: "component", Value: "critique.gemini"})
	componentLogger.Info("created gemini analyzer",
		logging.Field{Key: "model", Value: cfg.Model},
		logging.Field{Key: "timeout", Value: timeout.String()})

	return &GeminiAnalyzer{cfg: cfg, client: httpClient, logger: componentLogger}, nil
}

// Request/response wire shapes for generateContent. Only the fields this
// client touches are modeled.

type generatePart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *generateBlobPart `json:"inline_data,omitempty"`
}

type generateBlobPart struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type generateContent struct {
	Parts []generatePart `json:"parts"`
}

type generateRequest struct {
	Contents         []generateContent `json:"contents"`
	GenerationConfig struct {
		ResponseMimeType string `json:"response_mime_type"`
	} `json:"generationConfig"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Analyze sends the screenshot plus the persona prompt to the model and
// parses the structured critique from its reply.
func (g *GeminiAnalyzer) Analyze(ctx context.Context, imageBytes []byte) (*Critique, error) {
	imgCfg, format, err := image.DecodeConfig(bytes.NewReader(imageBytes))
	if err != nil {
		return nil, &InvalidImageError{Err: err}
	}
	mime := "image/png"
	if format == "jpeg" {
		mime = "image/jpeg"
	}

	var reqBody generateRequest
	reqBody.Contents = []generateContent{{
		Parts: []generatePart{
			{Text: buildPrompt(imgCfg.Width, imgCfg.Height)},
			{InlineData: &generateBlobPart{
				MimeType: mime,
				Data:     base64.StdEncoding.EncodeToString(imageBytes),
			}},
		},
	}}
	reqBody.GenerationConfig.ResponseMimeType = "application/json"

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, &RequestError{Reason: "encode request", Err: err}
	}

	endpoint := fmt.Sprintf(generateContentFmt, g.cfg.BaseURL, g.cfg.Model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, &RequestError{Reason: "create request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", g.cfg.APIKey)

	g.logger.Debug("sending analyze request",
		logging.Field{Key: "image_w", Value: imgCfg.Width},
		logging.Field{Key: "image_h", Value: imgCfg.Height})

	resp, err := g.client.Do(req)
	if err != nil {
		g.logger.Warn("analyze request failed", logging.Field{Key: "error", Value: err.Error()})
		return nil, &RequestError{Reason: "model request", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &RequestError{Reason: "read model response", Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &RequestError{StatusCode: resp.StatusCode, Reason: "model rejected request"}
	}

	var decoded generateResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, &ParseError{Reason: "model response is not JSON", Err: err}
	}
	if decoded.Error != nil {
		return nil, &RequestError{StatusCode: decoded.Error.Code, Reason: decoded.Error.Message}
	}
	if len(decoded.Candidates) == 0 || len(decoded.Candidates[0].Content.Parts) == 0 {
		return nil, &ParseError{Reason: "model returned no candidates"}
	}

	var text strings.Builder
	for _, p := range decoded.Candidates[0].Content.Parts {
		text.WriteString(p.Text)
	}

	crit, err := parseCritique(text.String())
	if err != nil {
		return nil, err
	}

	g.logger.Info("critique produced",
		logging.Field{Key: "findings", Value: len(crit.Findings)})
	return crit, nil
}

func (g *GeminiAnalyzer) Close() error {
	g.logger.Info("closing gemini analyzer")
	return nil
}

var jsonObjectRegex = regexp.MustCompile(`(?s)\{.*\}`)

// extractJSON strips code fences and surrounding prose, returning the first
// JSON object in the text. Models occasionally fence output despite the
// response_mime_type hint.
func extractJSON(input string) (string, bool) {
	input = strings.TrimSpace(input)
	input = strings.Trim(input, "`")
	input = strings.TrimPrefix(input, "json")
	input = strings.TrimSpace(input)

	match := jsonObjectRegex.FindString(input)
	if match == "" {
		return "", false
	}
	return match, true
}

// parseCritique enforces the output contract: a JSON object with a non-empty
// summary and a findings array of the documented shape.
func parseCritique(raw string) (*Critique, error) {
	text, ok := extractJSON(raw)
	if !ok {
		return nil, &ParseError{Reason: "no JSON object in model output"}
	}

	var crit Critique
	if err := json.Unmarshal([]byte(text), &crit); err != nil {
		return nil, &ParseError{Reason: "model output does not match critique schema", Err: err}
	}
	if strings.TrimSpace(crit.Summary) == "" {
		return nil, &ParseError{Reason: "critique summary is empty"}
	}

	for i := range crit.Findings {
		switch crit.Findings[i].Category {
		case CategoryIssue, CategorySuggestion:
		default:
			crit.Findings[i].Category = CategorySuggestion
		}
		crit.Findings[i].Label = strings.TrimSpace(crit.Findings[i].Label)
	}

	return &crit, nil
}
