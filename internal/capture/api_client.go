package capture

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pagelens/pagelens/internal/logging"
)

const defaultAPIBaseURL = "https://api.firecrawl.dev"

// APIClient captures screenshots through a remote Firecrawl-style scrape API.
// One capture is two round-trips: a scrape request that renders the page and
// returns a screenshot URL, then a download of the image bytes.
type APIClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  logging.Logger
}

// NewAPIClient builds an APIClient. httpClient may be nil, in which case a
// default client with the configured timeout is used.
func NewAPIClient(cfg Config, logger logging.Logger, httpClient *http.Client) (*APIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("capture api key is required")
	}

	componentLogger := logger.With(logging.Field{Key: "component", Value: "capture.api"})

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}

	baseURL := cfg.APIBaseURL
	if baseURL == "" {
		baseURL = defaultAPIBaseURL
	}

	componentLogger.Info("created api capture client",
		logging.Field{Key: "base_url", Value: baseURL},
		logging.Field{Key: "timeout", Value: timeout.String()})

	return &APIClient{
		baseURL: baseURL,
		apiKey:  cfg.APIKey,
		client:  httpClient,
		logger:  componentLogger,
	}, nil
}

type scrapeRequest struct {
	URL     string         `json:"url"`
	Formats []scrapeFormat `json:"formats"`
}

type scrapeFormat struct {
	Type     string `json:"type"`
	FullPage bool   `json:"fullPage"`
}

type scrapeResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Data    struct {
		Screenshot string `json:"screenshot"`
	} `json:"data"`
}

// Capture renders url in the remote API and returns the screenshot bytes.
func (c *APIClient) Capture(ctx context.Context, url string) ([]byte, error) {
	c.logger.Debug("requesting capture", logging.Field{Key: "url", Value: url})

	payload, err := json.Marshal(scrapeRequest{
		URL:     url,
		Formats: []scrapeFormat{{Type: "screenshot", FullPage: true}},
	})
	if err != nil {
		return nil, &Error{URL: url, Reason: "encode scrape request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v2/scrape", bytes.NewReader(payload))
	if err != nil {
		return nil, &Error{URL: url, Reason: "create scrape request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Warn("scrape request failed",
			logging.Field{Key: "url", Value: url},
			logging.Field{Key: "error", Value: err.Error()})
		return nil, &Error{URL: url, Reason: "scrape request", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{URL: url, Reason: "read scrape response", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Error{URL: url, StatusCode: resp.StatusCode, Reason: "remote capture rejected request"}
	}

	var decoded scrapeResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, &Error{URL: url, Reason: "decode scrape response", Err: err}
	}
	if decoded.Data.Screenshot == "" {
		reason := "no screenshot in scrape response"
		if decoded.Error != "" {
			reason = decoded.Error
		}
		return nil, &Error{URL: url, Reason: reason}
	}

	c.logger.Debug("screenshot url obtained", logging.Field{Key: "screenshot_url", Value: decoded.Data.Screenshot})

	return c.download(ctx, url, decoded.Data.Screenshot)
}

func (c *APIClient) download(ctx context.Context, pageURL, screenshotURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, screenshotURL, nil)
	if err != nil {
		return nil, &Error{URL: pageURL, Reason: "create screenshot download request", Err: err}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &Error{URL: pageURL, Reason: "download screenshot", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &Error{URL: pageURL, StatusCode: resp.StatusCode, Reason: "download screenshot"}
	}

	img, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{URL: pageURL, Reason: "read screenshot bytes", Err: err}
	}
	if len(img) == 0 {
		return nil, &Error{URL: pageURL, Reason: "empty screenshot"}
	}

	c.logger.Info("captured screenshot",
		logging.Field{Key: "url", Value: pageURL},
		logging.Field{Key: "bytes", Value: len(img)})
	return img, nil
}

func (c *APIClient) Close() error {
	c.logger.Info("closing api capture client")
	return nil
}
