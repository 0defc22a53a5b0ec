package pagemeta

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/pagelens/pagelens/internal/logging"
)

// Meta is the small slice of page metadata shown on the report cover.
type Meta struct {
	Title       string
	Description string
}

// Fetcher pulls page metadata over plain HTTP. It is strictly best effort:
// the pipeline never fails because a title could not be read.
type Fetcher struct {
	client *http.Client
	logger logging.Logger
}

func NewFetcher(logger logging.Logger, httpClient *http.Client) *Fetcher {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Fetcher{
		client: httpClient,
		logger: logger.With(logging.Field{Key: "component", Value: "pagemeta"}),
	}
}

// Fetch downloads url and extracts <title> and the meta description.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*Meta, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("pagemeta: create request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pagemeta: fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("pagemeta: fetch %s: status %d", url, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("pagemeta: parse %s: %w", url, err)
	}

	meta := &Meta{
		Title: strings.TrimSpace(doc.Find("title").First().Text()),
	}
	if desc, ok := doc.Find(`meta[name="description"]`).First().Attr("content"); ok {
		meta.Description = strings.TrimSpace(desc)
	}

	f.logger.Debug("fetched page metadata",
		logging.Field{Key: "url", Value: url},
		logging.Field{Key: "title", Value: meta.Title})
	return meta, nil
}
