package ingestion_engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/markdave123-py/docqa/internal/core"
	"github.com/markdave123-py/docqa/internal/models"
)

var _ core.TextExtractor = (*WebExtractor)(nil)

const (
	maxRedirects = 10
	maxPageBytes = 20 << 20
	userAgent    = "docqa-ingest/1.0"
)

// WebExtractor downloads a page and returns its visible text.
type WebExtractor struct {
	client *http.Client
}

func NewWebExtractor(timeout time.Duration) *WebExtractor {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &WebExtractor{client: &http.Client{
		Timeout: timeout,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}}
}

func (e *WebExtractor) Extract(ctx context.Context, ref models.SourceRef) (string, error) {
	if ref.URL == "" {
		return "", fmt.Errorf("%w: web source without url", core.ErrUnsupportedContent)
	}

	body, err := e.fetch(ctx, ref.URL)
	if err != nil {
		return "", err
	}
	defer body.Close()

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(body, maxPageBytes))
	if err != nil {
		return "", fmt.Errorf("%w: parse html from %s: %w", core.ErrExtraction, ref.URL, err)
	}
	doc.Find("script, style").Remove()

	return Normalize(doc.Text()), nil
}

// fetch performs the GET and hands back the body of a 2xx response.
func (e *WebExtractor) fetch(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &core.FetchError{URL: url, Err: err}
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, &core.FetchError{URL: url, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		resp.Body.Close()
		return nil, &core.FetchError{
			URL:        url,
			StatusCode: resp.StatusCode,
			Err:        errors.New(resp.Status),
		}
	}
	return resp.Body, nil
}
