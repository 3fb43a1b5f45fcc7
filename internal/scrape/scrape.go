// Package scrape fetches web pages and extracts their readable text.
//
// Fetching is done with colly; boilerplate removal (navigation, ads,
// scripts) with go-readability. The output is plain text suitable for
// chunking and embedding.
package scrape

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"
	"github.com/gocolly/colly/v2"

	"github.com/pitwall-ai/pitwall/internal/log"
)

// ErrFetch indicates the page could not be downloaded.
var ErrFetch = errors.New("fetch failed")

// ErrExtract indicates the page was downloaded but no readable text could
// be extracted from it.
var ErrExtract = errors.New("content extraction failed")

// DefaultUserAgent identifies the scraper to origin servers.
const DefaultUserAgent = "Mozilla/5.0 (compatible; pitwall/1.0)"

// Fetcher downloads pages and extracts their article text.
//
// A Fetcher is safe for concurrent use; each Fetch builds its own collector.
type Fetcher struct {
	userAgent string
	timeout   time.Duration
	logger    log.Logger
}

// New creates a Fetcher. A zero timeout disables the per-request deadline
// and an empty userAgent falls back to DefaultUserAgent.
func New(userAgent string, timeout time.Duration, logger log.Logger) *Fetcher {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Fetcher{userAgent: userAgent, timeout: timeout, logger: logger}
}

// Fetch downloads pageURL and returns its readable text content.
func (f *Fetcher) Fetch(ctx context.Context, pageURL string) (string, error) {
	parsed, err := url.Parse(pageURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return "", fmt.Errorf("%w: invalid URL %q", ErrFetch, pageURL)
	}

	body, err := f.download(ctx, pageURL)
	if err != nil {
		return "", err
	}

	article, err := readability.FromReader(bytes.NewReader(body), parsed)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %w", ErrExtract, pageURL, err)
	}

	text := strings.TrimSpace(article.TextContent)
	if text == "" {
		return "", fmt.Errorf("%w: %q yielded no text", ErrExtract, pageURL)
	}

	f.logger.Debug("page fetched", "url", pageURL, "bytes", len(body), "text_chars", len(text))
	return text, nil
}

// download retrieves the raw page body.
func (f *Fetcher) download(ctx context.Context, pageURL string) ([]byte, error) {
	c := colly.NewCollector(
		colly.UserAgent(f.userAgent),
		colly.StdlibContext(ctx),
	)
	if f.timeout > 0 {
		c.SetRequestTimeout(f.timeout)
	}

	var (
		body     []byte
		fetchErr error
	)
	c.OnResponse(func(r *colly.Response) {
		body = r.Body
	})
	c.OnError(func(r *colly.Response, err error) {
		fetchErr = err
	})

	if err := c.Visit(pageURL); err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrFetch, pageURL, err)
	}
	c.Wait()

	if fetchErr != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrFetch, pageURL, fetchErr)
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: %q returned an empty body", ErrFetch, pageURL)
	}
	return body, nil
}
