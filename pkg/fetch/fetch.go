// Package fetch issues the single outbound HTTPS GET used to confirm an SNS
// subscription.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

var (
	// ErrEmptyURL is returned when no URL is given.
	ErrEmptyURL = errors.New("empty url")

	// ErrInsecureURL is returned for any URL whose scheme is not https.
	ErrInsecureURL = errors.New("url scheme must be https")
)

// Response is a fully buffered HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       string
}

// Fetcher performs one GET per call. Implementations must not retry.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*Response, error)
}

// HTTPFetcher implements Fetcher on top of an *http.Client.
type HTTPFetcher struct {
	client *http.Client
}

// New creates an HTTPFetcher. A nil client means http.DefaultClient, so no
// timeout is applied beyond the transport's own defaults.
func New(client *http.Client) *HTTPFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPFetcher{client: client}
}

// Fetch GETs rawURL and reads the whole body before returning.
// A transport failure returns an error and no response.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (*Response, error) {
	if rawURL == "" {
		return nil, ErrEmptyURL
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "https" {
		return nil, fmt.Errorf("%w: %q", ErrInsecureURL, rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", u.Redacted(), err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       string(body),
	}, nil
}

// Ensure HTTPFetcher implements Fetcher.
var _ Fetcher = (*HTTPFetcher)(nil)
