// Package httpf fetches HTTP resources — TA certificates, RRDP
// notification/snapshot/delta bodies — on behalf of the RRDP
// synchroniser and the trust-anchor bootstrap step.
package httpf

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cuemby/rpkivet/pkg/rpkierrors"
)

// Fetcher wraps an http.Client with the conditional-GET support RRDP
// sync needs.
type Fetcher struct {
	Client  *http.Client
	Timeout time.Duration
}

// NewFetcher returns a Fetcher with sensible defaults.
func NewFetcher(timeout time.Duration) *Fetcher {
	if timeout == 0 {
		timeout = 2 * time.Minute
	}
	return &Fetcher{Client: &http.Client{Timeout: timeout}, Timeout: timeout}
}

// Response is a fetched body plus the response headers the RRDP
// synchroniser needs to persist (Last-Modified) or inspect (status).
type Response struct {
	StatusCode int
	Body       []byte
	LastMod    string
	NotModified bool
}

// Get fetches url, sending If-Modified-Since: ifModSince when non-empty.
// A 304 response is reported via NotModified rather than as an error.
func (f *Fetcher) Get(ctx context.Context, url, ifModSince string) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, f.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, rpkierrors.Wrap(rpkierrors.Transient, fmt.Sprintf("build request for %s", url), err)
	}
	if ifModSince != "" {
		req.Header.Set("If-Modified-Since", ifModSince)
	}

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, rpkierrors.Wrap(rpkierrors.Transient, fmt.Sprintf("GET %s", url), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		return &Response{StatusCode: resp.StatusCode, NotModified: true, LastMod: resp.Header.Get("Last-Modified")}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, rpkierrors.Wrap(rpkierrors.Transient, fmt.Sprintf("GET %s", url), fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, rpkierrors.Wrap(rpkierrors.Transient, fmt.Sprintf("read body for %s", url), err)
	}
	return &Response{StatusCode: resp.StatusCode, Body: body, LastMod: resp.Header.Get("Last-Modified")}, nil
}
