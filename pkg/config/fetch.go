package config

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/andresrocksuk/devbox/pkg/runner"
)

// maxProfileSize bounds a downloaded profile.
const maxProfileSize = 4 << 20

// Fetcher downloads a remote profile.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// HTTPFetcher downloads with the Go HTTP client.
type HTTPFetcher struct {
	Client *http.Client
}

// NewHTTPFetcher creates a fetcher with a bounded timeout.
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{Client: &http.Client{Timeout: timeout}}
}

// Fetch implements Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "devbox")

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: %s", url, resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxProfileSize+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxProfileSize {
		return nil, fmt.Errorf("profile at %s exceeds %d bytes", url, maxProfileSize)
	}
	return data, nil
}

// CurlFetcher downloads with the curl executable. It is the fallback when the
// Go client fails, for example behind proxies configured only for curl.
type CurlFetcher struct {
	Runner  runner.Runner
	Timeout time.Duration
}

// Fetch implements Fetcher.
func (f *CurlFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if _, err := f.Runner.LookPath("curl"); err != nil {
		return nil, fmt.Errorf("curl not available: %w", err)
	}
	res, err := f.Runner.Run(ctx, runner.Command{
		Name:    "curl",
		Args:    []string{"-fsSL", "--max-filesize", fmt.Sprint(maxProfileSize), url},
		Timeout: f.Timeout,
	})
	if err != nil {
		return nil, err
	}
	if !res.Success() {
		return nil, fmt.Errorf("curl exited with code %d: %s", res.ExitCode, res.Combined())
	}
	return []byte(res.Stdout), nil
}
