package overlay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"
)

// DefaultMaxFetchBytes caps downloaded survey files.
const DefaultMaxFetchBytes = 128 << 20

// Fetcher downloads survey files by URL. The returned name is used for format detection.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (data []byte, name string, err error)
}

// FetchError is a failed download. The user can retry it.
type FetchError struct {
	URL    string
	Status int // 0 when no response was received
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: HTTP %d", e.URL, e.Status)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Retryable reports whether trying again may succeed.
func (e *FetchError) Retryable() bool {
	if e.Status == 0 {
		return !errors.Is(e.Err, context.Canceled)
	}
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// HTTPFetcher downloads with net/http. ProxyTemplate, when set, rewrites the
// request URL; "{url}" is replaced with the escaped target.
type HTTPFetcher struct {
	Client        *http.Client
	ProxyTemplate string
	MaxBytes      int64
	UserAgent     string
}

// NewHTTPFetcher returns a fetcher with the given timeout and proxy template.
func NewHTTPFetcher(timeout time.Duration, proxyTemplate string) *HTTPFetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPFetcher{
		Client:        &http.Client{Timeout: timeout},
		ProxyTemplate: proxyTemplate,
		MaxBytes:      DefaultMaxFetchBytes,
		UserAgent:     "plat-survey",
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, "", &FetchError{URL: rawURL, Err: fmt.Errorf("invalid URL %q", rawURL)}
	}

	target := rawURL
	if f.ProxyTemplate != "" {
		target = strings.ReplaceAll(f.ProxyTemplate, "{url}", url.QueryEscape(rawURL))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, "", &FetchError{URL: rawURL, Err: err}
	}
	if f.UserAgent != "" {
		req.Header.Set("User-Agent", f.UserAgent)
	}

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, "", &FetchError{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, "", &FetchError{URL: rawURL, Status: resp.StatusCode}
	}

	limit := f.MaxBytes
	if limit <= 0 {
		limit = DefaultMaxFetchBytes
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, "", &FetchError{URL: rawURL, Err: err}
	}
	if int64(len(data)) > limit {
		return nil, "", &FetchError{URL: rawURL, Err: fmt.Errorf("body exceeds %d bytes", limit)}
	}
	return data, path.Base(u.Path), nil
}
