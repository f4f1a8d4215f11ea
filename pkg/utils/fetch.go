package utils

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kerbaras/comicdl/pkg/data"
)

const (
	DefaultAttempts  = 5
	DefaultTimeout   = 10 * time.Second
	DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
)

// Fetcher performs GET requests with per-attempt timeouts and retries.
type Fetcher struct {
	Client    *http.Client
	Attempts  int
	Timeout   time.Duration // bound on each attempt, not the whole call
	Backoff   time.Duration // pause between attempts
	UserAgent string
	Referer   string
}

func NewFetcher(attempts int, timeout time.Duration) *Fetcher {
	return &Fetcher{
		Client:    &http.Client{},
		Attempts:  attempts,
		Timeout:   timeout,
		Backoff:   500 * time.Millisecond,
		UserAgent: DefaultUserAgent,
	}
}

// WithAttempts returns a copy of f using n attempts.
func (f *Fetcher) WithAttempts(n int) *Fetcher {
	c := *f
	c.Attempts = n
	return &c
}

// WithReferer returns a copy of f sending the given Referer header.
func (f *Fetcher) WithReferer(referer string) *Fetcher {
	c := *f
	c.Referer = referer
	return &c
}

// Fetch returns the body of url. Network errors, timeouts and non-2xx
// responses are retried; exhaustion yields *data.FetchError.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	attempts := f.Attempts
	if attempts <= 0 {
		attempts = DefaultAttempts
	}

	var lastErr error
	for try := 0; try < attempts; try++ {
		if try > 0 && !f.wait(ctx) {
			break
		}
		body, err := f.once(ctx, url)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	if lastErr == nil {
		lastErr = ctx.Err()
	}
	return nil, &data.FetchError{URL: url, Attempts: attempts, Err: lastErr}
}

func (f *Fetcher) once(ctx context.Context, url string) ([]byte, error) {
	timeout := f.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if f.UserAgent != "" {
		req.Header.Set("User-Agent", f.UserAgent)
	}
	if f.Referer != "" {
		req.Header.Set("Referer", f.Referer)
	}

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return body, nil
}

func (f *Fetcher) wait(ctx context.Context) bool {
	if f.Backoff <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(f.Backoff):
		return true
	}
}

// IsTimeout reports whether err came from an expired deadline.
func IsTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
