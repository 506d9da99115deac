// Package fetch implements a single-shot HTTP GET probe.
//
// Grounded in original_source/src/task/{fetch,http}.rs: one GET, report
// status code, byte count, and elapsed time. Uses stdlib net/http — no
// alternate HTTP client library appears anywhere in the pack for a
// single-shot GET, and reaching for one purely to replace a couple dozen
// lines of net/http use would not be grounded in anything the pack shows.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Result is what one HTTP GET observed.
type Result struct {
	StatusCode int
	Bytes      int64
	Elapsed    time.Duration
}

// Fetch issues one GET to url, bounded by expiry.
func Fetch(ctx context.Context, url string, expiry time.Duration) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, expiry)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch: building request: %w", err)
	}

	start := time.Now()
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: requesting %s: %w", url, err)
	}
	defer resp.Body.Close()

	n, err := io.Copy(io.Discard, resp.Body)
	elapsed := time.Since(start)
	if err != nil {
		return nil, fmt.Errorf("fetch: reading response body: %w", err)
	}

	return &Result{
		StatusCode: resp.StatusCode,
		Bytes:      n,
		Elapsed:    elapsed,
	}, nil
}
