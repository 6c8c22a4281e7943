package tasks

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// maxBodySize caps how much of a response body is read.
const maxBodySize = 16 << 20

// Fetcher performs GET requests with a fixed User-Agent. All requests share
// one limiter, so feed fetches and article extraction draw from the same budget.
type Fetcher struct {
	httpClient *http.Client
	userAgent  string
	limiter    *rate.Limiter
}

// NewFetcher creates a fetcher allowing requestsPerSecond outbound requests;
// zero or less means unlimited.
func NewFetcher(httpClient *http.Client, userAgent string, requestsPerSecond float64) *Fetcher {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if requestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), 1)
	}

	return &Fetcher{httpClient: httpClient, userAgent: userAgent, limiter: limiter}
}

// Fetch returns the response body and its Content-Type. A zero timeout
// leaves the deadline to ctx.
func (f *Fetcher) Fetch(ctx context.Context, url string, timeout time.Duration) ([]byte, string, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if err := f.limiter.Wait(ctx); err != nil {
		return nil, "", fmt.Errorf("rate limit wait for %s: %w", url, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %w", err)
	}

	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read response body: %w", err)
	}

	return data, resp.Header.Get("Content-Type"), nil
}
