package tasks

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestFetcherSendsUserAgent(t *testing.T) {
	var userAgent string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userAgent = r.UserAgent()
		w.Header().Set("Content-Type", "application/rss+xml; charset=utf-8")
		fmt.Fprint(w, "<rss/>")
	}))
	defer server.Close()

	fetcher := NewFetcher(server.Client(), "Agent/2.0", 0)
	data, contentType, err := fetcher.Fetch(context.Background(), server.URL, time.Second)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if string(data) != "<rss/>" {
		t.Errorf("Unexpected body: %q", data)
	}
	if contentType != "application/rss+xml; charset=utf-8" {
		t.Errorf("Unexpected content type: %s", contentType)
	}
	if userAgent != "Agent/2.0" {
		t.Errorf("Expected user agent 'Agent/2.0', got '%s'", userAgent)
	}
}

func TestFetcherRejectsNonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	_, _, err := NewFetcher(server.Client(), "", 0).Fetch(context.Background(), server.URL, 0)
	if err == nil || !strings.Contains(err.Error(), "404") {
		t.Errorf("Expected HTTP 404 error, got: %v", err)
	}
}

func TestFetcherRateLimit(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		fmt.Fprint(w, "ok")
	}))
	defer server.Close()

	// One request per hour: the first goes through on the burst token.
	fetcher := NewFetcher(server.Client(), "", 1.0/3600)

	if _, _, err := fetcher.Fetch(context.Background(), server.URL, 0); err != nil {
		t.Fatalf("Expected first request to pass, got: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, _, err := fetcher.Fetch(ctx, server.URL, 0); err == nil {
		t.Error("Expected second request to be throttled")
	}

	if hits.Load() != 1 {
		t.Errorf("Expected 1 request to reach the server, got %d", hits.Load())
	}
}
