package tasks

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/lysyi3m/feed-aggregator/app/database"
	"github.com/lysyi3m/feed-aggregator/app/feed"
)

const testUserAgent = "Feed Aggregator Test/1.0"

type testEnv struct {
	feedRepo  *database.SQLiteFeedRepository
	entryRepo *database.SQLiteEntryRepository
	pipeline  *Pipeline
	server    *httptest.Server

	mu         sync.Mutex
	documents  map[string]string
	userAgents []string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := database.NewConnection(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, _, err := database.RunMigrations(db); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	env := &testEnv{
		feedRepo:  database.NewFeedRepository(db),
		entryRepo: database.NewEntryRepository(db),
		documents: make(map[string]string),
	}

	env.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		env.mu.Lock()
		env.userAgents = append(env.userAgents, r.UserAgent())
		body, ok := env.documents[r.URL.Path]
		env.mu.Unlock()

		if !ok {
			http.Error(w, "gone", http.StatusInternalServerError)
			return
		}
		if filepath.Ext(r.URL.Path) == ".html" {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
		} else {
			w.Header().Set("Content-Type", "application/rss+xml")
		}
		fmt.Fprint(w, body)
	}))
	t.Cleanup(env.server.Close)

	env.pipeline = &Pipeline{
		Fetcher:    NewFetcher(env.server.Client(), testUserAgent, 0),
		Parser:     feed.NewParser(),
		Normalizer: feed.NewNormalizer("", feed.NewImageFinder()),
		Extractor:  feed.NewContentExtractor(),
	}

	return env
}

func (e *testEnv) serve(path, body string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.documents[path] = body
}

func (e *testEnv) url(path string) string {
	return e.server.URL + path
}

// register stores the feed and returns its config.
func (e *testEnv) register(t *testing.T, name, path string) *feed.Config {
	t.Helper()

	feedConfig := &feed.Config{
		Name:  name,
		URL:   e.url(path),
		Title: name,
		Settings: feed.ConfigSettings{
			Enabled:         true,
			RefreshInterval: 3600,
			MaxItems:        50,
			Timeout:         5,
		},
	}
	if err := e.feedRepo.UpsertFeed(name, feedConfig.URL, name, ""); err != nil {
		t.Fatalf("Failed to register feed: %v", err)
	}
	return feedConfig
}

func writeFeedConfig(t *testing.T, dir, name, url string, enabled bool) {
	t.Helper()

	content := fmt.Sprintf("url: %q\nsettings:\n  enabled: %t\n  refresh_interval: 3600\n  timeout: 5\n", url, enabled)
	if err := os.WriteFile(filepath.Join(dir, name+".yml"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func rss(items string) string {
	return `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel><title>Test</title><link>https://example.com</link>` + items + `</channel></rss>`
}
