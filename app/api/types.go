package api

import (
	"time"

	"github.com/lysyi3m/feed-aggregator/app/database"
	"github.com/lysyi3m/feed-aggregator/app/feed"
	"github.com/lysyi3m/feed-aggregator/app/tasks"
	"github.com/patrickmn/go-cache"
)

type GeneratorInterface interface {
	Run(feed database.Feed, entries []database.Entry) (string, error)
}

var _ GeneratorInterface = (*feed.Generator)(nil)

type Handler struct {
	feedRepo    database.FeedRepository
	entryRepo   database.EntryRepository
	generator   GeneratorInterface
	configCache *feed.ConfigCache
	scheduler   tasks.TaskSchedulerInterface
	version     string
	rendered    *cache.Cache // nil when caching is disabled
}

// renderedFeed is a generated RSS document kept for the cache TTL.
type renderedFeed struct {
	rss         string
	entries     int
	lastUpdated time.Time
}

type FeedSummary struct {
	Name            string  `json:"name"`
	Title           string  `json:"title"`
	URL             string  `json:"url"`
	PublicURL       string  `json:"public_url,omitempty"`
	Enabled         bool    `json:"enabled"`
	Defunct         bool    `json:"defunct"`
	RefreshInterval string  `json:"refresh_interval"`
	EntryCount      int     `json:"entry_count"`
	LastFetchedAt   *string `json:"last_fetched_at,omitempty"`
	NextFetchAt     *string `json:"next_fetch_at,omitempty"`
}

type EntryResponse struct {
	GUID    string   `json:"guid"`
	Title   string   `json:"title"`
	Link    string   `json:"link"`
	Summary string   `json:"summary"`
	Content string   `json:"content,omitempty"`
	Image   string   `json:"image,omitempty"`
	Date    string   `json:"date"`
	Feeds   []string `json:"feeds"`
}
