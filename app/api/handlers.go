package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lysyi3m/feed-aggregator/app/database"
	"github.com/lysyi3m/feed-aggregator/app/feed"
	"github.com/lysyi3m/feed-aggregator/app/tasks"
	"github.com/patrickmn/go-cache"
)

const (
	maxEntriesLimit    = 500
	defaultRecentLimit = 50
)

func NewHandler(configCache *feed.ConfigCache, feedRepo database.FeedRepository,
	entryRepo database.EntryRepository, generator GeneratorInterface,
	scheduler tasks.TaskSchedulerInterface, version string, feedCacheTTL time.Duration) *Handler {
	h := &Handler{
		feedRepo:    feedRepo,
		entryRepo:   entryRepo,
		generator:   generator,
		configCache: configCache,
		scheduler:   scheduler,
		version:     version,
	}
	if feedCacheTTL > 0 {
		h.rendered = cache.New(feedCacheTTL, 2*feedCacheTTL)
	}
	return h
}

func (h *Handler) GetFeed(c *gin.Context) {
	name := c.Param("name")

	feedConfig, err := h.configCache.GetConfig(name)
	if err != nil {
		slog.Debug("Feed configuration not found", "feed", name, "error", err)
		c.Status(http.StatusNotFound)
		return
	}

	rendered, found, err := h.renderFeed(name, feedConfig.Settings.MaxItems)
	if err != nil {
		slog.Error("Feed rendering error", "feed", name, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}
	if !found {
		slog.Warn("Feed not found in database", "feed", name)
		c.Status(http.StatusNotFound)
		return
	}

	c.Header("X-Feed-Entries", strconv.Itoa(rendered.entries))
	c.Header("X-Feed-Name", name)
	c.Header("X-Last-Updated", rendered.lastUpdated.Format(time.RFC3339))

	c.Data(http.StatusOK, "application/xml; charset=utf-8", []byte(rendered.rss))
}

// renderFeed returns the RSS document for a feed, served from the render
// cache while it is fresh.
func (h *Handler) renderFeed(name string, maxItems int) (*renderedFeed, bool, error) {
	if h.rendered != nil {
		if cached, ok := h.rendered.Get(name); ok {
			return cached.(*renderedFeed), true, nil
		}
	}

	dbFeed, found, err := h.feedRepo.GetFeed(name)
	if err != nil {
		return nil, false, fmt.Errorf("failed to get feed: %w", err)
	}
	if !found {
		return nil, false, nil
	}

	entries, err := h.entryRepo.GetFeedEntries(name, maxItems)
	if err != nil {
		return nil, false, fmt.Errorf("failed to get entries: %w", err)
	}

	rss, err := h.generator.Run(*dbFeed, entries)
	if err != nil {
		return nil, false, fmt.Errorf("failed to generate RSS: %w", err)
	}

	rendered := &renderedFeed{rss: rss, entries: len(entries), lastUpdated: dbFeed.UpdatedAt}
	if h.rendered != nil {
		h.rendered.SetDefault(name, rendered)
	}
	return rendered, true, nil
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := gin.H{
		"status":                "ok",
		"version":               h.version,
		"timestamp":             time.Now().Format(time.RFC3339),
		"loaded_configurations": h.configCache.GetConfigCount(),
	}

	feedCount, err := h.feedRepo.GetFeedCount()
	if err != nil {
		slog.Error("Database error", "operation", "get_feed_count", "error", err)
		health["status"] = "degraded"
		c.JSON(http.StatusServiceUnavailable, health)
		return
	}
	health["feeds"] = feedCount

	c.JSON(http.StatusOK, health)
}

func (h *Handler) APIListFeeds(c *gin.Context) {
	configs := h.configCache.GetConfigs()

	feeds := make([]FeedSummary, 0, len(configs))
	for _, feedConfig := range configs {
		summary := FeedSummary{
			Name:            feedConfig.Name,
			Title:           feedConfig.Title,
			URL:             feedConfig.URL,
			PublicURL:       feedConfig.PublicURL,
			Enabled:         feedConfig.Settings.Enabled,
			RefreshInterval: (time.Duration(feedConfig.Settings.RefreshInterval) * time.Second).String(),
		}

		if dbFeed, found, err := h.feedRepo.GetFeed(feedConfig.Name); err == nil && found {
			summary.Title = dbFeed.Title
			summary.Defunct = dbFeed.IsDefunct
			summary.LastFetchedAt = formatTime(dbFeed.LastFetchedAt)
			summary.NextFetchAt = formatTime(dbFeed.NextFetchAt)
		} else if err != nil {
			slog.Error("Database error", "operation", "get_feed", "feed", feedConfig.Name, "error", err)
		}

		if count, err := h.entryRepo.GetEntryCount(feedConfig.Name); err == nil {
			summary.EntryCount = count
		}

		feeds = append(feeds, summary)
	}

	sort.Slice(feeds, func(i, j int) bool { return feeds[i].Name < feeds[j].Name })

	c.JSON(http.StatusOK, gin.H{
		"feeds": feeds,
		"total": len(feeds),
	})
}

func (h *Handler) APIListEntries(c *gin.Context) {
	name := c.Param("name")

	feedConfig, err := h.configCache.GetConfig(name)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Feed configuration not found"})
		return
	}

	limit, ok := queryLimit(c, feedConfig.Settings.MaxItems)
	if !ok {
		return
	}

	entries, err := h.entryRepo.GetFeedEntries(name, limit)
	if err != nil {
		slog.Error("Database error", "operation", "get_entries", "feed", name, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	response, err := h.entryResponses(entries)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"feed":    name,
		"entries": response,
		"total":   len(response),
	})
}

// APIListRecentEntries lists the newest entries across every feed.
func (h *Handler) APIListRecentEntries(c *gin.Context) {
	limit, ok := queryLimit(c, defaultRecentLimit)
	if !ok {
		return
	}

	entries, err := h.entryRepo.GetRecentEntries(limit)
	if err != nil {
		slog.Error("Database error", "operation", "get_recent_entries", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	response, err := h.entryResponses(entries)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"entries": response,
		"total":   len(response),
	})
}

// queryLimit reads ?limit, capped at maxEntriesLimit. It writes a 400 and
// returns false when the value is invalid.
func queryLimit(c *gin.Context, fallback int) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return fallback, true
	}

	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
		return 0, false
	}
	return min(parsed, maxEntriesLimit), true
}

func (h *Handler) entryResponses(entries []database.Entry) ([]EntryResponse, error) {
	response := make([]EntryResponse, 0, len(entries))
	for _, entry := range entries {
		feeds, err := h.entryRepo.GetEntryFeeds(entry.ID)
		if err != nil {
			slog.Error("Database error", "operation", "get_entry_feeds", "entry", entry.ID, "error", err)
			return nil, err
		}

		response = append(response, EntryResponse{
			GUID:    entry.GUID,
			Title:   entry.Title,
			Link:    entry.Link,
			Summary: entry.Summary,
			Content: entry.Content,
			Image:   entry.Image,
			Date:    entry.Date.UTC().Format(time.RFC3339),
			Feeds:   feeds,
		})
	}
	return response, nil
}

func (h *Handler) APIUpdateFeed(c *gin.Context) {
	name := c.Param("name")

	task, err := h.scheduler.EnqueueFeedUpdate(name)
	switch {
	case errors.Is(err, tasks.ErrFeedDisabled):
		c.JSON(http.StatusConflict, gin.H{"error": "Feed is disabled"})
		return
	case errors.Is(err, feed.ErrConfigNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Feed configuration not found"})
		return
	case err != nil:
		slog.Error("Error enqueueing update task", "feed", name, "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "Failed to enqueue update task",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"feed":    name,
		"task": gin.H{
			"id":   task.GetID(),
			"type": task.GetType(),
		},
	})
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}
