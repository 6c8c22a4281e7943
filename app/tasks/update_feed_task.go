package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lysyi3m/feed-aggregator/app/database"
	"github.com/lysyi3m/feed-aggregator/app/feed"
)

var ErrFeedNotSynced = errors.New("feed is not registered in the database")

// Pipeline bundles the collaborators shared by every feed update.
type Pipeline struct {
	Fetcher    *Fetcher
	Parser     *feed.Parser
	Normalizer *feed.Normalizer
	Extractor  *feed.ContentExtractor
}

type UpdateResult struct {
	Total   int
	Created int
	Linked  int
	Failed  int
}

// UpdateFeedTask fetches one feed and merges its items into the entry store.
// Item failures are counted and logged; only fetch, parse and lookup failures
// fail the task.
type UpdateFeedTask struct {
	Task
	FeedConfig *feed.Config
	Result     UpdateResult
	pipeline   *Pipeline
	feedRepo   database.FeedRepository
	entryRepo  database.EntryRepository
}

func NewUpdateFeedTask(feedName string, feedConfig *feed.Config, pipeline *Pipeline, feedRepo database.FeedRepository, entryRepo database.EntryRepository) *UpdateFeedTask {
	return &UpdateFeedTask{
		Task:       NewTask(TaskTypeUpdateFeed, feedName),
		FeedConfig: feedConfig,
		pipeline:   pipeline,
		feedRepo:   feedRepo,
		entryRepo:  entryRepo,
	}
}

func (t *UpdateFeedTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if !t.FeedConfig.Settings.Enabled {
		slog.Debug("Feed disabled, skipping", "feed", t.FeedName)
		return nil
	}

	dbFeed, found, err := t.feedRepo.GetFeed(t.FeedName)
	if err != nil {
		return fmt.Errorf("failed to get feed: %w", err)
	}
	if !found {
		return fmt.Errorf("%s: %w", t.FeedName, ErrFeedNotSynced)
	}

	timeout := time.Duration(t.FeedConfig.Settings.Timeout) * time.Second

	data, contentType, err := t.pipeline.Fetcher.Fetch(ctx, dbFeed.FeedURL, timeout)
	if err != nil {
		return fmt.Errorf("failed to fetch feed: %w", err)
	}

	doc, err := t.pipeline.Parser.Run(data, contentType)
	if err != nil {
		return fmt.Errorf("failed to parse feed: %w", err)
	}

	encoding := t.pipeline.Normalizer.Encoding(doc.Encoding)

	var enricher feed.Enricher
	if t.FeedConfig.Settings.ExtractContent && t.pipeline.Extractor != nil {
		enricher = &articleEnricher{
			fetcher:    t.pipeline.Fetcher,
			extractor:  t.pipeline.Extractor,
			normalizer: t.pipeline.Normalizer,
			encoding:   encoding,
			timeout:    timeout,
		}
	}
	resolver := feed.NewResolver(t.entryRepo, enricher)

	result := UpdateResult{Total: len(doc.Items)}

	for i, item := range doc.Items {
		select {
		case <-ctx.Done():
			t.Result = result
			return ctx.Err()
		default:
		}

		candidate, err := t.pipeline.Normalizer.Run(item, encoding)
		if err != nil {
			result.Failed++
			slog.Warn("Failed to normalize item", "feed", t.FeedName, "index", i, "error", err)
			continue
		}

		outcome, err := resolver.Merge(ctx, dbFeed.ID, candidate)
		if err != nil {
			result.Failed++
			slog.Error("Failed to merge entry", "feed", t.FeedName, "guid", candidate.GUID, "link", candidate.Link, "error", err)
			continue
		}

		switch outcome {
		case feed.MergeCreated:
			result.Created++
		case feed.MergeLinked:
			result.Linked++
		}
	}

	t.Result = result

	slog.Info("Task completed",
		"type", "UpdateFeed",
		"feed", t.FeedName,
		"encoding", encoding,
		"duration", t.GetDuration(),
		"total", result.Total,
		"created", result.Created,
		"linked", result.Linked,
		"failed", result.Failed)

	return nil
}
