package tasks

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lysyi3m/feed-aggregator/app/database"
	"github.com/lysyi3m/feed-aggregator/app/feed"
)

type SyncFeedConfigTask struct {
	Task
	FeedConfig *feed.Config
	feedRepo   database.FeedRepository
}

func NewSyncFeedConfigTask(feedName string, feedConfig *feed.Config, feedRepo database.FeedRepository) *SyncFeedConfigTask {
	return &SyncFeedConfigTask{
		Task:       NewTask(TaskTypeSyncFeedConfig, feedName),
		FeedConfig: feedConfig,
		feedRepo:   feedRepo,
	}
}

func (t *SyncFeedConfigTask) Execute(ctx context.Context) error {

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	err := t.feedRepo.UpsertFeed(
		t.FeedConfig.Name,
		t.FeedConfig.URL,
		t.FeedConfig.Title,
		t.FeedConfig.PublicURL)
	if err != nil {
		return fmt.Errorf("failed to sync feed config to database: %w", err)
	}

	slog.Info("Task completed",
		"type", "SyncFeedConfig",
		"feed", t.FeedName,
		"duration", t.GetDuration())

	return nil
}
