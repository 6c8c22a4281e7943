package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lysyi3m/feed-aggregator/app/database"
	"github.com/lysyi3m/feed-aggregator/app/feed"
)

var _ TaskSchedulerInterface = (*Scheduler)(nil)

var ErrFeedDisabled = errors.New("feed is disabled")

// Scheduler polls enabled feeds and runs their updates on a worker pool.
// Retries with exponential backoff belong here; a feed whose update exhausts
// its retries is marked defunct until it updates successfully again.
type Scheduler struct {
	feedRepo    database.FeedRepository
	entryRepo   database.EntryRepository
	configCache *feed.ConfigCache
	pipeline    *Pipeline
	interval    time.Duration
	workerCount int
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	taskQueue   chan TaskInterface
	inFlight    sync.Map
	now         func() time.Time
}

func NewScheduler(configCache *feed.ConfigCache, feedRepo database.FeedRepository,
	entryRepo database.EntryRepository, pipeline *Pipeline,
	interval time.Duration, workerCount int) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		feedRepo:    feedRepo,
		entryRepo:   entryRepo,
		configCache: configCache,
		pipeline:    pipeline,
		interval:    interval,
		workerCount: workerCount,
		ctx:         ctx,
		cancel:      cancel,
		taskQueue:   make(chan TaskInterface, 300),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *Scheduler) Start() {
	// Feeds must exist before their first update runs.
	s.syncConfigs()

	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.enqueueDueFeeds()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.enqueueDueFeeds()
			}
		}
	}()
}

// Stop cancels the workers and pending retries and waits for them. The queue
// stays open so late enqueues fail instead of panicking.
func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) EnqueueTask(task TaskInterface) error {
	if err := s.ctx.Err(); err != nil {
		return err
	}

	select {
	case s.taskQueue <- task:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	default:
		return fmt.Errorf("task queue is full")
	}
}

// EnqueueFeedUpdate queues an update for a configured feed unless one is
// already queued or running.
func (s *Scheduler) EnqueueFeedUpdate(feedName string) (TaskInterface, error) {
	feedConfig, err := s.configCache.GetConfig(feedName)
	if err != nil {
		return nil, err
	}
	if !feedConfig.Settings.Enabled {
		return nil, fmt.Errorf("%s: %w", feedName, ErrFeedDisabled)
	}

	task := NewUpdateFeedTask(feedName, feedConfig, s.pipeline, s.feedRepo, s.entryRepo)
	if existing, loaded := s.inFlight.LoadOrStore(feedName, task); loaded {
		return existing.(TaskInterface), nil
	}

	if err := s.EnqueueTask(task); err != nil {
		s.inFlight.Delete(feedName)
		return nil, err
	}
	return task, nil
}

func (s *Scheduler) syncConfigs() {
	feedConfigs := s.configCache.GetConfigs()
	if len(feedConfigs) == 0 {
		slog.Debug("No feed configurations found")
		return
	}

	slog.Debug("Syncing feed configurations", "count", len(feedConfigs))

	for _, feedConfig := range feedConfigs {
		syncTask := NewSyncFeedConfigTask(feedConfig.Name, feedConfig, s.feedRepo)
		syncTask.Start()
		if err := syncTask.Execute(s.ctx); err != nil {
			slog.Error("Task failed", "type", string(syncTask.GetType()), "feed", feedConfig.Name, "error", err)
		}
	}
}

func (s *Scheduler) enqueueDueFeeds() {
	feedConfigs := s.configCache.GetEnabledConfigs()
	if len(feedConfigs) == 0 {
		slog.Debug("No enabled feed configurations found")
		return
	}

	slog.Debug("Processing enabled feed configurations for task scheduling", "count", len(feedConfigs))

	now := s.now()
	for _, feedConfig := range feedConfigs {
		dbFeed, found, err := s.feedRepo.GetFeed(feedConfig.Name)
		if err != nil {
			slog.Warn("Failed to get feed from database, skipping", "feed", feedConfig.Name, "error", err)
			continue
		}
		if !found {
			slog.Warn("Feed not found in database, skipping", "feed", feedConfig.Name)
			continue
		}

		if dbFeed.NextFetchAt != nil && dbFeed.NextFetchAt.After(now) {
			slog.Debug("Feed not due for refresh yet", "feed", feedConfig.Name, "next_fetch_at", dbFeed.NextFetchAt)
			continue
		}

		if _, err := s.EnqueueFeedUpdate(feedConfig.Name); err != nil {
			slog.Warn("Failed to enqueue UpdateFeedTask", "feed", feedConfig.Name, "error", err)
		}
	}
}

func (s *Scheduler) worker(id int) {
	defer s.wg.Done()

	for {
		select {
		case task := <-s.taskQueue:
			s.executeTask(id, task)

		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Scheduler) executeTask(workerID int, task TaskInterface) {
	task.Start()

	taskCtx, cancel := context.WithTimeout(s.ctx, 5*time.Minute)
	defer cancel()

	err := task.Execute(taskCtx)
	if err == nil {
		s.finishTask(task, nil)
		return
	}

	slog.Error("Worker task execution failed", "worker_id", workerID, "type", string(task.GetType()), "id", task.GetID(), "feed", task.GetFeedName(), "retry_count", task.GetRetryCount(), "error", err)

	if !task.CanRetry() {
		slog.Error("Task failed after maximum retries", "type", string(task.GetType()), "id", task.GetID(), "feed", task.GetFeedName(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "last_error", err)
		s.finishTask(task, err)
		return
	}

	task.IncrementRetryCount()
	retryDelay := time.Duration(1<<uint(task.GetRetryCount()-1)) * time.Second
	if retryDelay > 30*time.Second {
		retryDelay = 30 * time.Second
	}

	slog.Warn("Task retry scheduled", "type", string(task.GetType()), "feed", task.GetFeedName(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "delay", retryDelay.String())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		select {
		case <-s.ctx.Done():
			slog.Debug("Scheduler stopped, skipping task retry", "type", string(task.GetType()), "id", task.GetID())
			s.inFlight.Delete(task.GetFeedName())
			return
		case <-time.After(retryDelay):
		}

		if retryErr := s.EnqueueTask(task); errors.Is(retryErr, context.Canceled) {
			s.inFlight.Delete(task.GetFeedName())
		} else if retryErr != nil {
			slog.Error("Failed to re-enqueue task for retry", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "error", retryErr)
			s.finishTask(task, retryErr)
		}
	}()
}

// finishTask records the final state of a feed update. err is nil on success.
func (s *Scheduler) finishTask(task TaskInterface, err error) {
	update, ok := task.(*UpdateFeedTask)
	if !ok {
		return
	}
	defer s.inFlight.Delete(update.FeedName)

	now := s.now()
	nextFetch := now.Add(time.Duration(update.FeedConfig.Settings.RefreshInterval) * time.Second)
	if dbErr := s.feedRepo.UpdateFetchTimes(update.FeedName, now, nextFetch); dbErr != nil {
		slog.Error("Failed to record fetch times", "feed", update.FeedName, "error", dbErr)
	}

	defunct := err != nil
	if dbErr := s.feedRepo.SetFeedDefunct(update.FeedName, defunct); dbErr != nil {
		slog.Error("Failed to update feed status", "feed", update.FeedName, "defunct", defunct, "error", dbErr)
		return
	}
	if defunct {
		slog.Warn("Feed marked defunct", "feed", update.FeedName, "error", err)
	}
}
