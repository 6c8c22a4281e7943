package tasks

import (
	"errors"
	"testing"
	"time"

	"github.com/lysyi3m/feed-aggregator/app/feed"
)

func newTestScheduler(t *testing.T, env *testEnv, feedsDir string) *Scheduler {
	t.Helper()

	configCache := feed.NewConfigCache(feedsDir)
	if err := configCache.Run(); err != nil {
		t.Fatalf("Failed to load configs: %v", err)
	}

	s := NewScheduler(configCache, env.feedRepo, env.entryRepo, env.pipeline, time.Hour, 2)
	t.Cleanup(s.cancel)
	return s
}

func TestSchedulerSyncConfigs(t *testing.T) {
	env := newTestEnv(t)
	dir := t.TempDir()
	writeFeedConfig(t, dir, "alpha", env.url("/a.xml"), true)
	writeFeedConfig(t, dir, "beta", env.url("/b.xml"), false)

	s := newTestScheduler(t, env, dir)
	s.syncConfigs()

	count, err := env.feedRepo.GetFeedCount()
	if err != nil || count != 2 {
		t.Errorf("Expected 2 synced feeds, got: %d (%v)", count, err)
	}

	alpha, found, err := env.feedRepo.GetFeed("alpha")
	if err != nil || !found {
		t.Fatalf("Expected alpha to be synced, got: found=%v err=%v", found, err)
	}
	if alpha.Title != "alpha" || alpha.FeedURL != env.url("/a.xml") {
		t.Errorf("Unexpected synced feed: %+v", alpha)
	}
}

func TestSchedulerMarksDefunctAfterRetries(t *testing.T) {
	env := newTestEnv(t)
	dir := t.TempDir()
	writeFeedConfig(t, dir, "alpha", env.url("/missing.xml"), true)

	s := newTestScheduler(t, env, dir)
	s.syncConfigs()

	fixed := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	task, err := s.EnqueueFeedUpdate("alpha")
	if err != nil {
		t.Fatalf("Expected task to be enqueued, got: %v", err)
	}
	update := <-s.taskQueue
	if update != task {
		t.Fatal("Expected queued task to be the returned task")
	}
	update.(*UpdateFeedTask).MaxRetries = 0

	s.executeTask(0, update)

	dbFeed, _, err := env.feedRepo.GetFeed("alpha")
	if err != nil {
		t.Fatal(err)
	}
	if !dbFeed.IsDefunct {
		t.Error("Expected feed to be marked defunct")
	}
	if dbFeed.LastFetchedAt == nil || !dbFeed.LastFetchedAt.Equal(fixed) {
		t.Errorf("Expected last fetch %v, got: %v", fixed, dbFeed.LastFetchedAt)
	}
	if dbFeed.NextFetchAt == nil || !dbFeed.NextFetchAt.Equal(fixed.Add(time.Hour)) {
		t.Errorf("Expected next fetch after refresh interval, got: %v", dbFeed.NextFetchAt)
	}

	env.serve("/missing.xml", rss(`<item><guid>back</guid></item>`))

	task, err = s.EnqueueFeedUpdate("alpha")
	if err != nil {
		t.Fatalf("Expected finished task to release the feed, got: %v", err)
	}
	s.executeTask(0, <-s.taskQueue)

	dbFeed, _, err = env.feedRepo.GetFeed("alpha")
	if err != nil {
		t.Fatal(err)
	}
	if dbFeed.IsDefunct {
		t.Error("Expected successful update to clear the defunct flag")
	}
	if task.(*UpdateFeedTask).Result.Created != 1 {
		t.Errorf("Expected one created entry, got: %+v", task.(*UpdateFeedTask).Result)
	}
}

func TestSchedulerEnqueueFeedUpdate(t *testing.T) {
	env := newTestEnv(t)
	dir := t.TempDir()
	writeFeedConfig(t, dir, "alpha", env.url("/a.xml"), true)
	writeFeedConfig(t, dir, "off", env.url("/off.xml"), false)

	s := newTestScheduler(t, env, dir)

	first, err := s.EnqueueFeedUpdate("alpha")
	if err != nil {
		t.Fatal(err)
	}
	second, err := s.EnqueueFeedUpdate("alpha")
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Error("Expected pending update to be reused")
	}
	if len(s.taskQueue) != 1 {
		t.Errorf("Expected a single queued task, got: %d", len(s.taskQueue))
	}

	if _, err := s.EnqueueFeedUpdate("off"); !errors.Is(err, ErrFeedDisabled) {
		t.Errorf("Expected ErrFeedDisabled, got: %v", err)
	}

	if _, err := s.EnqueueFeedUpdate("unknown"); err == nil {
		t.Error("Expected error for unknown feed")
	}
}

func TestSchedulerSkipsFeedsNotDue(t *testing.T) {
	env := newTestEnv(t)
	dir := t.TempDir()
	writeFeedConfig(t, dir, "alpha", env.url("/a.xml"), true)

	s := newTestScheduler(t, env, dir)
	s.syncConfigs()

	now := time.Now().UTC()
	if err := env.feedRepo.UpdateFetchTimes("alpha", now, now.Add(time.Hour)); err != nil {
		t.Fatal(err)
	}

	s.enqueueDueFeeds()
	if len(s.taskQueue) != 0 {
		t.Errorf("Expected no tasks for a feed that is not due, got: %d", len(s.taskQueue))
	}

	s.now = func() time.Time { return now.Add(2 * time.Hour) }
	s.enqueueDueFeeds()
	if len(s.taskQueue) != 1 {
		t.Errorf("Expected due feed to be queued, got: %d", len(s.taskQueue))
	}
}

func TestSchedulerStartStop(t *testing.T) {
	env := newTestEnv(t)
	env.serve("/a.xml", rss(`<item><guid>started</guid><title>Started</title></item>`))
	dir := t.TempDir()
	writeFeedConfig(t, dir, "alpha", env.url("/a.xml"), true)

	configCache := feed.NewConfigCache(dir)
	if err := configCache.Run(); err != nil {
		t.Fatal(err)
	}

	s := NewScheduler(configCache, env.feedRepo, env.entryRepo, env.pipeline, time.Hour, 2)
	s.Start()

	deadline := time.Now().Add(5 * time.Second)
	for {
		_, found, err := env.entryRepo.GetEntryByGUID("started")
		if err != nil {
			t.Fatal(err)
		}
		if found {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("Timed out waiting for the scheduled update")
		}
		time.Sleep(20 * time.Millisecond)
	}

	s.Stop()
}

func TestSchedulerStopWaitsForPendingRetries(t *testing.T) {
	env := newTestEnv(t)
	dir := t.TempDir()
	writeFeedConfig(t, dir, "alpha", env.url("/missing.xml"), true)

	s := newTestScheduler(t, env, dir)
	s.syncConfigs()

	if _, err := s.EnqueueFeedUpdate("alpha"); err != nil {
		t.Fatal(err)
	}
	task := <-s.taskQueue
	if !task.CanRetry() {
		t.Fatal("Expected task to allow retries")
	}

	s.executeTask(0, task)
	if task.GetRetryCount() != 1 {
		t.Fatalf("Expected a retry to be scheduled, got retry count %d", task.GetRetryCount())
	}

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for Stop")
	}

	if err := s.EnqueueTask(task); err == nil {
		t.Error("Expected enqueue after Stop to fail")
	}
	if _, err := s.EnqueueFeedUpdate("alpha"); err == nil {
		t.Error("Expected feed update after Stop to fail")
	}

	dbFeed, _, err := env.feedRepo.GetFeed("alpha")
	if err != nil {
		t.Fatal(err)
	}
	if dbFeed.IsDefunct {
		t.Error("Expected cancelled retry not to mark the feed defunct")
	}
}
