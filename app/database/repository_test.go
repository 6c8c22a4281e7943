package database

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := NewConnection(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	version, dirty, err := RunMigrations(db)
	if err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}
	if version != 1 || dirty {
		t.Fatalf("Expected clean migration version 1, got: %d (dirty=%v)", version, dirty)
	}

	return db
}

func createFeed(t *testing.T, repo *SQLiteFeedRepository, name string) *Feed {
	t.Helper()

	if err := repo.UpsertFeed(name, "https://example.com/"+name+".xml", "Feed "+name, "https://example.com/"+name); err != nil {
		t.Fatalf("Failed to upsert feed: %v", err)
	}
	feed, found, err := repo.GetFeed(name)
	if err != nil || !found {
		t.Fatalf("Failed to load feed %s: found=%v err=%v", name, found, err)
	}
	return feed
}

func TestRunMigrationsIsIdempotent(t *testing.T) {
	db := setupTestDB(t)

	version, dirty, err := RunMigrations(db)
	if err != nil {
		t.Fatalf("Expected no error on second run, got: %v", err)
	}
	if version != 1 || dirty {
		t.Errorf("Expected version 1, got: %d (dirty=%v)", version, dirty)
	}
}

func TestFeedRepositoryUpsert(t *testing.T) {
	repo := NewFeedRepository(setupTestDB(t))

	feed := createFeed(t, repo, "alpha")
	if feed.Title != "Feed alpha" || feed.FeedURL != "https://example.com/alpha.xml" {
		t.Errorf("Unexpected feed: %+v", feed)
	}
	if feed.IsDefunct || feed.LastFetchedAt != nil {
		t.Errorf("Expected fresh feed, got: %+v", feed)
	}

	if err := repo.UpsertFeed("alpha", "https://example.com/moved.xml", "Renamed", ""); err != nil {
		t.Fatalf("Expected update to succeed, got: %v", err)
	}
	updated, _, err := repo.GetFeed("alpha")
	if err != nil {
		t.Fatal(err)
	}
	if updated.ID != feed.ID {
		t.Errorf("Expected feed id to be stable across upserts")
	}
	if updated.Title != "Renamed" || updated.FeedURL != "https://example.com/moved.xml" {
		t.Errorf("Expected updated fields, got: %+v", updated)
	}

	count, err := repo.GetFeedCount()
	if err != nil || count != 1 {
		t.Errorf("Expected 1 feed, got: %d (%v)", count, err)
	}

	_, found, err := repo.GetFeed("missing")
	if err != nil || found {
		t.Errorf("Expected missing feed to be not found, got: found=%v err=%v", found, err)
	}
}

func TestFeedRepositoryUniqueURL(t *testing.T) {
	repo := NewFeedRepository(setupTestDB(t))
	createFeed(t, repo, "alpha")

	err := repo.UpsertFeed("beta", "https://example.com/alpha.xml", "Beta", "")
	if !errors.Is(err, ErrDuplicateFeedURL) {
		t.Errorf("Expected ErrDuplicateFeedURL, got: %v", err)
	}
}

func TestFeedRepositoryFetchState(t *testing.T) {
	repo := NewFeedRepository(setupTestDB(t))
	createFeed(t, repo, "alpha")

	fetchedAt := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	if err := repo.UpdateFetchTimes("alpha", fetchedAt, fetchedAt.Add(time.Hour)); err != nil {
		t.Fatal(err)
	}
	if err := repo.SetFeedDefunct("alpha", true); err != nil {
		t.Fatal(err)
	}

	feed, _, err := repo.GetFeed("alpha")
	if err != nil {
		t.Fatal(err)
	}
	if feed.LastFetchedAt == nil || !feed.LastFetchedAt.Equal(fetchedAt) {
		t.Errorf("Expected last fetch %v, got: %v", fetchedAt, feed.LastFetchedAt)
	}
	if feed.NextFetchAt == nil || !feed.NextFetchAt.Equal(fetchedAt.Add(time.Hour)) {
		t.Errorf("Expected next fetch an hour later, got: %v", feed.NextFetchAt)
	}
	if !feed.IsDefunct {
		t.Error("Expected feed to be defunct")
	}

	feeds, err := repo.GetFeeds()
	if err != nil || len(feeds) != 1 {
		t.Errorf("Expected 1 feed, got: %d (%v)", len(feeds), err)
	}
}

func TestEntryRepositoryCreateAndLink(t *testing.T) {
	db := setupTestDB(t)
	feeds := NewFeedRepository(db)
	entries := NewEntryRepository(db)

	alpha := createFeed(t, feeds, "alpha")
	beta := createFeed(t, feeds, "beta")

	created, err := entries.CreateEntry(alpha.ID, Entry{
		GUID:    "guid-1",
		Title:   "First",
		Link:    "https://example.com/1",
		Summary: "Summary",
		Date:    time.Date(2023, 7, 3, 10, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	stored, found, err := entries.GetEntryByGUID("guid-1")
	if err != nil || !found {
		t.Fatalf("Expected stored entry, got: found=%v err=%v", found, err)
	}
	if stored.ID != created.ID || stored.FeedID != alpha.ID || stored.Image != "" {
		t.Errorf("Unexpected stored entry: %+v", stored)
	}

	_, err = entries.CreateEntry(beta.ID, Entry{GUID: "guid-1", Date: time.Now()})
	if !errors.Is(err, ErrDuplicateGUID) {
		t.Errorf("Expected ErrDuplicateGUID, got: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := entries.LinkEntry(beta.ID, created.ID); err != nil {
			t.Fatalf("Expected idempotent link, got: %v", err)
		}
	}

	names, err := entries.GetEntryFeeds(created.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 2 || names[0] != "alpha" || names[1] != "beta" {
		t.Errorf("Expected entry in alpha and beta, got: %v", names)
	}

	count, err := entries.GetEntryCount("beta")
	if err != nil || count != 1 {
		t.Errorf("Expected 1 entry for beta, got: %d (%v)", count, err)
	}

	_, found, err = entries.GetEntryByGUID("missing")
	if err != nil || found {
		t.Errorf("Expected missing guid to be not found, got: found=%v err=%v", found, err)
	}
}

func TestEntryRepositoryOrdering(t *testing.T) {
	db := setupTestDB(t)
	feeds := NewFeedRepository(db)
	entries := NewEntryRepository(db)

	alpha := createFeed(t, feeds, "alpha")
	createFeed(t, feeds, "empty")

	base := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, guid := range []string{"old", "new", "middle"} {
		offset := map[string]time.Duration{"old": 0, "middle": time.Hour, "new": 2 * time.Hour}[guid]
		_, err := entries.CreateEntry(alpha.ID, Entry{
			GUID:  guid,
			Title: guid,
			Date:  base.Add(offset),
			Image: map[bool]string{true: "https://example.com/img.png"}[i == 0],
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	list, err := entries.GetFeedEntries("alpha", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 3 || list[0].GUID != "new" || list[1].GUID != "middle" || list[2].GUID != "old" {
		t.Errorf("Expected newest first, got: %v", guids(list))
	}
	if list[2].Image != "https://example.com/img.png" || list[0].Image != "" {
		t.Errorf("Expected image to round trip, got: %q / %q", list[2].Image, list[0].Image)
	}

	limited, err := entries.GetRecentEntries(2)
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 2 || limited[0].GUID != "new" {
		t.Errorf("Expected two newest entries, got: %v", guids(limited))
	}

	none, err := entries.GetFeedEntries("empty", 10)
	if err != nil || len(none) != 0 {
		t.Errorf("Expected no entries for empty feed, got: %v (%v)", guids(none), err)
	}
}

func guids(entries []Entry) []string {
	var out []string
	for _, e := range entries {
		out = append(out, e.GUID)
	}
	return out
}
