package database

import (
	"time"
)

type FeedRepository interface {
	GetFeed(feedName string) (*Feed, bool, error)
	GetFeeds() ([]Feed, error)
	GetFeedCount() (int, error)

	UpsertFeed(feedName, feedURL, title, publicURL string) error
	UpdateFetchTimes(feedName string, fetchedAt, nextFetch time.Time) error
	SetFeedDefunct(feedName string, defunct bool) error
}

type EntryRepository interface {
	GetEntryByGUID(guid string) (*Entry, bool, error)
	GetFeedEntries(feedName string, limit int) ([]Entry, error)
	GetRecentEntries(limit int) ([]Entry, error)
	GetEntryCount(feedName string) (int, error)
	GetEntryFeeds(entryID string) ([]string, error)

	CreateEntry(feedID string, entry Entry) (*Entry, error)
	LinkEntry(feedID, entryID string) error
}
