package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var _ FeedRepository = (*SQLiteFeedRepository)(nil)

// SQLiteFeedRepository handles database operations for feeds
type SQLiteFeedRepository struct {
	db *DB
}

func NewFeedRepository(db *DB) *SQLiteFeedRepository {
	return &SQLiteFeedRepository{db: db}
}

const feedColumns = `id, name, title, feed_url, public_url, is_defunct,
	last_fetched_at, next_fetch_at, created_at, updated_at`

// UpsertFeed inserts or updates a feed configuration
func (r *SQLiteFeedRepository) UpsertFeed(feedName, feedURL, title, publicURL string) error {
	_, err := r.db.Exec(`
		INSERT INTO feeds (id, name, feed_url, title, public_url)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET
			feed_url = excluded.feed_url,
			title = excluded.title,
			public_url = excluded.public_url,
			updated_at = CURRENT_TIMESTAMP
	`, uuid.NewString(), feedName, feedURL, title, publicURL)

	if isUniqueViolation(err) {
		return fmt.Errorf("failed to upsert feed %s: %w", feedName, ErrDuplicateFeedURL)
	}
	if err != nil {
		return fmt.Errorf("failed to upsert feed: %w", err)
	}

	return nil
}

// UpdateFetchTimes records a polling attempt
func (r *SQLiteFeedRepository) UpdateFetchTimes(feedName string, fetchedAt, nextFetch time.Time) error {
	_, err := r.db.Exec(`
		UPDATE feeds
		SET last_fetched_at = ?, next_fetch_at = ?, updated_at = CURRENT_TIMESTAMP
		WHERE name = ?
	`, fetchedAt.UTC(), nextFetch.UTC(), feedName)

	if err != nil {
		return fmt.Errorf("failed to update fetch times: %w", err)
	}

	return nil
}

func (r *SQLiteFeedRepository) SetFeedDefunct(feedName string, defunct bool) error {
	_, err := r.db.Exec(`
		UPDATE feeds
		SET is_defunct = ?, updated_at = CURRENT_TIMESTAMP
		WHERE name = ?
	`, defunct, feedName)

	if err != nil {
		return fmt.Errorf("failed to set feed defunct status: %w", err)
	}

	return nil
}

func (r *SQLiteFeedRepository) GetFeed(feedName string) (*Feed, bool, error) {
	row := r.db.QueryRow(`SELECT `+feedColumns+` FROM feeds WHERE name = ?`, feedName)

	feed, err := scanFeed(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get feed: %w", err)
	}

	return feed, true, nil
}

func (r *SQLiteFeedRepository) GetFeeds() ([]Feed, error) {
	rows, err := r.db.Query(`SELECT ` + feedColumns + ` FROM feeds ORDER BY title, name`)
	if err != nil {
		return nil, fmt.Errorf("failed to get feeds: %w", err)
	}
	defer rows.Close()

	var feeds []Feed
	for rows.Next() {
		feed, err := scanFeed(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan feed row: %w", err)
		}
		feeds = append(feeds, *feed)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating feed rows: %w", err)
	}

	return feeds, nil
}

func (r *SQLiteFeedRepository) GetFeedCount() (int, error) {
	var count int
	err := r.db.QueryRow("SELECT COUNT(*) FROM feeds").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get feed count: %w", err)
	}
	return count, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanFeed(row scanner) (*Feed, error) {
	var feed Feed
	err := row.Scan(
		&feed.ID, &feed.Name, &feed.Title, &feed.FeedURL, &feed.PublicURL, &feed.IsDefunct,
		&feed.LastFetchedAt, &feed.NextFetchAt, &feed.CreatedAt, &feed.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &feed, nil
}
