package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var _ EntryRepository = (*SQLiteEntryRepository)(nil)

// SQLiteEntryRepository handles database operations for entries and their
// feed associations
type SQLiteEntryRepository struct {
	db *DB
}

func NewEntryRepository(db *DB) *SQLiteEntryRepository {
	return &SQLiteEntryRepository{db: db}
}

const entryColumns = `e.id, e.feed_id, e.guid, e.title, e.link, e.content, e.summary,
	e.date, COALESCE(e.image, ''), e.created_at`

func (r *SQLiteEntryRepository) GetEntryByGUID(guid string) (*Entry, bool, error) {
	row := r.db.QueryRow(`SELECT `+entryColumns+` FROM entries e WHERE e.guid = ?`, guid)

	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get entry by guid: %w", err)
	}

	return entry, true, nil
}

// CreateEntry stores a new entry owned by feedID and links it to that feed.
// It returns ErrDuplicateGUID when the guid is already taken.
func (r *SQLiteEntryRepository) CreateEntry(feedID string, entry Entry) (*Entry, error) {
	entry.ID = uuid.NewString()
	entry.FeedID = feedID
	entry.Date = entry.Date.UTC()
	entry.CreatedAt = time.Now().UTC()

	var image sql.NullString
	if entry.Image != "" {
		image = sql.NullString{String: entry.Image, Valid: true}
	}

	tx, err := r.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO entries (id, feed_id, guid, title, link, content, summary, date, image, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, entry.ID, entry.FeedID, entry.GUID, entry.Title, entry.Link, entry.Content,
		entry.Summary, entry.Date, image, entry.CreatedAt)
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("failed to create entry %s: %w", entry.GUID, ErrDuplicateGUID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create entry: %w", err)
	}

	_, err = tx.Exec(`INSERT INTO feed_entries (feed_id, entry_id) VALUES (?, ?)`, feedID, entry.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to link new entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit entry: %w", err)
	}

	return &entry, nil
}

// LinkEntry associates an existing entry with a feed. Linking twice is a no-op.
func (r *SQLiteEntryRepository) LinkEntry(feedID, entryID string) error {
	_, err := r.db.Exec(`
		INSERT INTO feed_entries (feed_id, entry_id) VALUES (?, ?)
		ON CONFLICT (feed_id, entry_id) DO NOTHING
	`, feedID, entryID)

	if err != nil {
		return fmt.Errorf("failed to link entry: %w", err)
	}

	return nil
}

// GetFeedEntries returns entries associated with a feed, newest first
func (r *SQLiteEntryRepository) GetFeedEntries(feedName string, limit int) ([]Entry, error) {
	rows, err := r.db.Query(`
		SELECT `+entryColumns+`
		FROM entries e
		JOIN feed_entries fe ON fe.entry_id = e.id
		JOIN feeds f ON f.id = fe.feed_id
		WHERE f.name = ?
		ORDER BY e.date DESC
		LIMIT ?
	`, feedName, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get feed entries: %w", err)
	}

	return collectEntries(rows)
}

// GetRecentEntries returns entries across all feeds, newest first
func (r *SQLiteEntryRepository) GetRecentEntries(limit int) ([]Entry, error) {
	rows, err := r.db.Query(`
		SELECT `+entryColumns+`
		FROM entries e
		ORDER BY e.date DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent entries: %w", err)
	}

	return collectEntries(rows)
}

func (r *SQLiteEntryRepository) GetEntryCount(feedName string) (int, error) {
	var count int
	err := r.db.QueryRow(`
		SELECT COUNT(*)
		FROM feed_entries fe
		JOIN feeds f ON f.id = fe.feed_id
		WHERE f.name = ?
	`, feedName).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get entry count: %w", err)
	}
	return count, nil
}

// GetEntryFeeds returns the names of all feeds an entry is associated with
func (r *SQLiteEntryRepository) GetEntryFeeds(entryID string) ([]string, error) {
	rows, err := r.db.Query(`
		SELECT f.name
		FROM feed_entries fe
		JOIN feeds f ON f.id = fe.feed_id
		WHERE fe.entry_id = ?
		ORDER BY f.name
	`, entryID)
	if err != nil {
		return nil, fmt.Errorf("failed to get entry feeds: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan feed name: %w", err)
		}
		names = append(names, name)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating feed name rows: %w", err)
	}

	return names, nil
}

func collectEntries(rows *sql.Rows) ([]Entry, error) {
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entry row: %w", err)
		}
		entries = append(entries, *entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating entry rows: %w", err)
	}

	return entries, nil
}

func scanEntry(row scanner) (*Entry, error) {
	var entry Entry
	err := row.Scan(
		&entry.ID, &entry.FeedID, &entry.GUID, &entry.Title, &entry.Link,
		&entry.Content, &entry.Summary, &entry.Date, &entry.Image, &entry.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}
