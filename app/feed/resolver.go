package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lysyi3m/feed-aggregator/app/database"
)

type MergeOutcome string

const (
	MergeCreated MergeOutcome = "created"
	MergeLinked  MergeOutcome = "linked"
	MergeFailed  MergeOutcome = "failed"
)

// EntryStore is the part of the entry repository the resolver needs.
type EntryStore interface {
	GetEntryByGUID(guid string) (*database.Entry, bool, error)
	CreateEntry(feedID string, entry database.Entry) (*database.Entry, error)
	LinkEntry(feedID, entryID string) error
}

var _ EntryStore = (database.EntryRepository)(nil)

// Enricher may complete a candidate just before it is stored for the first
// time. It is never called for entries that already exist.
type Enricher interface {
	Enrich(ctx context.Context, c *Candidate) error
}

// Resolver merges candidates into the store by guid. Existing entries are
// linked to the feed and never rewritten.
type Resolver struct {
	store    EntryStore
	enricher Enricher
}

// NewResolver creates a resolver; enricher may be nil.
func NewResolver(store EntryStore, enricher Enricher) *Resolver {
	return &Resolver{store: store, enricher: enricher}
}

func (r *Resolver) Merge(ctx context.Context, feedID string, c Candidate) (MergeOutcome, error) {
	if c.GUID == "" {
		return MergeFailed, ErrMissingIdentity
	}

	linked, err := r.linkExisting(feedID, c.GUID)
	if err != nil {
		return MergeFailed, err
	}
	if linked {
		return MergeLinked, nil
	}

	if r.enricher != nil {
		if err := r.enricher.Enrich(ctx, &c); err != nil {
			slog.Warn("Failed to enrich entry", "guid", c.GUID, "link", c.Link, "error", err)
		}
	}

	_, err = r.store.CreateEntry(feedID, database.Entry{
		GUID:    c.GUID,
		Title:   c.Title,
		Link:    c.Link,
		Content: c.Content,
		Summary: c.Summary,
		Date:    c.Date,
		Image:   c.Image,
	})
	if err == nil {
		return MergeCreated, nil
	}

	if !errors.Is(err, database.ErrDuplicateGUID) {
		return MergeFailed, fmt.Errorf("failed to create entry: %w", err)
	}

	// Another update stored the same guid between lookup and insert.
	slog.Warn("Entry created concurrently",
		"title", c.Title,
		"link", c.Link,
		"guid", c.GUID,
		"image", c.Image)

	linked, err = r.linkExisting(feedID, c.GUID)
	if err != nil {
		return MergeFailed, err
	}
	if !linked {
		return MergeFailed, fmt.Errorf("entry %s vanished after guid conflict", c.GUID)
	}
	return MergeLinked, nil
}

func (r *Resolver) linkExisting(feedID, guid string) (bool, error) {
	existing, found, err := r.store.GetEntryByGUID(guid)
	if err != nil {
		return false, fmt.Errorf("failed to look up entry: %w", err)
	}
	if !found {
		return false, nil
	}

	if err := r.store.LinkEntry(feedID, existing.ID); err != nil {
		return false, fmt.Errorf("failed to link entry: %w", err)
	}
	return true, nil
}
