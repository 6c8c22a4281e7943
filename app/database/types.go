package database

import (
	"time"
)

type Feed struct {
	ID            string // Database UUID
	Name          string // Configuration feed identifier derived from filename
	Title         string
	FeedURL       string // Fetch address, unique across feeds
	PublicURL     string // Human-facing site URL
	IsDefunct     bool
	LastFetchedAt *time.Time
	NextFetchAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type Entry struct {
	ID        string
	FeedID    string // Feed that first produced the entry
	GUID      string
	Title     string
	Link      string
	Content   string
	Summary   string
	Date      time.Time
	Image     string // Empty when no suitable image was found
	CreatedAt time.Time
}
