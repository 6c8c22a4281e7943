package feed

import (
	"time"
)

// Parsed document types

// Document is one parsed feed: the encoding detected for it and its items in
// document order.
type Document struct {
	Encoding string
	Title    string
	Link     string
	Items    []RawItem
}

// RawItem is a feed item as the parser produced it. Optional fields are nil
// when the document did not carry them.
type RawItem struct {
	ID           *string
	Link         *string
	Title        *string
	Summary      *string
	Description  *string
	ContentParts []ContentPart
	Links        []RawLink
	Published    *time.Time
	Updated      *time.Time
}

type ContentPart struct {
	Value string
	Type  string
}

// RawLink is a typed link attached to an item (alternate links, enclosures,
// thumbnails).
type RawLink struct {
	Href string
	Rel  string
	Type string
}

// Candidate is the normalized, not yet persisted form of an entry.
type Candidate struct {
	Title   string
	GUID    string
	Link    string
	Summary string
	Content string
	Image   string
	Date    time.Time
}

// Configuration types

type Config struct {
	Name      string         // Derived from filename (without .yml extension)
	URL       string         `yaml:"url"`
	Title     string         `yaml:"title"`
	PublicURL string         `yaml:"public_url"`
	Settings  ConfigSettings `yaml:"settings"`
}

type ConfigSettings struct {
	Enabled         bool `yaml:"enabled"`
	RefreshInterval int  `yaml:"refresh_interval"` // seconds
	MaxItems        int  `yaml:"max_items"`        // entries served per feed
	Timeout         int  `yaml:"timeout"`          // seconds
	ExtractContent  bool `yaml:"extract_content"`  // fill empty content of new entries from the linked page
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
