package feed

import (
	"cmp"
	"errors"
	"log/slog"
	"regexp"
	"sync"
	"time"
	"unicode/utf8"
)

// MaxFieldLength bounds title, guid, link and image, counted in characters.
const MaxFieldLength = 1024

var ErrMissingIdentity = errors.New("item has neither id nor link")

var partialCharRef = regexp.MustCompile(`&#[0-9]*$`)

// Normalizer turns parsed items into entry candidates.
//
// Field cascades, first match wins:
//
//	guid    id, link
//	summary summary, description, ""
//	content first content part, ""
//	date    published, updated, now
//	image   typed links, first <img> in content
type Normalizer struct {
	encoding string
	images   *ImageFinder
	now      func() time.Time

	reencoders sync.Map
}

// NewNormalizer creates a normalizer. A non-empty encoding overrides the
// encoding detected for each document.
func NewNormalizer(encoding string, images *ImageFinder) *Normalizer {
	if images == nil {
		images = NewImageFinder()
	}
	return &Normalizer{
		encoding: encoding,
		images:   images,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Encoding picks the target encoding for a document.
func (n *Normalizer) Encoding(detected string) string {
	return cmp.Or(n.encoding, detected, defaultEncoding)
}

func (n *Normalizer) Run(item RawItem, encoding string) (Candidate, error) {
	re := n.reencoder(encoding)

	link := value(item.Link)
	guid := cmp.Or(value(item.ID), link)
	if guid == "" {
		return Candidate{}, ErrMissingIdentity
	}

	var summary string
	switch {
	case item.Summary != nil:
		summary = *item.Summary
	case item.Description != nil:
		summary = *item.Description
	}

	var content string
	if len(item.ContentParts) > 0 {
		content = item.ContentParts[0].Value
	}

	image := n.images.FromLinks(item.Links)
	if image == "" {
		image = n.images.FromContent(content)
	}

	var date time.Time
	switch {
	case item.Published != nil:
		date = item.Published.UTC()
	case item.Updated != nil:
		date = item.Updated.UTC()
	default:
		date = n.now()
	}

	return Candidate{
		Title:   Truncate(re.String(value(item.Title)), MaxFieldLength),
		GUID:    Truncate(re.String(guid), MaxFieldLength),
		Link:    Truncate(re.String(link), MaxFieldLength),
		Summary: re.String(summary),
		Content: re.String(content),
		Image:   Truncate(re.String(image), MaxFieldLength),
		Date:    date,
	}, nil
}

// ApplyContent sets content obtained after normalization, deriving the image
// from it when the candidate has none.
func (n *Normalizer) ApplyContent(c *Candidate, content string, encoding string) {
	c.Content = n.reencoder(encoding).String(content)
	if c.Image == "" {
		c.Image = Truncate(n.images.FromContent(c.Content), MaxFieldLength)
	}
}

func (n *Normalizer) reencoder(label string) *Reencoder {
	label = cmp.Or(label, defaultEncoding)
	if re, ok := n.reencoders.Load(label); ok {
		return re.(*Reencoder)
	}

	re, err := NewReencoder(label)
	if err != nil {
		slog.Warn("Unknown encoding, falling back to UTF-8", "encoding", label, "error", err)
		re, _ = NewReencoder(defaultEncoding)
	}
	actual, _ := n.reencoders.LoadOrStore(label, re)
	return actual.(*Reencoder)
}

// Truncate shortens s to at most limit characters. It never splits a UTF-8
// sequence or a numeric character reference.
func Truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}

	count := 0
	for i := range s {
		if count == limit {
			s = s[:i]
			break
		}
		count++
	}

	if loc := partialCharRef.FindStringIndex(s); loc != nil {
		s = s[:loc[0]]
	}
	return s
}

func value(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
