package tasks

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/lysyi3m/feed-aggregator/app/feed"
	"golang.org/x/net/html/charset"
)

var _ feed.Enricher = (*articleEnricher)(nil)

// articleEnricher fills the content of a new entry from its linked page.
type articleEnricher struct {
	fetcher    *Fetcher
	extractor  *feed.ContentExtractor
	normalizer *feed.Normalizer
	encoding   string
	timeout    time.Duration
}

func (e *articleEnricher) Enrich(ctx context.Context, c *feed.Candidate) error {
	if c.Content != "" || c.Link == "" {
		return nil
	}

	data, contentType, err := e.fetcher.Fetch(ctx, c.Link, e.timeout)
	if err != nil {
		return fmt.Errorf("failed to fetch article: %w", err)
	}

	reader, err := charset.NewReader(bytes.NewReader(data), contentType)
	if err != nil {
		return fmt.Errorf("failed to decode article: %w", err)
	}
	page, err := io.ReadAll(reader)
	if err != nil {
		return fmt.Errorf("failed to decode article: %w", err)
	}

	content, err := e.extractor.Run(page, c.Link)
	if err != nil {
		return err
	}

	e.normalizer.ApplyContent(c, content, e.encoding)
	return nil
}
