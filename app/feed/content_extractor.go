package feed

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/go-shiori/go-readability"
)

// ContentExtractor pulls the readable article body out of a web page.
type ContentExtractor struct{}

func NewContentExtractor() *ContentExtractor {
	return &ContentExtractor{}
}

// Run extracts article HTML from page data. pageURL, when set, is used to
// resolve relative links and may be empty.
func (e *ContentExtractor) Run(data []byte, pageURL string) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("HTML data is empty")
	}

	var base *url.URL
	if pageURL != "" {
		parsed, err := url.Parse(pageURL)
		if err != nil {
			return "", fmt.Errorf("invalid page URL: %w", err)
		}
		base = parsed
	}

	article, err := readability.FromReader(bytes.NewReader(data), base)
	if err != nil {
		return "", fmt.Errorf("failed to extract content: %w", err)
	}

	if article.Content == "" {
		return "", fmt.Errorf("no content extracted from HTML data")
	}

	slog.Debug("Content extracted successfully",
		"title", article.Title,
		"url", pageURL,
		"content_length", len(article.Content))

	return article.Content, nil
}
