package feed

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/mmcdole/gofeed"
	"github.com/mmcdole/gofeed/atom"
)

type Parser struct {
	gofeedParser *gofeed.Parser
	atomParser   *atom.Parser
}

func NewParser() *Parser {
	return &Parser{
		gofeedParser: gofeed.NewParser(),
		atomParser:   &atom.Parser{},
	}
}

// Run parses an RSS, Atom or JSON feed. contentType is the Content-Type the
// document was served with and may be empty.
func (p *Parser) Run(data []byte, contentType string) (*Document, error) {
	feed, err := p.gofeedParser.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	doc := &Document{
		Encoding: DetectEncoding(data, contentType),
		Title:    feed.Title,
		Link:     feed.Link,
		Items:    make([]RawItem, 0, len(feed.Items)),
	}

	entryLinks := p.atomEntryLinks(data, len(feed.Items))

	for i, item := range feed.Items {
		if item == nil {
			continue
		}
		var links []*atom.Link
		if entryLinks != nil {
			links = entryLinks[i]
		}
		doc.Items = append(doc.Items, p.rawItem(item, links))
	}

	return doc, nil
}

// atomEntryLinks returns the typed links of each Atom entry, in document
// order. The universal item keeps only hrefs, losing rel and type. Returns
// nil for other formats or when the entries do not line up with items.
func (p *Parser) atomEntryLinks(data []byte, itemCount int) [][]*atom.Link {
	if gofeed.DetectFeedType(bytes.NewReader(data)) != gofeed.FeedTypeAtom {
		return nil
	}

	atomFeed, err := p.atomParser.Parse(bytes.NewReader(data))
	if err != nil || len(atomFeed.Entries) != itemCount {
		return nil
	}

	links := make([][]*atom.Link, itemCount)
	for i, entry := range atomFeed.Entries {
		if entry != nil {
			links[i] = entry.Links
		}
	}
	return links
}

func (p *Parser) rawItem(item *gofeed.Item, atomLinks []*atom.Link) RawItem {
	raw := RawItem{
		ID:        optional(item.GUID),
		Link:      optional(item.Link),
		Title:     optional(item.Title),
		Summary:   optional(item.Description),
		Published: item.PublishedParsed,
		Updated:   item.UpdatedParsed,
	}

	if item.ITunesExt != nil && item.ITunesExt.Summary != "" {
		raw.Description = optional(item.ITunesExt.Summary)
	} else if item.DublinCoreExt != nil && len(item.DublinCoreExt.Description) > 0 {
		raw.Description = optional(item.DublinCoreExt.Description[0])
	}

	if item.Content != "" {
		raw.ContentParts = []ContentPart{{Value: item.Content, Type: "text/html"}}
	}

	if atomLinks != nil {
		for _, link := range atomLinks {
			if link != nil && link.Href != "" {
				raw.Links = append(raw.Links, RawLink{Href: link.Href, Rel: link.Rel, Type: link.Type})
			}
		}
	} else {
		for _, href := range item.Links {
			if href != "" {
				raw.Links = append(raw.Links, RawLink{Href: href, Rel: "alternate"})
			}
		}
		for _, enclosure := range item.Enclosures {
			if enclosure != nil {
				raw.Links = append(raw.Links, RawLink{Href: enclosure.URL, Rel: "enclosure", Type: enclosure.Type})
			}
		}
	}
	raw.Links = append(raw.Links, p.mediaLinks(item)...)

	return raw
}

// mediaLinks collects images declared through the media and itunes
// namespaces. gofeed's own Item.Image is not used since it falls back to the
// first <img> of the content, which bypasses the image size heuristic.
func (p *Parser) mediaLinks(item *gofeed.Item) []RawLink {
	var links []RawLink

	if media, ok := item.Extensions["media"]; ok {
		for _, thumb := range media["thumbnail"] {
			if href := thumb.Attrs["url"]; href != "" {
				links = append(links, RawLink{Href: href, Rel: "thumbnail", Type: "image"})
			}
		}
		for _, content := range media["content"] {
			href := content.Attrs["url"]
			mediaType := content.Attrs["type"]
			if mediaType == "" && content.Attrs["medium"] == "image" {
				mediaType = "image"
			}
			if href != "" && strings.Contains(mediaType, "image") {
				links = append(links, RawLink{Href: href, Rel: "enclosure", Type: mediaType})
			}
		}
	}

	if item.ITunesExt != nil && item.ITunesExt.Image != "" {
		links = append(links, RawLink{Href: item.ITunesExt.Image, Rel: "thumbnail", Type: "image"})
	}

	return links
}
