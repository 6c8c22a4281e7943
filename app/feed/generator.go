package feed

import (
	"bytes"
	"cmp"
	"encoding/xml"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/lysyi3m/feed-aggregator/app/database"
)

// Generator renders a feed and its merged entries as RSS 2.0.
type Generator struct {
	baseURL string
	port    string
	version string
}

func NewGenerator(baseURL, port, version string) *Generator {
	return &Generator{baseURL: baseURL, port: port, version: version}
}

func (g *Generator) Run(feed database.Feed, entries []database.Entry) (string, error) {
	var buf bytes.Buffer

	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	buf.WriteString("\n")
	buf.WriteString(`<rss version="2.0" xmlns:content="http://purl.org/rss/1.0/modules/content/" xmlns:atom="http://www.w3.org/2005/Atom" xmlns:media="http://search.yahoo.com/mrss/">`)
	buf.WriteString("\n  <channel>\n")

	g.writeElement(&buf, "title", cmp.Or(feed.Title, feed.Name), 4)
	g.writeElement(&buf, "link", cmp.Or(feed.PublicURL, feed.FeedURL), 4)
	g.writeElement(&buf, "description", fmt.Sprintf("Aggregated feed from %s", feed.FeedURL), 4)

	buf.WriteString(fmt.Sprintf("    <atom:link href=\"%s\" rel=\"self\" type=\"application/rss+xml\" />\n",
		html.EscapeString(g.selfLink(feed.Name))))

	lastBuildDate := time.Now().UTC()
	if len(entries) > 0 {
		lastBuildDate = cmp.Or(entries[0].Date, entries[0].CreatedAt, lastBuildDate)
	}

	g.writeElement(&buf, "lastBuildDate", lastBuildDate.Format(time.RFC1123Z), 4)
	g.writeElement(&buf, "generator", fmt.Sprintf("Feed-Aggregator/%s", g.version), 4)

	for _, entry := range entries {
		g.writeEntry(&buf, entry)
	}

	buf.WriteString("  </channel>\n</rss>")

	return buf.String(), nil
}

func (g *Generator) selfLink(feedName string) string {
	if g.baseURL != "" {
		return fmt.Sprintf("%s/feeds/%s", g.baseURL, feedName)
	}
	return fmt.Sprintf("http://localhost:%s/feeds/%s", g.port, feedName)
}

func (g *Generator) writeEntry(buf *bytes.Buffer, entry database.Entry) {
	buf.WriteString("    <item>\n")

	buf.WriteString(fmt.Sprintf("      <guid isPermaLink=\"%t\">", g.isURL(entry.GUID)))
	xml.EscapeText(buf, []byte(entry.GUID))
	buf.WriteString("</guid>\n")

	g.writeElement(buf, "title", entry.Title, 6)
	g.writeElement(buf, "link", entry.Link, 6)
	g.writeElement(buf, "description", entry.Summary, 6)

	if entry.Content != "" && entry.Content != entry.Summary {
		buf.WriteString("      <content:encoded><![CDATA[")
		buf.WriteString(escapeCDATA(entry.Content))
		buf.WriteString("]]></content:encoded>\n")
	}

	if !entry.Date.IsZero() {
		g.writeElement(buf, "pubDate", entry.Date.Format(time.RFC1123Z), 6)
	}

	if entry.Image != "" {
		buf.WriteString(fmt.Sprintf("      <media:thumbnail url=\"%s\" />\n", html.EscapeString(entry.Image)))
	}

	buf.WriteString("    </item>\n")
}

func (g *Generator) writeElement(buf *bytes.Buffer, tag, content string, indent int) {
	if content == "" {
		return
	}

	for i := 0; i < indent; i++ {
		buf.WriteByte(' ')
	}

	buf.WriteString("<")
	buf.WriteString(tag)
	buf.WriteString(">")
	xml.EscapeText(buf, []byte(content))
	buf.WriteString("</")
	buf.WriteString(tag)
	buf.WriteString(">\n")
}

// escapeCDATA splits any "]]>" so it cannot close the enclosing section.
func escapeCDATA(s string) string {
	return strings.ReplaceAll(s, "]]>", "]]]]><![CDATA[>")
}

func (g *Generator) isURL(s string) bool {
	return (len(s) > 7 && s[:7] == "http://") || (len(s) > 8 && s[:8] == "https://")
}
