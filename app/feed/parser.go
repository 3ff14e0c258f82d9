package feed

import (
	"bytes"
	"cmp"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/mmcdole/gofeed"
	"golang.org/x/text/unicode/norm"
)

// Parser is safe for concurrent use. gofeed.Parser caches its translators on
// first use, so each Run gets its own.
type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

// Run parses an RSS, Atom or JSON feed document. Items without a link are
// dropped and counted in Metadata.Skipped.
func (p *Parser) Run(data []byte) (*Metadata, []Item, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil, fmt.Errorf("failed to parse feed: %w: empty document", ErrMalformedFeed)
	}

	feed, err := gofeed.NewParser().Parse(bytes.NewReader(data))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse feed: %w: %w", ErrMalformedFeed, err)
	}

	metadata := &Metadata{
		Title:       cleanText(feed.Title),
		Link:        strings.TrimSpace(feed.Link),
		Description: cleanText(feed.Description),
		Language:    feed.Language,
	}

	if feed.Image != nil {
		metadata.ImageURL = feed.Image.URL
	}

	items := make([]Item, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item == nil {
			continue
		}

		normalized := p.normalizeItem(item)
		if normalized.Link == "" {
			slog.Warn("Skipping feed item without link", "feed", metadata.Title, "title", item.Title, "guid", item.GUID)
			metadata.Skipped++
			continue
		}
		items = append(items, normalized)
	}

	return metadata, items, nil
}

func (p *Parser) normalizeItem(item *gofeed.Item) Item {
	return Item{
		Link:        strings.TrimSpace(item.Link),
		Title:       cleanText(item.Title),
		Author:      p.extractAuthor(item),
		Summary:     cleanText(item.Description),
		Content:     item.Content,
		PublishedAt: p.publishedAt(item),
	}
}

func (p *Parser) publishedAt(item *gofeed.Item) *time.Time {
	if item.PublishedParsed != nil {
		t := item.PublishedParsed.UTC()
		return &t
	}
	if item.UpdatedParsed != nil {
		t := item.UpdatedParsed.UTC()
		return &t
	}

	raw := strings.TrimSpace(cmp.Or(item.Published, item.Updated))
	if raw == "" {
		return nil
	}

	t, err := dateparse.ParseAny(raw)
	if err != nil {
		slog.Debug("Unparseable item date", "link", item.Link, "value", raw, "error", err)
		return nil
	}
	t = t.UTC()
	return &t
}

func (p *Parser) extractAuthor(item *gofeed.Item) string {
	for _, author := range item.Authors {
		if author == nil {
			continue
		}
		if s := p.formatAuthor(author.Name, author.Email); s != "" {
			return s
		}
	}

	if item.Author != nil {
		return p.formatAuthor(item.Author.Name, item.Author.Email)
	}

	return ""
}

func (p *Parser) formatAuthor(name, email string) string {
	name = cleanText(name)
	email = strings.TrimSpace(email)

	if name != "" && email != "" {
		return fmt.Sprintf("%s (%s)", email, name)
	} else if name != "" {
		return name
	} else if email != "" {
		return email
	}

	return ""
}

// cleanText trims s and puts it in NFC so that visually equal titles compare equal.
func cleanText(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}
