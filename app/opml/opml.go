// Package opml imports and exports subscription lists.
package opml

import (
	"cmp"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"golang.org/x/net/html/charset"

	"github.com/lysyi3m/lazyfeed/app/database"
)

var ErrNoFeeds = errors.New("no feeds found in OPML document")

type document struct {
	XMLName xml.Name `xml:"opml"`
	Version string   `xml:"version,attr"`
	Head    head     `xml:"head"`
	Body    body     `xml:"body"`
}

type head struct {
	Title       string `xml:"title,omitempty"`
	DateCreated string `xml:"dateCreated,omitempty"`
}

type body struct {
	Outlines []outline `xml:"outline"`
}

type outline struct {
	Text        string    `xml:"text,attr"`
	Title       string    `xml:"title,attr,omitempty"`
	Type        string    `xml:"type,attr,omitempty"`
	XMLURL      string    `xml:"xmlUrl,attr,omitempty"`
	HTMLURL     string    `xml:"htmlUrl,attr,omitempty"`
	Description string    `xml:"description,attr,omitempty"`
	Outlines    []outline `xml:"outline,omitempty"`
}

// Parse reads an OPML document and returns its feeds in document order,
// flattening folders. Outlines without an xmlUrl are treated as folders.
func Parse(r io.Reader) ([]database.Feed, error) {
	decoder := xml.NewDecoder(r)
	decoder.CharsetReader = charset.NewReaderLabel

	var doc document
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode OPML: %w", err)
	}

	var feeds []database.Feed
	seen := make(map[string]struct{})

	var walk func([]outline)
	walk = func(outlines []outline) {
		for _, o := range outlines {
			url := strings.TrimSpace(o.XMLURL)
			if url == "" {
				walk(o.Outlines)
				continue
			}
			if _, ok := seen[url]; ok {
				continue
			}
			seen[url] = struct{}{}

			feeds = append(feeds, database.Feed{
				URL:         url,
				Title:       strings.TrimSpace(cmp.Or(o.Title, o.Text)),
				SiteLink:    strings.TrimSpace(o.HTMLURL),
				Description: o.Description,
			})
		}
	}
	walk(doc.Body.Outlines)

	if len(feeds) == 0 {
		return nil, ErrNoFeeds
	}

	return feeds, nil
}

// Export writes feeds as a flat OPML 2.0 document.
func Export(w io.Writer, title string, feeds []database.Feed) error {
	doc := document{
		Version: "2.0",
		Head: head{
			Title:       title,
			DateCreated: time.Now().Format(time.RFC1123Z),
		},
	}

	for _, f := range feeds {
		name := cmp.Or(f.Title, f.URL)
		doc.Body.Outlines = append(doc.Body.Outlines, outline{
			Text:        name,
			Title:       name,
			Type:        "rss",
			XMLURL:      f.URL,
			HTMLURL:     f.SiteLink,
			Description: f.Description,
		})
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return fmt.Errorf("failed to write OPML: %w", err)
	}

	encoder := xml.NewEncoder(w)
	encoder.Indent("", "  ")
	if err := encoder.Encode(doc); err != nil {
		return fmt.Errorf("failed to write OPML: %w", err)
	}

	_, err := io.WriteString(w, "\n")
	return err
}
