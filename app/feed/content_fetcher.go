package feed

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"strings"

	"golang.org/x/net/html/charset"
)

const htmlAccept = "text/html, application/xhtml+xml;q=0.9, */*;q=0.5"

// ContentFetcher retrieves an entry's page and reduces it to markdown.
type ContentFetcher struct {
	client    *Client
	sanitizer *Sanitizer
	extractor *ContentExtractor
	converter *MarkdownConverter
}

func NewContentFetcher(client *Client) *ContentFetcher {
	return &ContentFetcher{
		client:    client,
		sanitizer: NewSanitizer(),
		extractor: NewContentExtractor(),
		converter: NewMarkdownConverter(),
	}
}

func (f *ContentFetcher) Run(ctx context.Context, link string) (*Content, error) {
	body, contentType, err := f.client.Get(ctx, link, htmlAccept)
	if err != nil {
		return nil, err
	}

	if !isHTML(contentType) {
		return nil, fmt.Errorf("content type is not HTML: %s", contentType)
	}

	utf8Reader, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", link, err)
	}

	raw, err := io.ReadAll(utf8Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", link, err)
	}

	return f.FromHTML(string(raw))
}

// FromHTML runs the sanitize, extract and convert steps over an already
// retrieved document, such as inline feed content.
func (f *ContentFetcher) FromHTML(raw string) (*Content, error) {
	document, body, err := f.sanitizer.Run(strings.NewReader(raw))
	if err != nil {
		return nil, err
	}

	article, err := f.extractor.Run(document)
	if err != nil {
		slog.Debug("Readability extraction failed, using sanitized body", "error", err)
		article = body
	}
	if strings.TrimSpace(article) == "" {
		return nil, errNoContent
	}

	markdown, err := f.converter.Run(article)
	if err != nil {
		return nil, err
	}
	if markdown == "" {
		return nil, errNoContent
	}

	return &Content{Raw: raw, Markdown: markdown}, nil
}

func isHTML(contentType string) bool {
	if contentType == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "text/html" || mediaType == "application/xhtml+xml"
}
