package feed

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-shiori/go-readability"
)

var errNoContent = errors.New("no content extracted from HTML data")

type ContentExtractor struct{}

func NewContentExtractor() *ContentExtractor {
	return &ContentExtractor{}
}

func (e *ContentExtractor) Run(document string) (string, error) {
	if strings.TrimSpace(document) == "" {
		return "", fmt.Errorf("HTML data is empty")
	}

	article, err := readability.FromReader(strings.NewReader(document), nil)
	if err != nil {
		return "", fmt.Errorf("failed to extract content: %w", err)
	}

	if strings.TrimSpace(article.Content) == "" {
		return "", errNoContent
	}

	slog.Debug("Content extracted successfully",
		"title", article.Title,
		"content_length", len(article.Content))

	return article.Content, nil
}
