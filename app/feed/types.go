package feed

import (
	"time"
)

// Feed processing types

type Metadata struct {
	Title       string
	Link        string
	Description string
	ImageURL    string
	Language    string
	Skipped     int // items dropped for lacking a link
}

type Item struct {
	Link        string
	Title       string
	Author      string
	Summary     string
	Content     string
	PublishedAt *time.Time
}

type Content struct {
	Raw      string
	Markdown string
}

type FetchStatus int

const (
	Fetched FetchStatus = iota
	Unchanged
)

func (s FetchStatus) String() string {
	switch s {
	case Fetched:
		return "fetched"
	case Unchanged:
		return "unchanged"
	default:
		return "unknown"
	}
}

type FetchResult struct {
	Status      FetchStatus
	Body        []byte
	CacheToken  string
	ContentType string
}
