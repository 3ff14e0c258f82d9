package database

import (
	"cmp"
	"time"
)

type Feed struct {
	ID            int64
	URL           string // Subscription key, unique
	Title         string
	SiteLink      string
	Description   string
	CacheToken    string // Last ETag seen for URL, empty if none
	CreatedAt     time.Time
	LastUpdatedAt time.Time
}

type Entry struct {
	ID            int64
	FeedID        int64
	URL           string // Dedup key, unique across all feeds
	Title         string
	Author        string
	Summary       string
	Content       string // Sanitized markdown body
	RawContent    string // Original fetched HTML
	IsRead        bool
	IsSaved       bool
	PublishedAt   time.Time
	LastUpdatedAt time.Time
}

// DisplayTitle falls back to the URL for untitled entries.
func (e Entry) DisplayTitle() string {
	return cmp.Or(e.Title, e.URL)
}

const (
	SortByPublishedAt = "published_at"
	SortByTitle       = "title"
	SortByReadStatus  = "read_status"
)

// FeedFilter selects feeds by attribute; nil fields are ignored.
type FeedFilter struct {
	URL   *string
	Title *string
}

// FeedUpdate holds a partial update; nil fields are left untouched.
type FeedUpdate struct {
	URL         *string
	Title       *string
	SiteLink    *string
	Description *string
	CacheToken  *string
}

// EntryFilter selects entries by attribute; nil fields are ignored.
type EntryFilter struct {
	FeedID    *int64
	IsRead    *bool
	IsSaved   *bool
	SortBy    string // One of the SortBy* constants, published_at if empty
	Ascending bool
	Limit     int // 0 means no limit
}

// EntryUpdate holds a partial update; nil fields are left untouched.
type EntryUpdate struct {
	Title      *string
	Author     *string
	Summary    *string
	Content    *string
	RawContent *string
	IsRead     *bool
	IsSaved    *bool
}

// FeedSyncCommit is one feed's result of a sync pass, persisted as a single unit.
type FeedSyncCommit struct {
	FeedID      int64
	CacheToken  string
	Title       string // Channel metadata, only fills empty feed attributes
	SiteLink    string
	Description string
	Entries     []Entry
}
