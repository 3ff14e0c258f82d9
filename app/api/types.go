package api

import (
	"context"
	"time"

	"github.com/lysyi3m/lazyfeed/app/database"
	"github.com/lysyi3m/lazyfeed/app/tasks"
)

type SubscriberInterface interface {
	Add(ctx context.Context, feeds ...database.Feed) []tasks.Subscription
}

type SyncerInterface interface {
	tasks.PassRunner
	Running() bool
}

var (
	_ SubscriberInterface = (*tasks.Subscriber)(nil)
	_ SyncerInterface     = (*tasks.Syncer)(nil)
)

type Handler struct {
	feedRepo   database.FeedRepository
	entryRepo  database.EntryRepository
	subscriber SubscriberInterface
	syncer     SyncerInterface
}

type FeedResponse struct {
	ID            int64     `json:"id"`
	URL           string    `json:"url"`
	Title         string    `json:"title"`
	SiteLink      string    `json:"site_link,omitempty"`
	Description   string    `json:"description,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	LastUpdatedAt time.Time `json:"last_updated_at"`
}

type EntryResponse struct {
	ID            int64     `json:"id"`
	FeedID        int64     `json:"feed_id"`
	URL           string    `json:"url"`
	Title         string    `json:"title"`
	Author        string    `json:"author,omitempty"`
	Summary       string    `json:"summary,omitempty"`
	Content       string    `json:"content,omitempty"`
	IsRead        bool      `json:"is_read"`
	IsSaved       bool      `json:"is_saved"`
	PublishedAt   time.Time `json:"published_at"`
	LastUpdatedAt time.Time `json:"last_updated_at"`
}

type CreateFeedRequest struct {
	URL   string `json:"url" binding:"required"`
	Title string `json:"title"`
}

type UpdateFeedRequest struct {
	URL   *string `json:"url"`
	Title *string `json:"title"`
}

type UpdateEntryRequest struct {
	IsRead  *bool `json:"is_read"`
	IsSaved *bool `json:"is_saved"`
}

type EntriesQuery struct {
	FeedID    *int64 `form:"feed_id"`
	IsRead    *bool  `form:"is_read"`
	IsSaved   *bool  `form:"is_saved"`
	SortBy    string `form:"sort_by"`
	Ascending bool   `form:"ascending"`
	Limit     int    `form:"limit"`
}

type FeedResultResponse struct {
	FeedID     int64  `json:"feed_id"`
	URL        string `json:"url"`
	Status     string `json:"status"`
	NewEntries int    `json:"new_entries"`
	Duplicates int    `json:"duplicates"`
	Skipped    int    `json:"skipped"`
	Error      string `json:"error,omitempty"`
}

type PassResponse struct {
	ID         string               `json:"id"`
	StartedAt  time.Time            `json:"started_at"`
	Duration   string               `json:"duration"`
	NewEntries int                  `json:"new_entries"`
	Failed     int                  `json:"failed"`
	Cancelled  int                  `json:"cancelled"`
	Feeds      []FeedResultResponse `json:"feeds"`
}

func newFeedResponse(f database.Feed) FeedResponse {
	return FeedResponse{
		ID:            f.ID,
		URL:           f.URL,
		Title:         f.Title,
		SiteLink:      f.SiteLink,
		Description:   f.Description,
		CreatedAt:     f.CreatedAt,
		LastUpdatedAt: f.LastUpdatedAt,
	}
}

func newEntryResponse(e database.Entry, withContent bool) EntryResponse {
	resp := EntryResponse{
		ID:            e.ID,
		FeedID:        e.FeedID,
		URL:           e.URL,
		Title:         e.DisplayTitle(),
		Author:        e.Author,
		Summary:       e.Summary,
		IsRead:        e.IsRead,
		IsSaved:       e.IsSaved,
		PublishedAt:   e.PublishedAt,
		LastUpdatedAt: e.LastUpdatedAt,
	}
	if withContent {
		resp.Content = e.Content
	}
	return resp
}

func newPassResponse(p *tasks.PassResult) PassResponse {
	resp := PassResponse{
		ID:         p.ID,
		StartedAt:  p.StartedAt,
		Duration:   p.Duration.String(),
		NewEntries: p.NewEntries,
		Failed:     p.Failed,
		Cancelled:  p.Cancelled,
		Feeds:      make([]FeedResultResponse, 0, len(p.Feeds)),
	}
	for _, fr := range p.Feeds {
		item := FeedResultResponse{
			FeedID:     fr.FeedID,
			URL:        fr.URL,
			Status:     string(fr.Status),
			NewEntries: fr.NewEntries,
			Duplicates: fr.Duplicates,
			Skipped:    fr.Skipped,
		}
		if fr.Err != nil {
			item.Error = fr.Err.Error()
		}
		resp.Feeds = append(resp.Feeds, item)
	}
	return resp
}
