package tasks

import (
	"context"

	"github.com/lysyi3m/lazyfeed/app/feed"
)

// FeedFetcher performs a conditional fetch of a feed document.
type FeedFetcher interface {
	Fetch(ctx context.Context, url, cacheToken string) (*feed.FetchResult, error)
}

type FeedParser interface {
	Run(data []byte) (*feed.Metadata, []feed.Item, error)
}

// ContentFetcher retrieves and sanitizes the full body behind an entry link.
type ContentFetcher interface {
	Run(ctx context.Context, link string) (*feed.Content, error)
}

// PassRunner runs one synchronization pass. Implemented by Syncer.
type PassRunner interface {
	RunPass(ctx context.Context, opts ...PassOption) (*PassResult, error)
}

// SchedulerInterface is the background trigger used by the serve command.
//
//	scheduler := NewScheduler(syncer, interval, true)
//	scheduler.Start()
//	defer scheduler.Stop()
type SchedulerInterface interface {
	Start()
	Stop()
}

var (
	_ FeedFetcher    = (*feed.Client)(nil)
	_ FeedParser     = (*feed.Parser)(nil)
	_ ContentFetcher = (*feed.ContentFetcher)(nil)
)
