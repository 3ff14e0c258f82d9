package tasks

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lysyi3m/lazyfeed/app/database"
	"github.com/lysyi3m/lazyfeed/app/feed"
)

type FeedStatus string

const (
	StatusNew       FeedStatus = "new"
	StatusUnchanged FeedStatus = "unchanged"
	StatusFailed    FeedStatus = "failed"
	StatusCancelled FeedStatus = "cancelled"
)

type FeedResult struct {
	FeedID     int64
	URL        string
	Status     FeedStatus
	NewEntries int
	Duplicates int
	Skipped    int
	Err        error
}

// SyncFeedTask synchronizes a single feed: fetch, parse, dedupe, enrich, commit.
type SyncFeedTask struct {
	Task
	PassID    string
	Feed      database.Feed
	fetcher   FeedFetcher
	parser    FeedParser
	content   ContentFetcher
	entryRepo database.EntryRepository
	syncRepo  database.SyncRepository
	notifier  Notifier

	prefetched *feed.FetchResult
}

func NewSyncFeedTask(passID string, f database.Feed, fetcher FeedFetcher, parser FeedParser, content ContentFetcher,
	entryRepo database.EntryRepository, syncRepo database.SyncRepository, notifier Notifier) *SyncFeedTask {
	return &SyncFeedTask{
		Task:      NewTask(TaskTypeSyncFeed, f.ID, f.URL),
		PassID:    passID,
		Feed:      f,
		fetcher:   fetcher,
		parser:    parser,
		content:   content,
		entryRepo: entryRepo,
		syncRepo:  syncRepo,
		notifier:  notifier,
	}
}

// Execute never returns an error; failures are reported in the result and as diagnostics.
func (t *SyncFeedTask) Execute(ctx context.Context) FeedResult {
	t.Start()

	result := FeedResult{FeedID: t.Feed.ID, URL: t.Feed.URL}
	if err := t.run(ctx, &result); err != nil {
		result.Err = err
		if ctx.Err() != nil {
			result.Status = StatusCancelled
		} else {
			result.Status = StatusFailed
		}
	}

	slog.Info("Task completed",
		"type", string(t.Type),
		"id", t.ID,
		"feed_id", t.Feed.ID,
		"url", t.Feed.URL,
		"status", string(result.Status),
		"duration", t.GetDuration(),
		"new", result.NewEntries,
		"duplicates", result.Duplicates,
		"skipped", result.Skipped)

	return result
}

func (t *SyncFeedTask) run(ctx context.Context, result *FeedResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	fetched := t.prefetched
	if fetched == nil {
		var err error
		fetched, err = t.fetcher.Fetch(ctx, t.Feed.URL, t.Feed.CacheToken)
		if err != nil {
			return t.fail(ctx, KindFetchFailed, fmt.Errorf("failed to fetch feed: %w", err))
		}
	}

	if fetched.Status == feed.Unchanged {
		result.Status = StatusUnchanged
		return nil
	}

	metadata, items, err := t.parser.Run(fetched.Body)
	if err != nil {
		return t.fail(ctx, KindParseFailed, err)
	}
	result.Skipped = metadata.Skipped

	staged, duplicates, err := t.stage(ctx, items)
	if err != nil {
		return t.fail(ctx, KindCommitFailed, err)
	}
	result.Duplicates = duplicates

	entries := t.buildEntries(ctx, staged)

	if err := ctx.Err(); err != nil {
		return err
	}

	inserted, err := t.syncRepo.CommitFeedSync(ctx, database.FeedSyncCommit{
		FeedID:      t.Feed.ID,
		CacheToken:  fetched.CacheToken,
		Title:       metadata.Title,
		SiteLink:    metadata.Link,
		Description: metadata.Description,
		Entries:     entries,
	})
	if err != nil {
		return t.fail(ctx, KindCommitFailed, fmt.Errorf("failed to commit feed sync: %w", err))
	}

	// Rows dropped by ON CONFLICT were claimed by another feed in this pass.
	result.Duplicates += len(entries) - inserted
	result.NewEntries = inserted
	result.Status = StatusUnchanged
	if inserted > 0 {
		result.Status = StatusNew
	}

	return nil
}

// stage keeps the first occurrence of each link that is not yet stored.
func (t *SyncFeedTask) stage(ctx context.Context, items []feed.Item) ([]feed.Item, int, error) {
	seen := make(map[string]struct{}, len(items))
	staged := make([]feed.Item, 0, len(items))
	duplicates := 0

	for _, item := range items {
		if _, ok := seen[item.Link]; ok {
			duplicates++
			continue
		}
		seen[item.Link] = struct{}{}

		exists, err := t.entryRepo.ExistsByURL(ctx, item.Link)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to check for duplicates: %w", err)
		}
		if exists {
			duplicates++
			continue
		}

		staged = append(staged, item)
	}

	return staged, duplicates, nil
}

func (t *SyncFeedTask) buildEntries(ctx context.Context, items []feed.Item) []database.Entry {
	fetchedAt := time.Now().UTC()
	entries := make([]database.Entry, 0, len(items))

	for _, item := range items {
		entry := database.Entry{
			FeedID:      t.Feed.ID,
			URL:         item.Link,
			Title:       item.Title,
			Author:      item.Author,
			Summary:     cmp.Or(item.Summary, item.Content),
			PublishedAt: fetchedAt,
		}
		if item.PublishedAt != nil {
			entry.PublishedAt = *item.PublishedAt
		}

		if t.content != nil && ctx.Err() == nil {
			content, err := t.content.Run(ctx, item.Link)
			switch {
			case err == nil:
				entry.Content = content.Markdown
				entry.RawContent = content.Raw
			case ctx.Err() == nil:
				t.notify(ctx, KindContentFailed, item.Link, fmt.Sprintf("failed to fetch content for %s: %v", item.Link, err))
			}
		}

		entries = append(entries, entry)
	}

	return entries
}

func (t *SyncFeedTask) fail(ctx context.Context, kind DiagnosticKind, err error) error {
	// A cancelled pass is not the feed's fault.
	if ctx.Err() != nil {
		return err
	}
	t.notify(ctx, kind, t.Feed.URL, err.Error())
	return err
}

func (t *SyncFeedTask) notify(ctx context.Context, kind DiagnosticKind, url, message string) {
	if t.notifier == nil {
		return
	}
	t.notifier.Notify(ctx, Diagnostic{
		PassID:  t.PassID,
		FeedID:  t.Feed.ID,
		URL:     url,
		Kind:    kind,
		Message: message,
		Time:    time.Now(),
	})
}
