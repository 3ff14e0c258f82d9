package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lysyi3m/lazyfeed/app/database"
	"github.com/lysyi3m/lazyfeed/app/feed"
)

var ErrPassInProgress = errors.New("sync pass already in progress")

const DefaultConcurrency = 8

type SyncerConfig struct {
	Concurrency int
	// Content enables full-content mode when non-nil.
	Content  ContentFetcher
	Notifier Notifier
	Metrics  *Metrics
}

type PassResult struct {
	ID         string
	StartedAt  time.Time
	Duration   time.Duration
	Feeds      []FeedResult
	NewEntries int
	Failed     int
	Cancelled  int
}

type passOptions struct {
	restricted bool
	feedIDs    []int64
	fetched    map[int64]*feed.FetchResult
}

type PassOption func(*passOptions)

// OnlyFeeds restricts a pass to the given feed ids.
func OnlyFeeds(ids ...int64) PassOption {
	return func(o *passOptions) {
		o.restricted = true
		o.feedIDs = append(o.feedIDs, ids...)
	}
}

// WithFetched hands the pass a response already downloaded for a feed, which
// is then parsed instead of fetched again.
func WithFetched(feedID int64, res *feed.FetchResult) PassOption {
	return func(o *passOptions) {
		if o.fetched == nil {
			o.fetched = make(map[int64]*feed.FetchResult)
		}
		o.fetched[feedID] = res
	}
}

// Syncer runs synchronization passes over the subscribed feeds. At most one
// pass runs at a time.
type Syncer struct {
	feedRepo    database.FeedRepository
	entryRepo   database.EntryRepository
	syncRepo    database.SyncRepository
	fetcher     FeedFetcher
	parser      FeedParser
	content     ContentFetcher
	notifier    Notifier
	metrics     *Metrics
	concurrency int
	running     atomic.Bool
}

var _ PassRunner = (*Syncer)(nil)

func NewSyncer(feedRepo database.FeedRepository, entryRepo database.EntryRepository, syncRepo database.SyncRepository,
	fetcher FeedFetcher, parser FeedParser, config SyncerConfig) *Syncer {
	concurrency := config.Concurrency
	if concurrency < 1 {
		concurrency = DefaultConcurrency
	}

	var notifier Notifier = NewLogNotifier(nil)
	if config.Notifier != nil {
		notifier = config.Notifier
	}
	if config.Metrics != nil {
		notifier = MultiNotifier{notifier, config.Metrics}
	}

	return &Syncer{
		feedRepo:    feedRepo,
		entryRepo:   entryRepo,
		syncRepo:    syncRepo,
		fetcher:     fetcher,
		parser:      parser,
		content:     config.Content,
		notifier:    notifier,
		metrics:     config.Metrics,
		concurrency: concurrency,
	}
}

// Running reports whether a pass is in flight.
func (s *Syncer) Running() bool {
	return s.running.Load()
}

// RunPass synchronizes a snapshot of the feed list. Per-feed failures are
// reported in the result; the only errors returned are ErrPassInProgress and
// a failure to read the feed list.
func (s *Syncer) RunPass(ctx context.Context, opts ...PassOption) (*PassResult, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrPassInProgress
	}
	defer s.running.Store(false)

	var o passOptions
	for _, opt := range opts {
		opt(&o)
	}

	feeds, err := s.loadFeeds(ctx, o)
	if err != nil {
		return nil, fmt.Errorf("failed to load feeds: %w", err)
	}

	passTask := NewTask(TaskTypeSyncPass, 0, "")
	passTask.Start()

	pass := &PassResult{
		ID:        passTask.GetID(),
		StartedAt: *passTask.StartedAt,
		Feeds:     make([]FeedResult, len(feeds)),
	}

	slog.Debug("Sync pass started", "pass_id", pass.ID, "feeds", len(feeds), "concurrency", s.concurrency)

	sem := make(chan struct{}, s.concurrency)
	var wg sync.WaitGroup

	for i, f := range feeds {
		wg.Add(1)
		go func() {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				pass.Feeds[i] = FeedResult{FeedID: f.ID, URL: f.URL, Status: StatusCancelled, Err: ctx.Err()}
				return
			}

			task := NewSyncFeedTask(pass.ID, f, s.fetcher, s.parser, s.content, s.entryRepo, s.syncRepo, s.notifier)
			task.prefetched = o.fetched[f.ID]
			pass.Feeds[i] = task.Execute(ctx)
		}()
	}

	wg.Wait()

	for _, fr := range pass.Feeds {
		pass.NewEntries += fr.NewEntries
		switch fr.Status {
		case StatusFailed:
			pass.Failed++
		case StatusCancelled:
			pass.Cancelled++
		}
	}
	pass.Duration = passTask.GetDuration()

	s.metrics.observePass(pass)
	s.notifier.Notify(ctx, Diagnostic{
		PassID: pass.ID,
		Kind:   KindPassCompleted,
		Message: fmt.Sprintf("Sync completed: %d feeds, %d new entries, %d failed, %d cancelled",
			len(pass.Feeds), pass.NewEntries, pass.Failed, pass.Cancelled),
		Time: time.Now(),
	})

	return pass, nil
}

func (s *Syncer) loadFeeds(ctx context.Context, o passOptions) ([]database.Feed, error) {
	feeds, err := s.feedRepo.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	if !o.restricted {
		return feeds, nil
	}

	return slices.DeleteFunc(feeds, func(f database.Feed) bool {
		return !slices.Contains(o.feedIDs, f.ID)
	}), nil
}
