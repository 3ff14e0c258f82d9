package tasks

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/lysyi3m/lazyfeed/app/database"
	"github.com/lysyi3m/lazyfeed/app/feed"
)

var ErrInvalidURL = errors.New("invalid feed URL")

var passRetryInterval = 250 * time.Millisecond

type Outcome string

const (
	OutcomeAdded   Outcome = "added"
	OutcomeExists  Outcome = "exists"
	OutcomeInvalid Outcome = "invalid"
	OutcomeFailed  Outcome = "failed"
)

// Subscription is the outcome of subscribing to one feed.
type Subscription struct {
	URL        string
	Outcome    Outcome
	Feed       *database.Feed
	NewEntries int
	Err        error

	fetched *feed.FetchResult
}

// Subscriber validates and stores new feeds, then syncs them once.
type Subscriber struct {
	feedRepo    database.FeedRepository
	fetcher     FeedFetcher
	parser      FeedParser
	runner      PassRunner
	concurrency int
}

func NewSubscriber(feedRepo database.FeedRepository, fetcher FeedFetcher, parser FeedParser, runner PassRunner, concurrency int) *Subscriber {
	if concurrency < 1 {
		concurrency = DefaultConcurrency
	}
	return &Subscriber{
		feedRepo:    feedRepo,
		fetcher:     fetcher,
		parser:      parser,
		runner:      runner,
		concurrency: concurrency,
	}
}

func (s *Subscriber) AddURLs(ctx context.Context, urls ...string) []Subscription {
	feeds := make([]database.Feed, len(urls))
	for i, u := range urls {
		feeds[i] = database.Feed{URL: u}
	}
	return s.Add(ctx, feeds...)
}

// Add subscribes to each feed independently; one bad url does not stop the
// rest. Title, site link and description given by the caller take precedence
// over the channel metadata.
func (s *Subscriber) Add(ctx context.Context, feeds ...database.Feed) []Subscription {
	subs := make([]Subscription, len(feeds))
	seen := make(map[string]struct{}, len(feeds))

	sem := make(chan struct{}, s.concurrency)
	var wg sync.WaitGroup

	for i, f := range feeds {
		f.URL = strings.TrimSpace(f.URL)
		subs[i].URL = f.URL

		if err := ValidateFeedURL(f.URL); err != nil {
			subs[i].Outcome, subs[i].Err = OutcomeInvalid, err
			continue
		}
		if _, dup := seen[f.URL]; dup {
			subs[i].Outcome, subs[i].Err = OutcomeExists, database.ErrAlreadyExists
			continue
		}
		seen[f.URL] = struct{}{}

		existing, err := s.feedRepo.GetByURL(ctx, f.URL)
		if err != nil {
			subs[i].Outcome, subs[i].Err = OutcomeFailed, err
			continue
		}
		if existing != nil {
			subs[i].Outcome, subs[i].Err, subs[i].Feed = OutcomeExists, database.ErrAlreadyExists, existing
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			subs[i] = s.subscribe(ctx, f)
		}()
	}

	wg.Wait()

	s.syncAdded(ctx, subs)

	return subs
}

func (s *Subscriber) subscribe(ctx context.Context, f database.Feed) Subscription {
	sub := Subscription{URL: f.URL}

	metadata, fetched, err := s.probe(ctx, f.URL)
	if err != nil {
		slog.Warn("Feed validation failed", "url", f.URL, "error", err)
		sub.Outcome, sub.Err = OutcomeFailed, err
		return sub
	}

	created, err := s.feedRepo.Add(ctx, database.Feed{
		URL:         f.URL,
		Title:       cmp.Or(strings.TrimSpace(f.Title), metadata.Title),
		SiteLink:    cmp.Or(f.SiteLink, metadata.Link),
		Description: cmp.Or(f.Description, metadata.Description),
	})
	switch {
	case errors.Is(err, database.ErrAlreadyExists):
		sub.Outcome, sub.Err = OutcomeExists, err
	case err != nil:
		sub.Outcome, sub.Err = OutcomeFailed, err
	default:
		slog.Info("Feed subscribed", "feed_id", created.ID, "url", created.URL, "title", created.Title)
		sub.Outcome, sub.Feed, sub.fetched = OutcomeAdded, created, fetched
	}

	return sub
}

func (s *Subscriber) probe(ctx context.Context, feedURL string) (*feed.Metadata, *feed.FetchResult, error) {
	fetched, err := s.fetcher.Fetch(ctx, feedURL, "")
	if err != nil {
		return nil, nil, err
	}
	if fetched.Status != feed.Fetched {
		return &feed.Metadata{}, nil, nil
	}

	metadata, _, err := s.parser.Run(fetched.Body)
	if err != nil {
		return nil, nil, err
	}
	return metadata, fetched, nil
}

// syncAdded runs a pass over the new feeds, reusing the probe responses. A
// pass already in flight is waited out rather than skipped.
func (s *Subscriber) syncAdded(ctx context.Context, subs []Subscription) {
	ids := AddedIDs(subs)
	if len(ids) == 0 || s.runner == nil {
		return
	}

	opts := []PassOption{OnlyFeeds(ids...)}
	for _, sub := range subs {
		if sub.Outcome == OutcomeAdded && sub.fetched != nil {
			opts = append(opts, WithFetched(sub.Feed.ID, sub.fetched))
		}
	}

	pass, err := s.runPass(ctx, opts)
	if err != nil {
		slog.Warn("Initial sync of new feeds skipped, next pass will pick them up", "feeds", len(ids), "error", err)
		return
	}

	byID := make(map[int64]FeedResult, len(pass.Feeds))
	for _, fr := range pass.Feeds {
		byID[fr.FeedID] = fr
	}
	for i := range subs {
		if subs[i].Feed != nil && subs[i].Outcome == OutcomeAdded {
			subs[i].NewEntries = byID[subs[i].Feed.ID].NewEntries
		}
	}
}

func (s *Subscriber) runPass(ctx context.Context, opts []PassOption) (*PassResult, error) {
	ticker := time.NewTicker(passRetryInterval)
	defer ticker.Stop()

	for {
		pass, err := s.runner.RunPass(ctx, opts...)
		if !errors.Is(err, ErrPassInProgress) {
			return pass, err
		}

		slog.Debug("Waiting for running sync pass before syncing new feeds")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// AddedIDs returns the ids of the feeds that were created.
func AddedIDs(subs []Subscription) []int64 {
	var ids []int64
	for _, sub := range subs {
		if sub.Outcome == OutcomeAdded && sub.Feed != nil {
			ids = append(ids, sub.Feed.ID)
		}
	}
	return ids
}

func ValidateFeedURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w %q: %v", ErrInvalidURL, raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w %q: scheme must be http or https", ErrInvalidURL, raw)
	}
	if u.Host == "" {
		return fmt.Errorf("%w %q: missing host", ErrInvalidURL, raw)
	}
	return nil
}
