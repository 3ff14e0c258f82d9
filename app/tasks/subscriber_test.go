package tasks

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lysyi3m/lazyfeed/app/database"
	"github.com/lysyi3m/lazyfeed/app/feed"
)

func newTestSubscriber(store *testStore) *Subscriber {
	parser := feed.NewParser()
	syncer := newTestSyncer(store, parser, SyncerConfig{})
	return NewSubscriber(store.feeds, newTestClient(), parser, syncer, 4)
}

func TestSubscriber_Add(t *testing.T) {
	store := newTestStore(t)
	srv := newFeedServer(t)
	ctx := context.Background()

	good := srv.set("/good.xml", route{body: rssDoc("Good", "https://good.example.com/1", "https://good.example.com/2")})
	other := srv.set("/other.xml", route{body: rssDoc("Other")})
	broken := srv.set("/broken.xml", route{body: "<html>nope</html>"})
	existing := store.addFeed(t, srv.set("/existing.xml", route{body: rssDoc("Existing")}), "")

	subs := newTestSubscriber(store).AddURLs(ctx,
		" "+good+" ",
		good,
		"ftp://example.com/feed",
		broken,
		existing.URL,
		other,
		srv.URL+"/missing.xml",
	)
	require.Len(t, subs, 7)

	require.NoError(t, subs[0].Err)
	assert.Equal(t, OutcomeAdded, subs[0].Outcome)
	assert.Equal(t, good, subs[0].Feed.URL)
	assert.Equal(t, "Good", subs[0].Feed.Title)
	assert.Equal(t, 2, subs[0].NewEntries)

	assert.Equal(t, OutcomeExists, subs[1].Outcome)
	assert.ErrorIs(t, subs[1].Err, database.ErrAlreadyExists)

	assert.Equal(t, OutcomeInvalid, subs[2].Outcome)
	assert.ErrorIs(t, subs[2].Err, ErrInvalidURL)

	assert.Equal(t, OutcomeFailed, subs[3].Outcome)
	assert.ErrorIs(t, subs[3].Err, feed.ErrMalformedFeed)

	assert.Equal(t, OutcomeExists, subs[4].Outcome)
	assert.Equal(t, existing.ID, subs[4].Feed.ID)

	assert.Equal(t, OutcomeAdded, subs[5].Outcome)
	assert.Zero(t, subs[5].NewEntries)

	assert.Equal(t, OutcomeFailed, subs[6].Outcome)
	var fetchErr *feed.FetchError
	assert.ErrorAs(t, subs[6].Err, &fetchErr)

	assert.ElementsMatch(t, []int64{subs[0].Feed.ID, subs[5].Feed.ID}, AddedIDs(subs))

	count, err := store.feeds.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	// Only the new feeds were synced.
	assert.Zero(t, store.entryCount(t, existing.ID))
	assert.Equal(t, 2, store.entryCount(t, 0))
}

func TestSubscriber_CallerTitleWins(t *testing.T) {
	store := newTestStore(t)
	srv := newFeedServer(t)

	url := srv.set("/feed.xml", route{body: rssDoc("Channel")})
	subs := newTestSubscriber(store).Add(context.Background(), database.Feed{URL: url, Title: "  Mine  "})
	require.Len(t, subs, 1)
	require.NoError(t, subs[0].Err)
	assert.Equal(t, "Mine", subs[0].Feed.Title)
	assert.Equal(t, "https://site.example.com/Channel", subs[0].Feed.SiteLink)
}

func TestSubscriber_AddDownloadsFeedOnce(t *testing.T) {
	store := newTestStore(t)
	srv := newFeedServer(t)

	url := srv.set("/feed.xml", route{etag: `"v1"`, body: rssDoc("Once", "https://once.example.com/1", "https://once.example.com/2")})
	subs := newTestSubscriber(store).AddURLs(context.Background(), url)
	require.Len(t, subs, 1)
	require.NoError(t, subs[0].Err)

	assert.Equal(t, 2, subs[0].NewEntries)
	assert.Equal(t, 1, srv.hitCount("/feed.xml"))
	assert.Equal(t, `"v1"`, store.feed(t, subs[0].Feed.ID).CacheToken)
}

// busyRunner reports a pass in progress a fixed number of times before
// delegating to the real runner.
type busyRunner struct {
	runner PassRunner
	busy   atomic.Int64
	calls  atomic.Int64
}

func (r *busyRunner) RunPass(ctx context.Context, opts ...PassOption) (*PassResult, error) {
	r.calls.Add(1)
	if r.busy.Add(-1) >= 0 {
		return nil, ErrPassInProgress
	}
	return r.runner.RunPass(ctx, opts...)
}

func setPassRetryInterval(t *testing.T, d time.Duration) {
	t.Helper()
	prev := passRetryInterval
	passRetryInterval = d
	t.Cleanup(func() { passRetryInterval = prev })
}

func TestSubscriber_WaitsForRunningPass(t *testing.T) {
	setPassRetryInterval(t, 5*time.Millisecond)

	store := newTestStore(t)
	srv := newFeedServer(t)
	parser := feed.NewParser()

	runner := &busyRunner{runner: newTestSyncer(store, parser, SyncerConfig{})}
	runner.busy.Store(2)

	url := srv.set("/feed.xml", route{body: rssDoc("Later", "https://later.example.com/1")})
	subs := NewSubscriber(store.feeds, newTestClient(), parser, runner, 2).AddURLs(context.Background(), url)
	require.Len(t, subs, 1)
	require.NoError(t, subs[0].Err)

	assert.Equal(t, int64(3), runner.calls.Load())
	assert.Equal(t, 1, subs[0].NewEntries)
	assert.Equal(t, 1, store.entryCount(t, subs[0].Feed.ID))
}

func TestSubscriber_StopsWaitingWhenCancelled(t *testing.T) {
	setPassRetryInterval(t, 5*time.Millisecond)

	store := newTestStore(t)
	srv := newFeedServer(t)
	parser := feed.NewParser()

	runner := &busyRunner{runner: newTestSyncer(store, parser, SyncerConfig{})}
	runner.busy.Store(1 << 30)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	url := srv.set("/feed.xml", route{body: rssDoc("Busy", "https://busy.example.com/1")})
	subs := NewSubscriber(store.feeds, newTestClient(), parser, runner, 2).AddURLs(ctx, url)
	require.Len(t, subs, 1)

	// The feed stays subscribed; the next pass syncs it.
	assert.Equal(t, OutcomeAdded, subs[0].Outcome)
	assert.Zero(t, subs[0].NewEntries)
	assert.Zero(t, store.entryCount(t, subs[0].Feed.ID))
}

func TestValidateFeedURL(t *testing.T) {
	tests := []struct {
		url     string
		wantErr bool
	}{
		{"https://example.com/feed", false},
		{"http://localhost:8080/rss", false},
		{"example.com/feed", true},
		{"https://", true},
		{"mailto:someone@example.com", true},
		{"", true},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			err := ValidateFeedURL(tt.url)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidURL)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
