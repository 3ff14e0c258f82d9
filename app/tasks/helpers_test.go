package tasks

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lysyi3m/lazyfeed/app/database"
	"github.com/lysyi3m/lazyfeed/app/feed"
)

type testStore struct {
	db      *database.DB
	feeds   *database.FeedRepo
	entries *countingEntryRepo
	sync    *database.SyncRepo
}

func newTestStore(t *testing.T) *testStore {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "lazyfeed.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return &testStore{
		db:      db,
		feeds:   database.NewFeedRepository(db),
		entries: &countingEntryRepo{EntryRepo: database.NewEntryRepository(db)},
		sync:    database.NewSyncRepository(db),
	}
}

func (s *testStore) addFeed(t *testing.T, url, cacheToken string) *database.Feed {
	t.Helper()
	f, err := s.feeds.Add(context.Background(), database.Feed{URL: url, CacheToken: cacheToken})
	require.NoError(t, err)
	return f
}

func (s *testStore) feed(t *testing.T, id int64) *database.Feed {
	t.Helper()
	f, err := s.feeds.Get(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, f)
	return f
}

func (s *testStore) entryCount(t *testing.T, feedID int64) int {
	t.Helper()
	filter := database.EntryFilter{}
	if feedID != 0 {
		filter.FeedID = &feedID
	}
	n, err := s.entries.Count(context.Background(), filter)
	require.NoError(t, err)
	return n
}

type countingEntryRepo struct {
	*database.EntryRepo
	existsCalls atomic.Int64
}

func (r *countingEntryRepo) ExistsByURL(ctx context.Context, url string) (bool, error) {
	r.existsCalls.Add(1)
	return r.EntryRepo.ExistsByURL(ctx, url)
}

type countingParser struct {
	parser *feed.Parser
	calls  atomic.Int64
}

func newCountingParser() *countingParser {
	return &countingParser{parser: feed.NewParser()}
}

func (p *countingParser) Run(data []byte) (*feed.Metadata, []feed.Item, error) {
	p.calls.Add(1)
	return p.parser.Run(data)
}

type recordingNotifier struct {
	mu          sync.Mutex
	diagnostics []Diagnostic
}

func (n *recordingNotifier) Notify(_ context.Context, d Diagnostic) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.diagnostics = append(n.diagnostics, d)
}

func (n *recordingNotifier) ofKind(kind DiagnosticKind) []Diagnostic {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []Diagnostic
	for _, d := range n.diagnostics {
		if d.Kind == kind {
			out = append(out, d)
		}
	}
	return out
}

// feedServer serves fixed documents per path and honours ETags.
type feedServer struct {
	*httptest.Server
	mu     sync.Mutex
	routes map[string]route
	hits   map[string]int
}

type route struct {
	status int
	etag   string
	body   string
	delay  time.Duration
}

func newFeedServer(t *testing.T) *feedServer {
	t.Helper()
	fs := &feedServer{routes: map[string]route{}, hits: map[string]int{}}
	fs.Server = httptest.NewServer(http.HandlerFunc(fs.serve))
	t.Cleanup(fs.Close)
	return fs
}

func (fs *feedServer) set(path string, r route) string {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.routes[path] = r
	return fs.URL + path
}

func (fs *feedServer) hitCount(path string) int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.hits[path]
}

func (fs *feedServer) serve(w http.ResponseWriter, r *http.Request) {
	fs.mu.Lock()
	rt, ok := fs.routes[r.URL.Path]
	fs.hits[r.URL.Path]++
	fs.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}

	if rt.delay > 0 {
		select {
		case <-time.After(rt.delay):
		case <-r.Context().Done():
			return
		}
	}

	if rt.etag != "" && r.Header.Get("If-None-Match") == rt.etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	if rt.etag != "" {
		w.Header().Set("ETag", rt.etag)
	}

	status := rt.status
	if status == 0 {
		status = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/rss+xml")
	w.WriteHeader(status)
	w.Write([]byte(rt.body))
}

func rssDoc(title string, links ...string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, `<?xml version="1.0"?><rss version="2.0"><channel><title>%s</title><link>https://site.example.com/%s</link>`, title, title)
	for i, link := range links {
		fmt.Fprintf(&sb, `<item><title>%s %d</title><link>%s</link><description>Summary %d</description><pubDate>Mon, 0%d Jul 2023 10:00:00 GMT</pubDate></item>`, title, i, link, i, i%9+1)
	}
	sb.WriteString(`</channel></rss>`)
	return sb.String()
}

func newTestClient() *feed.Client {
	return feed.NewClient(feed.ClientOptions{Timeout: 5 * time.Second, ConnectTimeout: time.Second})
}

func newTestSyncer(store *testStore, parser FeedParser, config SyncerConfig) *Syncer {
	return NewSyncer(store.feeds, store.entries, store.sync, newTestClient(), parser, config)
}
