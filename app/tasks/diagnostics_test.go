package tasks

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMultiNotifier(t *testing.T) {
	var got []string
	record := func(prefix string) Notifier {
		return NotifierFunc(func(_ context.Context, d Diagnostic) {
			got = append(got, prefix+":"+string(d.Kind))
		})
	}

	MultiNotifier{record("a"), nil, record("b")}.Notify(context.Background(), Diagnostic{Kind: KindFetchFailed})

	assert.Equal(t, []string{"a:fetch_failed", "b:fetch_failed"}, got)
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	notifier := NewLogNotifier(logger)

	notifier.Notify(context.Background(), Diagnostic{PassID: "p1", FeedID: 7, URL: "https://example.com/feed", Kind: KindParseFailed, Message: "bad document"})
	notifier.Notify(context.Background(), Diagnostic{PassID: "p1", Kind: KindPassCompleted, Message: "done"})

	out := buf.String()
	assert.Contains(t, out, "level=WARN")
	assert.Contains(t, out, `msg="bad document"`)
	assert.Contains(t, out, "feed_id=7")
	assert.Contains(t, out, "kind=parse_failed")
	assert.Contains(t, out, "level=INFO msg=done")
}
