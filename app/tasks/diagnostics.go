package tasks

import (
	"context"
	"log/slog"
	"time"
)

type DiagnosticKind string

const (
	KindFetchFailed   DiagnosticKind = "fetch_failed"
	KindParseFailed   DiagnosticKind = "parse_failed"
	KindContentFailed DiagnosticKind = "content_failed"
	KindCommitFailed  DiagnosticKind = "commit_failed"
	KindPassCompleted DiagnosticKind = "pass_completed"
)

// Diagnostic is a user-facing event produced during a pass. FeedID is zero
// for pass-level events.
type Diagnostic struct {
	PassID  string
	FeedID  int64
	URL     string
	Kind    DiagnosticKind
	Message string
	Time    time.Time
}

// Notifier receives diagnostics. Implementations must be safe for concurrent use.
type Notifier interface {
	Notify(ctx context.Context, d Diagnostic)
}

type NotifierFunc func(ctx context.Context, d Diagnostic)

func (f NotifierFunc) Notify(ctx context.Context, d Diagnostic) {
	f(ctx, d)
}

type MultiNotifier []Notifier

func (m MultiNotifier) Notify(ctx context.Context, d Diagnostic) {
	for _, n := range m {
		if n != nil {
			n.Notify(ctx, d)
		}
	}
}

type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, d Diagnostic) {
	level := slog.LevelWarn
	if d.Kind == KindPassCompleted {
		level = slog.LevelInfo
	}

	attrs := []any{"pass_id", d.PassID, "kind", string(d.Kind)}
	if d.FeedID != 0 {
		attrs = append(attrs, "feed_id", d.FeedID, "url", d.URL)
	}

	n.logger.Log(ctx, level, d.Message, attrs...)
}

var (
	_ Notifier = NotifierFunc(nil)
	_ Notifier = MultiNotifier(nil)
	_ Notifier = (*LogNotifier)(nil)
)
