package database

import "context"

type FeedRepository interface {
	Add(ctx context.Context, feed Feed) (*Feed, error)
	AddBatch(ctx context.Context, feeds []Feed) error
	Get(ctx context.Context, id int64) (*Feed, error)
	GetByURL(ctx context.Context, url string) (*Feed, error)
	GetBy(ctx context.Context, filter FeedFilter) ([]Feed, error)
	GetAll(ctx context.Context) ([]Feed, error)
	Update(ctx context.Context, id int64, update FeedUpdate) error
	Delete(ctx context.Context, id int64) (*Feed, error)
	Count(ctx context.Context) (int, error)
}

type EntryRepository interface {
	Add(ctx context.Context, entry Entry) (*Entry, error)
	AddBatch(ctx context.Context, entries []Entry) error
	Get(ctx context.Context, id int64) (*Entry, error)
	GetBy(ctx context.Context, filter EntryFilter) ([]Entry, error)
	GetAll(ctx context.Context) ([]Entry, error)
	Update(ctx context.Context, id int64, update EntryUpdate) error
	Delete(ctx context.Context, id int64) (*Entry, error)
	Count(ctx context.Context, filter EntryFilter) (int, error)

	ExistsByURL(ctx context.Context, url string) (bool, error)
	MarkAllUnreadAsRead(ctx context.Context) (int64, error)
}

type SyncRepository interface {
	// CommitFeedSync stores the new cache token, fills empty feed metadata and inserts
	// the entries in one transaction. Entries whose URL already exists are skipped.
	// Returns the number of entries inserted.
	CommitFeedSync(ctx context.Context, commit FeedSyncCommit) (int, error)
}
