package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

var _ SyncRepository = (*SyncRepo)(nil)

// SyncRepo persists the outcome of syncing one feed
type SyncRepo struct {
	db *DB
}

func NewSyncRepository(db *DB) *SyncRepo {
	return &SyncRepo{db: db}
}

func (r *SyncRepo) CommitFeedSync(ctx context.Context, commit FeedSyncCommit) (int, error) {
	inserted := 0

	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT `+feedColumns+` FROM feeds WHERE id = ?`, commit.FeedID)
		feed, err := scanOptionalFeed(row)
		if err != nil {
			return err
		}
		if feed == nil {
			return fmt.Errorf("feed %d: %w", commit.FeedID, ErrNotFound)
		}

		now := time.Now().UTC()

		if changed := applyCommitMetadata(feed, commit); changed {
			_, err := tx.ExecContext(ctx, `
				UPDATE feeds
				SET cache_token = ?, title = ?, site_link = ?, description = ?, last_updated_at = ?
				WHERE id = ?
			`, feed.CacheToken, feed.Title, feed.SiteLink, feed.Description, now, feed.ID)
			if err != nil {
				return fmt.Errorf("failed to update feed after sync: %w", err)
			}
		}

		if len(commit.Entries) == 0 {
			return nil
		}

		stmt, err := tx.PrepareContext(ctx, insertEntrySQL+` ON CONFLICT (url) DO NOTHING`)
		if err != nil {
			return fmt.Errorf("failed to prepare entry insert: %w", err)
		}
		defer stmt.Close()

		for _, entry := range commit.Entries {
			entry.FeedID = commit.FeedID
			res, err := stmt.ExecContext(ctx, entryArgs(entry, now)...)
			if err != nil {
				return wrapEntryInsertError(entry, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("failed to read affected rows: %w", err)
			}
			inserted += int(n)
		}

		return nil
	})
	if err != nil {
		return 0, err
	}

	return inserted, nil
}

// applyCommitMetadata copies the new cache token and fills blank feed attributes from
// the channel metadata. Reports whether anything changed.
func applyCommitMetadata(feed *Feed, commit FeedSyncCommit) bool {
	changed := false

	if feed.CacheToken != commit.CacheToken {
		feed.CacheToken = commit.CacheToken
		changed = true
	}

	fills := []struct {
		current *string
		value   string
	}{
		{&feed.Title, commit.Title},
		{&feed.SiteLink, commit.SiteLink},
		{&feed.Description, commit.Description},
	}
	for _, f := range fills {
		if *f.current == "" && f.value != "" {
			*f.current = f.value
			changed = true
		}
	}

	return changed
}
