package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

var _ FeedRepository = (*FeedRepo)(nil)

const feedColumns = `id, url, title, COALESCE(site_link, ''), COALESCE(description, ''),
	cache_token, created_at, last_updated_at`

// FeedRepo handles database operations for feeds
type FeedRepo struct {
	db *DB
}

// NewFeedRepository creates a new feed repository
func NewFeedRepository(db *DB) *FeedRepo {
	return &FeedRepo{db: db}
}

// Add inserts a feed and returns the stored row. A duplicate URL yields ErrAlreadyExists.
func (r *FeedRepo) Add(ctx context.Context, feed Feed) (*Feed, error) {
	id, err := insertFeed(ctx, r.db, feed)
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, id)
}

// AddBatch inserts all feeds in one transaction; nothing is stored if any insert fails.
func (r *FeedRepo) AddBatch(ctx context.Context, feeds []Feed) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		for _, feed := range feeds {
			if _, err := insertFeed(ctx, tx, feed); err != nil {
				return err
			}
		}
		return nil
	})
}

func insertFeed(ctx context.Context, q querier, feed Feed) (int64, error) {
	now := time.Now().UTC()
	res, err := q.ExecContext(ctx, `
		INSERT INTO feeds (url, title, site_link, description, cache_token, created_at, last_updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, feed.URL, feed.Title, feed.SiteLink, feed.Description, feed.CacheToken, now, now)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("feed %s: %w", feed.URL, ErrAlreadyExists)
		}
		return 0, fmt.Errorf("failed to insert feed: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read feed id: %w", err)
	}
	return id, nil
}

// Get retrieves a feed by ID, or nil if it does not exist
func (r *FeedRepo) Get(ctx context.Context, id int64) (*Feed, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+feedColumns+` FROM feeds WHERE id = ?`, id)
	return scanOptionalFeed(row)
}

// GetByURL retrieves a feed by its URL, or nil if it does not exist
func (r *FeedRepo) GetByURL(ctx context.Context, url string) (*Feed, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+feedColumns+` FROM feeds WHERE url = ?`, url)
	return scanOptionalFeed(row)
}

func (r *FeedRepo) GetBy(ctx context.Context, filter FeedFilter) ([]Feed, error) {
	var conds []string
	var args []any

	if filter.URL != nil {
		conds = append(conds, "url = ?")
		args = append(args, *filter.URL)
	}
	if filter.Title != nil {
		conds = append(conds, "title = ?")
		args = append(args, *filter.Title)
	}

	query := `SELECT ` + feedColumns + ` FROM feeds`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY title COLLATE NOCASE, id"

	return r.queryFeeds(ctx, query, args...)
}

func (r *FeedRepo) GetAll(ctx context.Context) ([]Feed, error) {
	return r.GetBy(ctx, FeedFilter{})
}

// Update applies a partial update and refreshes last_updated_at.
func (r *FeedRepo) Update(ctx context.Context, id int64, update FeedUpdate) error {
	sets := []string{"last_updated_at = ?"}
	args := []any{time.Now().UTC()}

	fields := []struct {
		column string
		value  *string
	}{
		{"url", update.URL},
		{"title", update.Title},
		{"site_link", update.SiteLink},
		{"description", update.Description},
		{"cache_token", update.CacheToken},
	}
	for _, f := range fields {
		if f.value != nil {
			sets = append(sets, f.column+" = ?")
			args = append(args, *f.value)
		}
	}
	args = append(args, id)

	res, err := r.db.ExecContext(ctx, `UPDATE feeds SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("feed url: %w", ErrAlreadyExists)
		}
		return fmt.Errorf("failed to update feed: %w", err)
	}

	return requireAffected(res, "feed", id)
}

// Delete removes a feed together with its entries and returns the removed feed, or
// nil if there was nothing to remove.
func (r *FeedRepo) Delete(ctx context.Context, id int64) (*Feed, error) {
	var deleted *Feed
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT `+feedColumns+` FROM feeds WHERE id = ?`, id)
		feed, err := scanOptionalFeed(row)
		if err != nil || feed == nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM feeds WHERE id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete feed: %w", err)
		}
		deleted = feed
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

// Count returns the total number of feeds
func (r *FeedRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM feeds").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get feed count: %w", err)
	}
	return count, nil
}

func (r *FeedRepo) queryFeeds(ctx context.Context, query string, args ...any) ([]Feed, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query feeds: %w", err)
	}
	defer rows.Close()

	var feeds []Feed
	for rows.Next() {
		feed, err := scanFeed(rows)
		if err != nil {
			return nil, err
		}
		feeds = append(feeds, *feed)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating feed rows: %w", err)
	}

	return feeds, nil
}

func scanFeed(s rowScanner) (*Feed, error) {
	var feed Feed
	err := s.Scan(
		&feed.ID, &feed.URL, &feed.Title, &feed.SiteLink, &feed.Description,
		&feed.CacheToken, &feed.CreatedAt, &feed.LastUpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan feed row: %w", err)
	}
	return &feed, nil
}

func scanOptionalFeed(row *sql.Row) (*Feed, error) {
	feed, err := scanFeed(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return feed, err
}

func requireAffected(res sql.Result, kind string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %d: %w", kind, id, ErrNotFound)
	}
	return nil
}
