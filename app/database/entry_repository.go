package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

var _ EntryRepository = (*EntryRepo)(nil)

const entryColumns = `id, feed_id, url, COALESCE(title, ''), COALESCE(author, ''),
	COALESCE(summary, ''), COALESCE(content, ''), COALESCE(raw_content, ''),
	is_read, is_saved, published_at, last_updated_at`

const insertEntrySQL = `
	INSERT INTO entries (
		feed_id, url, title, author, summary, content, raw_content,
		is_read, is_saved, published_at, last_updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// EntryRepo handles database operations for feed entries
type EntryRepo struct {
	db *DB
}

// NewEntryRepository creates a new entry repository
func NewEntryRepository(db *DB) *EntryRepo {
	return &EntryRepo{db: db}
}

// Add inserts an entry and returns the stored row. A duplicate URL yields ErrAlreadyExists.
func (r *EntryRepo) Add(ctx context.Context, entry Entry) (*Entry, error) {
	res, err := r.db.ExecContext(ctx, insertEntrySQL, entryArgs(entry, time.Now().UTC())...)
	if err != nil {
		return nil, wrapEntryInsertError(entry, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read entry id: %w", err)
	}
	return r.Get(ctx, id)
}

// AddBatch inserts all entries in one transaction; nothing is stored if any insert fails.
func (r *EntryRepo) AddBatch(ctx context.Context, entries []Entry) error {
	now := time.Now().UTC()
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		for _, entry := range entries {
			if _, err := tx.ExecContext(ctx, insertEntrySQL, entryArgs(entry, now)...); err != nil {
				return wrapEntryInsertError(entry, err)
			}
		}
		return nil
	})
}

func entryArgs(entry Entry, now time.Time) []any {
	publishedAt := entry.PublishedAt
	if publishedAt.IsZero() {
		publishedAt = now
	}
	return []any{
		entry.FeedID, entry.URL, entry.Title, entry.Author, entry.Summary,
		entry.Content, entry.RawContent, entry.IsRead, entry.IsSaved,
		publishedAt.UTC(), now,
	}
}

func wrapEntryInsertError(entry Entry, err error) error {
	if isUniqueViolation(err) {
		return fmt.Errorf("entry %s: %w", entry.URL, ErrAlreadyExists)
	}
	return fmt.Errorf("failed to insert entry: %w", err)
}

// Get retrieves an entry by ID, or nil if it does not exist
func (r *EntryRepo) Get(ctx context.Context, id int64) (*Entry, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM entries WHERE id = ?`, id)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return entry, err
}

// GetBy returns the entries matching filter in the filter's sort order
func (r *EntryRepo) GetBy(ctx context.Context, filter EntryFilter) ([]Entry, error) {
	where, args := entryWhere(filter)

	query := `SELECT ` + entryColumns + ` FROM entries` + where + entryOrder(filter)
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating entry rows: %w", err)
	}

	return entries, nil
}

func (r *EntryRepo) GetAll(ctx context.Context) ([]Entry, error) {
	return r.GetBy(ctx, EntryFilter{})
}

// Update applies a partial update and refreshes last_updated_at.
func (r *EntryRepo) Update(ctx context.Context, id int64, update EntryUpdate) error {
	sets := []string{"last_updated_at = ?"}
	args := []any{time.Now().UTC()}

	texts := []struct {
		column string
		value  *string
	}{
		{"title", update.Title},
		{"author", update.Author},
		{"summary", update.Summary},
		{"content", update.Content},
		{"raw_content", update.RawContent},
	}
	for _, f := range texts {
		if f.value != nil {
			sets = append(sets, f.column+" = ?")
			args = append(args, *f.value)
		}
	}
	if update.IsRead != nil {
		sets = append(sets, "is_read = ?")
		args = append(args, *update.IsRead)
	}
	if update.IsSaved != nil {
		sets = append(sets, "is_saved = ?")
		args = append(args, *update.IsSaved)
	}
	args = append(args, id)

	res, err := r.db.ExecContext(ctx, `UPDATE entries SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("failed to update entry: %w", err)
	}

	return requireAffected(res, "entry", id)
}

// Delete removes an entry and returns it, or nil if there was nothing to remove.
func (r *EntryRepo) Delete(ctx context.Context, id int64) (*Entry, error) {
	var deleted *Entry
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM entries WHERE id = ?`, id)
		entry, err := scanEntry(row)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM entries WHERE id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete entry: %w", err)
		}
		deleted = entry
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

// Count returns the number of entries matching filter
func (r *EntryRepo) Count(ctx context.Context, filter EntryFilter) (int, error) {
	where, args := entryWhere(filter)

	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entries`+where, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get entry count: %w", err)
	}
	return count, nil
}

// ExistsByURL reports whether any feed already owns an entry with this URL
func (r *EntryRepo) ExistsByURL(ctx context.Context, url string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM entries WHERE url = ?)`, url).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check entry existence: %w", err)
	}
	return exists, nil
}

// MarkAllUnreadAsRead flips every unread entry to read in one statement and returns
// the number of rows changed.
func (r *EntryRepo) MarkAllUnreadAsRead(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE entries
		SET is_read = 1, last_updated_at = ?
		WHERE is_read = 0
	`, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to mark entries as read: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n, nil
}

func entryWhere(filter EntryFilter) (string, []any) {
	var conds []string
	var args []any

	if filter.FeedID != nil {
		conds = append(conds, "feed_id = ?")
		args = append(args, *filter.FeedID)
	}
	if filter.IsRead != nil {
		conds = append(conds, "is_read = ?")
		args = append(args, *filter.IsRead)
	}
	if filter.IsSaved != nil {
		conds = append(conds, "is_saved = ?")
		args = append(args, *filter.IsSaved)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func entryOrder(filter EntryFilter) string {
	column := "published_at"
	switch filter.SortBy {
	case SortByTitle:
		column = "COALESCE(NULLIF(title, ''), url) COLLATE NOCASE"
	case SortByReadStatus:
		column = "is_read"
	}

	direction := "DESC"
	if filter.Ascending {
		direction = "ASC"
	}

	return fmt.Sprintf(" ORDER BY %s %s, id %s", column, direction, direction)
}

func scanEntry(s rowScanner) (*Entry, error) {
	var entry Entry
	err := s.Scan(
		&entry.ID, &entry.FeedID, &entry.URL, &entry.Title, &entry.Author,
		&entry.Summary, &entry.Content, &entry.RawContent,
		&entry.IsRead, &entry.IsSaved, &entry.PublishedAt, &entry.LastUpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan entry row: %w", err)
	}
	return &entry, nil
}
