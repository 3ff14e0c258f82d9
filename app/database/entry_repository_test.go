package database

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntryRepo_AddAndGet(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewEntryRepository(db)
	feed := addTestFeed(t, db, "https://example.com/feed")

	published := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	entry, err := repo.Add(ctx, Entry{
		FeedID:      feed.ID,
		URL:         "https://example.com/posts/1",
		Title:       "First",
		Author:      "Ford Prefect",
		Summary:     "Mostly harmless",
		PublishedAt: published,
	})
	require.NoError(t, err)
	assert.NotZero(t, entry.ID)
	assert.Equal(t, feed.ID, entry.FeedID)
	assert.Equal(t, "Ford Prefect", entry.Author)
	assert.False(t, entry.IsRead)
	assert.False(t, entry.IsSaved)
	assert.True(t, entry.PublishedAt.Equal(published))

	_, err = repo.Add(ctx, Entry{FeedID: feed.ID, URL: "https://example.com/posts/1"})
	assert.ErrorIs(t, err, ErrAlreadyExists)

	missing, err := repo.Get(ctx, entry.ID+1)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestEntryRepo_PublishedAtDefaultsToInsertTime(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	feed := addTestFeed(t, db, "https://example.com/feed")

	before := time.Now().Add(-time.Second)
	entry, err := NewEntryRepository(db).Add(ctx, Entry{FeedID: feed.ID, URL: "https://example.com/undated"})
	require.NoError(t, err)
	assert.True(t, entry.PublishedAt.After(before))
	assert.Equal(t, "https://example.com/undated", entry.DisplayTitle())
}

func TestEntryRepo_AddBatchIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewEntryRepository(db)
	feed := addTestFeed(t, db, "https://example.com/feed")

	err := repo.AddBatch(ctx, []Entry{
		{FeedID: feed.ID, URL: "https://example.com/a"},
		{FeedID: feed.ID, URL: "https://example.com/a"},
	})
	assert.ErrorIs(t, err, ErrAlreadyExists)

	count, err := repo.Count(ctx, EntryFilter{})
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestEntryRepo_GetByFiltersAndSorts(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewEntryRepository(db)
	feedA := addTestFeed(t, db, "https://a.example.com/feed")
	feedB := addTestFeed(t, db, "https://b.example.com/feed")

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, repo.AddBatch(ctx, []Entry{
		{FeedID: feedA.ID, URL: "https://a.example.com/1", Title: "banana", PublishedAt: base.Add(1 * time.Hour)},
		{FeedID: feedA.ID, URL: "https://a.example.com/2", Title: "Apple", PublishedAt: base.Add(3 * time.Hour), IsRead: true},
		{FeedID: feedB.ID, URL: "https://b.example.com/1", Title: "cherry", PublishedAt: base.Add(2 * time.Hour), IsSaved: true},
	}))

	titles := func(entries []Entry) []string {
		out := make([]string, len(entries))
		for i, e := range entries {
			out[i] = e.Title
		}
		return out
	}

	tests := []struct {
		name   string
		filter EntryFilter
		want   []string
	}{
		{"default newest first", EntryFilter{}, []string{"Apple", "cherry", "banana"}},
		{"oldest first", EntryFilter{Ascending: true}, []string{"banana", "cherry", "Apple"}},
		{"by title", EntryFilter{SortBy: SortByTitle, Ascending: true}, []string{"Apple", "banana", "cherry"}},
		{"unread only", EntryFilter{IsRead: Ptr(false)}, []string{"cherry", "banana"}},
		{"saved only", EntryFilter{IsSaved: Ptr(true)}, []string{"cherry"}},
		{"by feed", EntryFilter{FeedID: Ptr(feedA.ID)}, []string{"Apple", "banana"}},
		{"read status unread first", EntryFilter{SortBy: SortByReadStatus, Ascending: true, Limit: 2}, []string{"banana", "cherry"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, err := repo.GetBy(ctx, tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, titles(entries))
		})
	}
}

func TestEntryRepo_UpdateFlags(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewEntryRepository(db)
	feed := addTestFeed(t, db, "https://example.com/feed")

	entry, err := repo.Add(ctx, Entry{FeedID: feed.ID, URL: "https://example.com/1", Title: "One"})
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	require.NoError(t, repo.Update(ctx, entry.ID, EntryUpdate{IsSaved: Ptr(true), IsRead: Ptr(true)}))

	got, err := repo.Get(ctx, entry.ID)
	require.NoError(t, err)
	assert.True(t, got.IsRead)
	assert.True(t, got.IsSaved)
	assert.Equal(t, "One", got.Title)
	assert.True(t, got.LastUpdatedAt.After(entry.LastUpdatedAt))

	require.NoError(t, repo.Update(ctx, entry.ID, EntryUpdate{IsRead: Ptr(false)}))
	got, err = repo.Get(ctx, entry.ID)
	require.NoError(t, err)
	assert.False(t, got.IsRead)
	assert.True(t, got.IsSaved)

	err = repo.Update(ctx, entry.ID+10, EntryUpdate{IsRead: Ptr(true)})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEntryRepo_Delete(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewEntryRepository(db)
	feed := addTestFeed(t, db, "https://example.com/feed")

	entry, err := repo.Add(ctx, Entry{FeedID: feed.ID, URL: "https://example.com/1"})
	require.NoError(t, err)

	deleted, err := repo.Delete(ctx, entry.ID)
	require.NoError(t, err)
	require.NotNil(t, deleted)
	assert.Equal(t, entry.URL, deleted.URL)

	deleted, err = repo.Delete(ctx, entry.ID)
	require.NoError(t, err)
	assert.Nil(t, deleted)
}

func TestEntryRepo_ExistsByURL(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewEntryRepository(db)
	feed := addTestFeed(t, db, "https://example.com/feed")

	exists, err := repo.ExistsByURL(ctx, "https://example.com/1")
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = repo.Add(ctx, Entry{FeedID: feed.ID, URL: "https://example.com/1"})
	require.NoError(t, err)

	exists, err = repo.ExistsByURL(ctx, "https://example.com/1")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestEntryRepo_MarkAllUnreadAsRead(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewEntryRepository(db)
	feed := addTestFeed(t, db, "https://example.com/feed")

	var entries []Entry
	for i := 0; i < 10; i++ {
		entries = append(entries, Entry{FeedID: feed.ID, URL: fmt.Sprintf("https://example.com/unread/%d", i)})
	}
	for i := 0; i < 3; i++ {
		entries = append(entries, Entry{FeedID: feed.ID, URL: fmt.Sprintf("https://example.com/read/%d", i), IsRead: true})
	}
	require.NoError(t, repo.AddBatch(ctx, entries))

	alreadyRead, err := repo.GetBy(ctx, EntryFilter{IsRead: Ptr(true)})
	require.NoError(t, err)
	require.Len(t, alreadyRead, 3)

	time.Sleep(5 * time.Millisecond)
	n, err := repo.MarkAllUnreadAsRead(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(10), n)

	unread, err := repo.Count(ctx, EntryFilter{IsRead: Ptr(false)})
	require.NoError(t, err)
	assert.Zero(t, unread)

	for _, before := range alreadyRead {
		after, err := repo.Get(ctx, before.ID)
		require.NoError(t, err)
		assert.True(t, after.LastUpdatedAt.Equal(before.LastUpdatedAt), "already-read entry %s was touched", before.URL)
	}

	n, err = repo.MarkAllUnreadAsRead(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
