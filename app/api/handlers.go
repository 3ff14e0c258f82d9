package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lysyi3m/lazyfeed/app/cfg"
	"github.com/lysyi3m/lazyfeed/app/database"
	"github.com/lysyi3m/lazyfeed/app/tasks"
)

func NewHandler(feedRepo database.FeedRepository, entryRepo database.EntryRepository,
	subscriber SubscriberInterface, syncer SyncerInterface) *Handler {
	return &Handler{
		feedRepo:   feedRepo,
		entryRepo:  entryRepo,
		subscriber: subscriber,
		syncer:     syncer,
	}
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := gin.H{
		"status":       "ok",
		"version":      cfg.GetVersion(),
		"timestamp":    time.Now().In(time.Local).Format(time.RFC3339),
		"sync_running": h.syncer.Running(),
	}

	ctx := c.Request.Context()
	feeds, err := h.feedRepo.Count(ctx)
	if err != nil {
		slog.Error("Database error", "operation", "count_feeds", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": "Database error"})
		return
	}
	health["feeds"] = feeds

	if unread, err := h.entryRepo.Count(ctx, database.EntryFilter{IsRead: database.Ptr(false)}); err == nil {
		health["unread"] = unread
	}

	c.JSON(http.StatusOK, health)
}

func (h *Handler) ListFeeds(c *gin.Context) {
	feeds, err := h.feedRepo.GetAll(c.Request.Context())
	if err != nil {
		slog.Error("Database error", "operation", "list_feeds", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	resp := make([]FeedResponse, 0, len(feeds))
	for _, f := range feeds {
		resp = append(resp, newFeedResponse(f))
	}

	c.JSON(http.StatusOK, gin.H{
		"feeds": resp,
		"total": len(resp),
	})
}

func (h *Handler) CreateFeed(c *gin.Context) {
	var req CreateFeedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	subs := h.subscriber.Add(c.Request.Context(), database.Feed{URL: req.URL, Title: req.Title})
	if len(subs) != 1 {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Unexpected subscription result"})
		return
	}
	sub := subs[0]

	switch sub.Outcome {
	case tasks.OutcomeAdded:
		c.JSON(http.StatusCreated, gin.H{
			"feed":        newFeedResponse(*sub.Feed),
			"new_entries": sub.NewEntries,
		})
	case tasks.OutcomeExists:
		c.JSON(http.StatusConflict, gin.H{"error": "Feed already exists", "url": sub.URL})
	case tasks.OutcomeInvalid:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid feed URL", "details": sub.Err.Error()})
	default:
		slog.Warn("Feed subscription failed", "url", sub.URL, "error", sub.Err)
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Feed could not be added", "details": sub.Err.Error()})
	}
}

func (h *Handler) UpdateFeed(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req UpdateFeedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}
	if req.URL != nil {
		if err := tasks.ValidateFeedURL(*req.URL); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid feed URL", "details": err.Error()})
			return
		}
	}

	ctx := c.Request.Context()
	err := h.feedRepo.Update(ctx, id, database.FeedUpdate{URL: req.URL, Title: req.Title})
	switch {
	case errors.Is(err, database.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Feed not found"})
		return
	case errors.Is(err, database.ErrAlreadyExists):
		c.JSON(http.StatusConflict, gin.H{"error": "Feed already exists"})
		return
	case err != nil:
		slog.Error("Database error", "operation", "update_feed", "feed_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	f, err := h.feedRepo.Get(ctx, id)
	if err != nil || f == nil {
		slog.Error("Database error", "operation", "get_feed", "feed_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"feed": newFeedResponse(*f)})
}

func (h *Handler) DeleteFeed(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	f, err := h.feedRepo.Delete(c.Request.Context(), id)
	if err != nil {
		slog.Error("Database error", "operation", "delete_feed", "feed_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if f == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Feed not found"})
		return
	}

	slog.Info("Feed deleted", "feed_id", f.ID, "url", f.URL)
	c.JSON(http.StatusOK, gin.H{"feed": newFeedResponse(*f)})
}

func (h *Handler) ListEntries(c *gin.Context) {
	var q EntriesQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid query", "details": err.Error()})
		return
	}

	switch q.SortBy {
	case "", database.SortByPublishedAt, database.SortByTitle, database.SortByReadStatus:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid sort_by", "details": q.SortBy})
		return
	}

	entries, err := h.entryRepo.GetBy(c.Request.Context(), database.EntryFilter{
		FeedID:    q.FeedID,
		IsRead:    q.IsRead,
		IsSaved:   q.IsSaved,
		SortBy:    q.SortBy,
		Ascending: q.Ascending,
		Limit:     q.Limit,
	})
	if err != nil {
		slog.Error("Database error", "operation", "list_entries", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	resp := make([]EntryResponse, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, newEntryResponse(e, false))
	}

	c.JSON(http.StatusOK, gin.H{
		"entries": resp,
		"total":   len(resp),
	})
}

func (h *Handler) GetEntry(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	e, err := h.entryRepo.Get(c.Request.Context(), id)
	if err != nil {
		slog.Error("Database error", "operation", "get_entry", "entry_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if e == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Entry not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"entry": newEntryResponse(*e, true)})
}

func (h *Handler) UpdateEntry(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req UpdateEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}
	if req.IsRead == nil && req.IsSaved == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Nothing to update"})
		return
	}

	ctx := c.Request.Context()
	err := h.entryRepo.Update(ctx, id, database.EntryUpdate{IsRead: req.IsRead, IsSaved: req.IsSaved})
	if errors.Is(err, database.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Entry not found"})
		return
	}
	if err != nil {
		slog.Error("Database error", "operation", "update_entry", "entry_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	e, err := h.entryRepo.Get(ctx, id)
	if err != nil || e == nil {
		slog.Error("Database error", "operation", "get_entry", "entry_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"entry": newEntryResponse(*e, false)})
}

func (h *Handler) MarkAllRead(c *gin.Context) {
	n, err := h.entryRepo.MarkAllUnreadAsRead(c.Request.Context())
	if err != nil {
		slog.Error("Database error", "operation", "mark_all_read", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"updated": n})
}

func (h *Handler) Sync(c *gin.Context) {
	pass, err := h.syncer.RunPass(c.Request.Context())
	if errors.Is(err, tasks.ErrPassInProgress) {
		c.JSON(http.StatusConflict, gin.H{"error": "Sync already in progress"})
		return
	}
	if err != nil {
		slog.Error("Sync pass failed to start", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Sync failed", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"pass": newPassResponse(pass)})
}

func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid id parameter"})
		return 0, false
	}
	return id, true
}
