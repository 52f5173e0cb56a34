package handlers

import (
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"taskboard/backend/internal/middleware"
	"taskboard/backend/internal/notify"
	"taskboard/backend/internal/services"
)

// ActivityHandler serves the activity feed and the per-user unread state
// behind the notification badge. Watermarks persist across restarts via
// the file store, one tracker per acting user.
type ActivityHandler struct {
	db       *gorm.DB
	activity services.ActivityService
	pageSize int
	storeDir string

	mu       sync.Mutex
	trackers map[string]*notify.Tracker
}

func NewActivityHandler(db *gorm.DB, activity services.ActivityService, pageSize int, storeDir string) *ActivityHandler {
	return &ActivityHandler{
		db:       db,
		activity: activity,
		pageSize: pageSize,
		storeDir: storeDir,
		trackers: make(map[string]*notify.Tracker),
	}
}

func (h *ActivityHandler) tracker(user string) (*notify.Tracker, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if t, ok := h.trackers[user]; ok {
		return t, nil
	}

	var store notify.WatermarkStore
	fileStore, err := notify.NewFileStore(h.storeDir, user)
	if err != nil {
		log.Printf("⚠️  Watermark file store unavailable for %s, using memory: %v", user, err)
		store = notify.NewMemoryStore()
	} else {
		store = fileStore
	}

	t, err := notify.NewTracker(store, user)
	if err != nil {
		return nil, err
	}
	h.trackers[user] = t
	return t, nil
}

// GetActivity returns the most recent feed page along with the caller's
// unread count derived from their read watermark.
func (h *ActivityHandler) GetActivity(c *gin.Context) {
	limit := h.pageSize
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	entries, err := h.activity.Recent(h.db, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load activity feed"})
		return
	}

	actor := middleware.Actor(c)
	tracker, err := h.tracker(actor)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load read state"})
		return
	}

	unread := tracker.Reconcile(entries)

	// ack=true means the client is closing the panel after showing this
	// page, which counts as having read it.
	if c.Query("ack") == "true" {
		if err := tracker.AcknowledgeView(time.Now().UTC(), len(entries) > 0); err != nil {
			log.Printf("⚠️  Failed to persist watermark for %s: %v", actor, err)
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"entries":      entries,
		"unread_count": unread,
	})
}

// MarkAllRead advances the caller's watermark to now and clears the badge.
func (h *ActivityHandler) MarkAllRead(c *gin.Context) {
	actor := middleware.Actor(c)
	tracker, err := h.tracker(actor)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load read state"})
		return
	}

	if err := tracker.MarkAllRead(time.Now().UTC()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to persist read state"})
		return
	}

	watermark, _ := tracker.Watermark()
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"watermark": watermark,
	})
}
