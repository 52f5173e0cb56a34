// Package notify classifies activity entries as read or unread against a
// persisted watermark and keeps the live badge counter while a feed is open.
package notify

import (
	"fmt"
	"sync"
	"time"

	"taskboard/backend/internal/models"
)

// Tracker compares activity entries against the persisted watermark. The
// watermark only ever moves forward, and only on an explicit acknowledgment,
// never because a new event arrived.
type Tracker struct {
	mu         sync.Mutex
	store      WatermarkStore
	userName   string
	mark       time.Time
	hasMark    bool
	liveUnread int
}

func NewTracker(store WatermarkStore, userName string) (*Tracker, error) {
	mark, ok, err := store.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to load watermark: %w", err)
	}
	return &Tracker{
		store:    store,
		userName: userName,
		mark:     mark,
		hasMark:  ok,
	}, nil
}

// IsUnread reports whether the entry sits after the watermark. With no
// watermark ever set, everything is unread until the first acknowledgment.
func (t *Tracker) IsUnread(entry models.ActivityLogEntry) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.isUnreadLocked(entry)
}

func (t *Tracker) isUnreadLocked(entry models.ActivityLogEntry) bool {
	if !t.hasMark {
		return true
	}
	return entry.CreatedAt.After(t.mark)
}

// UnreadCount counts the unread entries of a fetched page. Once the list is
// actually rendered this count, not the live badge, is the source of truth.
func (t *Tracker) UnreadCount(entries []models.ActivityLogEntry) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	count := 0
	for _, e := range entries {
		if t.isUnreadLocked(e) {
			count++
		}
	}
	return count
}

// MarkAllRead advances the watermark to at and persists it. An older
// timestamp never regresses an already advanced watermark.
func (t *Tracker) MarkAllRead(at time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.hasMark && !at.After(t.mark) {
		t.liveUnread = 0
		return nil
	}

	if err := t.store.Write(at); err != nil {
		return err
	}
	t.mark = at
	t.hasMark = true
	t.liveUnread = 0
	return nil
}

// AcknowledgeView is the implicit advance: closing a notification surface
// that had content counts as having read it. An empty view advances nothing.
func (t *Tracker) AcknowledgeView(at time.Time, hadContent bool) error {
	if !hadContent {
		return nil
	}
	return t.MarkAllRead(at)
}

// ObserveLive handles one entry arriving on an open feed. Entries by other
// actors bump the badge immediately so no fetch round-trip is needed; the
// watermark itself does not move.
func (t *Tracker) ObserveLive(entry models.ActivityLogEntry) {
	if entry.ActorName == t.userName {
		return
	}
	t.mu.Lock()
	t.liveUnread++
	t.mu.Unlock()
}

// LiveUnread returns the current badge count.
func (t *Tracker) LiveUnread() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.liveUnread
}

// Reconcile replaces the live badge with the watermark-derived count after a
// page of entries has been fetched.
func (t *Tracker) Reconcile(entries []models.ActivityLogEntry) int {
	count := t.UnreadCount(entries)
	t.mu.Lock()
	t.liveUnread = count
	t.mu.Unlock()
	return count
}

// Watermark exposes the current boundary, mainly for status endpoints.
func (t *Tracker) Watermark() (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.mark, t.hasMark
}
