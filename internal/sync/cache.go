// Package sync holds the client-side board state: a task cache that stays
// convergent under duplicated and reordered delivery, and the optimistic
// write bookkeeping layered on top of it.
package sync

import (
	"sort"
	stdsync "sync"
	"time"

	"github.com/gofrs/uuid"

	"taskboard/backend/internal/models"
)

type entryState int

const (
	stateConfirmed entryState = iota
	statePending
	stateSuperseded
)

type entry struct {
	task      models.Task
	updatedAt time.Time

	state      entryState
	pendingSeq uint64

	// baseline is the last server-confirmed task, kept while a local write
	// is pending so a rejected commit can roll back. Nil when the pending
	// write created the task.
	baseline   *models.Task
	baselineAt time.Time
}

// Cache is the single mutable home of rendered task state. All writers, the
// drag engine, the merge flow and the event channel, funnel through Apply or
// ApplyLocal; nothing mutates a Task held by the cache in place.
type Cache struct {
	mu      stdsync.RWMutex
	tasks   map[uuid.UUID]*entry
	deleted map[uuid.UUID]time.Time
	seq     uint64
}

func NewCache() *Cache {
	return &Cache{
		tasks:   make(map[uuid.UUID]*entry),
		deleted: make(map[uuid.UUID]time.Time),
	}
}

// Apply merges one remote event into the cache. Events are last-write-wins on
// the server timestamp per task id; duplicates and stale replays are dropped,
// so applying any permutation of the same event set converges to one state.
func (c *Cache) Apply(ev TaskEvent) {
	if ev.EntityType != EntityTask {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if ev.ChangeKind == ChangeDeleted {
		delete(c.tasks, ev.EntityID)
		if ev.ServerTimestamp.After(c.deleted[ev.EntityID]) {
			c.deleted[ev.EntityID] = ev.ServerTimestamp
		}
		return
	}

	if ev.Payload == nil {
		return
	}

	// An upsert that lost a race with a deletion must not resurrect the task.
	if deletedAt, ok := c.deleted[ev.EntityID]; ok && !ev.ServerTimestamp.After(deletedAt) {
		return
	}

	e, ok := c.tasks[ev.EntityID]
	if !ok {
		c.tasks[ev.EntityID] = &entry{
			task:      *ev.Payload,
			updatedAt: ev.ServerTimestamp,
		}
		return
	}

	if e.state == statePending || e.state == stateSuperseded {
		if ev.OriginSeq != 0 && ev.OriginSeq == e.pendingSeq {
			// Authoritative echo of our own write. It wins by sequence
			// match even when clock skew puts its timestamp behind ours.
			e.task = *ev.Payload
			e.updatedAt = ev.ServerTimestamp
			e.state = stateConfirmed
			e.pendingSeq = 0
			e.baseline = nil
			return
		}
		// Remote change from elsewhere while our write is in flight: it
		// becomes the new confirmed baseline and the pending value no
		// longer rolls back to the pre-drag state.
		if ev.ServerTimestamp.After(e.baselineAt) {
			snapshot := *ev.Payload
			e.baseline = &snapshot
			e.baselineAt = ev.ServerTimestamp
			e.state = stateSuperseded
		}
		return
	}

	if !ev.ServerTimestamp.After(e.updatedAt) {
		return
	}
	e.task = *ev.Payload
	e.updatedAt = ev.ServerTimestamp
}

// ApplyLocal records an optimistic write and returns its sequence number.
// The returned sequence travels with the commit so the server's echo can be
// matched, and is the handle for Rollback if the commit is rejected.
func (c *Cache) ApplyLocal(task models.Task) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	seq := c.seq

	e, ok := c.tasks[task.ID]
	if !ok {
		c.tasks[task.ID] = &entry{
			task:       task,
			state:      statePending,
			pendingSeq: seq,
		}
		return seq
	}

	if e.state == stateConfirmed {
		snapshot := e.task
		e.baseline = &snapshot
		e.baselineAt = e.updatedAt
	}
	e.task = task
	e.state = statePending
	e.pendingSeq = seq
	return seq
}

// Rollback restores the confirmed baseline of the task a rejected commit had
// optimistically changed. If a remote change superseded the original baseline
// while the commit was in flight, rollback lands on that remote state. A
// sequence the server already confirmed is a no-op.
func (c *Cache) Rollback(seq uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for id, e := range c.tasks {
		if e.pendingSeq != seq {
			continue
		}
		if e.baseline == nil {
			// The optimistic write created this task.
			delete(c.tasks, id)
			return
		}
		e.task = *e.baseline
		e.updatedAt = e.baselineAt
		e.state = stateConfirmed
		e.pendingSeq = 0
		e.baseline = nil
		return
	}
}

// Get returns the task as currently rendered, pending or confirmed.
func (c *Cache) Get(id uuid.UUID) (models.Task, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.tasks[id]
	if !ok {
		return models.Task{}, false
	}
	return e.task, true
}

// Pending reports whether the task has an unconfirmed local write.
func (c *Cache) Pending(id uuid.UUID) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.tasks[id]
	return ok && e.state != stateConfirmed
}

// Snapshot returns every cached task ordered by less. Ordering is a caller
// concern; the cache itself keeps none.
func (c *Cache) Snapshot(less func(a, b models.Task) bool) []models.Task {
	c.mu.RLock()
	tasks := make([]models.Task, 0, len(c.tasks))
	for _, e := range c.tasks {
		tasks = append(tasks, e.task)
	}
	c.mu.RUnlock()

	if less != nil {
		sort.Slice(tasks, func(i, j int) bool { return less(tasks[i], tasks[j]) })
	}
	return tasks
}

// Column returns the tasks of one status column ordered by less.
func (c *Cache) Column(status models.TaskStatus, less func(a, b models.Task) bool) []models.Task {
	all := c.Snapshot(less)
	column := all[:0]
	for _, t := range all {
		if t.Status == status {
			column = append(column, t)
		}
	}
	return column
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.tasks)
}
