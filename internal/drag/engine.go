// Package drag resolves drag gestures against board drop targets, applies the
// resulting move optimistically and hands the authoritative commit to the
// task store.
package drag

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/gofrs/uuid"

	"taskboard/backend/internal/models"
	boardsync "taskboard/backend/internal/sync"
)

var (
	ErrDragInProgress = errors.New("another drag gesture is already active")
	ErrNoActiveDrag   = errors.New("no drag gesture is active")
	ErrUnknownTask    = errors.New("dragged task is not in the board cache")
)

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Rect struct {
	X, Y, W, H float64
}

func (r Rect) Contains(p Point) bool {
	return p.X >= r.X && p.X <= r.X+r.W && p.Y >= r.Y && p.Y <= r.Y+r.H
}

func (r Rect) Intersects(o Rect) bool {
	return r.X < o.X+o.W && o.X < r.X+r.W && r.Y < o.Y+o.H && o.Y < r.Y+r.H
}

func (r Rect) Centroid() Point {
	return Point{X: r.X + r.W/2, Y: r.Y + r.H/2}
}

type TargetKind int

const (
	KindColumn TargetKind = iota
	KindCard
)

// DropTarget is one registered collision surface: a status column container
// or a task card nested inside one. A card's Status is the status of the
// column it currently sits in.
type DropTarget struct {
	ID     string
	Kind   TargetKind
	Status models.TaskStatus
	TaskID uuid.UUID
	Bounds Rect
}

// Outcome describes how a gesture ended. Announcement is always set; it is
// the string handed to assistive technology.
type Outcome struct {
	Committed    bool
	Seq          uint64
	From         models.TaskStatus
	To           models.TaskStatus
	Celebrated   bool
	Announcement string
}

// CommitFunc submits the status change to the task store. It runs on its own
// goroutine; the engine does not wait for it. Timeout and rollback are the
// caller's responsibility, keyed by the optimistic sequence.
type CommitFunc func(task models.Task, seq uint64)

// CelebrateFunc fires once when a gesture lands a task in the done column.
type CelebrateFunc func(task models.Task)

type gesture struct {
	taskID uuid.UUID
	origin models.TaskStatus
}

type Engine struct {
	mu        sync.Mutex
	cache     *boardsync.Cache
	commit    CommitFunc
	celebrate CelebrateFunc
	targets   []DropTarget
	active    *gesture

	// dragProxy is the bounding box dragged with the pointer, used by the
	// intersection pass. Matches a typical card footprint.
	dragProxy Rect
}

func NewEngine(cache *boardsync.Cache, commit CommitFunc, celebrate CelebrateFunc) *Engine {
	return &Engine{
		cache:     cache,
		commit:    commit,
		celebrate: celebrate,
		dragProxy: Rect{W: 240, H: 80},
	}
}

// SetTargets replaces the registered collision surfaces. The UI layer calls
// this whenever column or card geometry changes.
func (e *Engine) SetTargets(targets []DropTarget) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.targets = append(e.targets[:0:0], targets...)
}

// DragStart begins a gesture. Only one gesture may be active at a time.
func (e *Engine) DragStart(taskID uuid.UUID) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.active != nil {
		return "", ErrDragInProgress
	}

	task, ok := e.cache.Get(taskID)
	if !ok {
		return "", ErrUnknownTask
	}

	e.active = &gesture{taskID: taskID, origin: task.Status}
	return fmt.Sprintf("Picked up task %q from %s", task.Text, task.Status), nil
}

// DragOver reports the target the gesture would drop on at p, for highlight
// feedback. Nil when nothing qualifies.
func (e *Engine) DragOver(p Point) *DropTarget {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.active == nil {
		return nil
	}
	return e.resolve(p)
}

// Cancel ends the gesture without a drop, as when the pointer leaves the
// board or Escape is pressed.
func (e *Engine) Cancel() (Outcome, error) {
	return e.DragEnd(nil)
}

// DragEnd completes the gesture. A nil point cancels. A drop on a different
// column applies the move optimistically, fires the commit, and, for a move
// into done, triggers the celebration exactly once. Every path returns an
// announcement.
func (e *Engine) DragEnd(p *Point) (Outcome, error) {
	e.mu.Lock()

	if e.active == nil {
		e.mu.Unlock()
		return Outcome{}, ErrNoActiveDrag
	}

	g := e.active
	e.active = nil

	task, ok := e.cache.Get(g.taskID)
	if !ok {
		e.mu.Unlock()
		return Outcome{
			Announcement: "Dropped task. No change.",
		}, nil
	}

	var target *DropTarget
	if p != nil {
		target = e.resolve(*p)
	}
	e.mu.Unlock()

	if target == nil {
		return Outcome{
			From:         g.origin,
			To:           g.origin,
			Announcement: fmt.Sprintf("Dropped task %q. No change.", task.Text),
		}, nil
	}

	dest := target.Status
	if dest == task.Status {
		return Outcome{
			From:         g.origin,
			To:           dest,
			Announcement: fmt.Sprintf("Task %q remained in %s", task.Text, dest),
		}, nil
	}

	from := task.Status
	task.Status = dest
	seq := e.cache.ApplyLocal(task)

	if e.commit != nil {
		go e.commit(task, seq)
	}

	out := Outcome{
		Committed:    true,
		Seq:          seq,
		From:         from,
		To:           dest,
		Announcement: fmt.Sprintf("Task %q moved from %s to %s", task.Text, from, dest),
	}

	if dest == models.StatusDone && e.celebrate != nil {
		e.celebrate(task)
		out.Celebrated = true
	}

	return out, nil
}

// resolve runs the two collision passes and picks the winning target. Columns
// always beat cards: column drop zones are semantically primary, and nested
// cards would otherwise shadow them. Among colliding columns the one whose
// centroid lies nearest the pointer wins; distance ties break on lowest ID so
// overlapping drop zones resolve deterministically.
func (e *Engine) resolve(p Point) *DropTarget {
	proxy := e.dragProxy
	proxy.X = p.X - proxy.W/2
	proxy.Y = p.Y - proxy.H/2

	seen := make(map[string]bool)
	var collisions []DropTarget

	// Precise pointer-containment pass.
	for _, t := range e.targets {
		if t.Bounds.Contains(p) {
			seen[t.ID] = true
			collisions = append(collisions, t)
		}
	}
	// Fallback bounding-box pass, unioned before filtering.
	for _, t := range e.targets {
		if !seen[t.ID] && t.Bounds.Intersects(proxy) {
			seen[t.ID] = true
			collisions = append(collisions, t)
		}
	}

	if len(collisions) == 0 {
		return nil
	}

	var columns, cards []DropTarget
	for _, t := range collisions {
		if t.Kind == KindColumn {
			columns = append(columns, t)
		} else {
			cards = append(cards, t)
		}
	}

	pick := func(candidates []DropTarget) *DropTarget {
		sort.Slice(candidates, func(i, j int) bool {
			di := distance(p, candidates[i].Bounds.Centroid())
			dj := distance(p, candidates[j].Bounds.Centroid())
			if di != dj {
				return di < dj
			}
			return candidates[i].ID < candidates[j].ID
		})
		winner := candidates[0]
		return &winner
	}

	if len(columns) > 0 {
		return pick(columns)
	}
	return pick(cards)
}

func distance(a, b Point) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}
