package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid"
	"gorm.io/gorm"

	"taskboard/backend/internal/channel"
	"taskboard/backend/internal/middleware"
	"taskboard/backend/internal/models"
	"taskboard/backend/internal/services"
	boardsync "taskboard/backend/internal/sync"
	"taskboard/backend/internal/utils"
)

// EventPublisher fans a task change out to the board feed. The concrete
// implementation is channel.Publisher; tests substitute an in-process fake.
type EventPublisher interface {
	Publish(ctx context.Context, feed string, ev boardsync.TaskEvent) error
}

type TaskHandler struct {
	db       *gorm.DB
	tasks    services.TaskService
	activity services.ActivityService

	publisher     EventPublisher
	breaker       *middleware.CircuitBreaker
	boardID       uuid.UUID
	commitTimeout time.Duration
}

func NewTaskHandler(db *gorm.DB, tasks services.TaskService, activity services.ActivityService, publisher EventPublisher, boardID uuid.UUID, commitTimeout time.Duration) *TaskHandler {
	if commitTimeout <= 0 {
		commitTimeout = 10 * time.Second
	}
	return &TaskHandler{
		db:            db,
		tasks:         tasks,
		activity:      activity,
		publisher:     publisher,
		breaker:       middleware.NewCircuitBreaker(5, 30*time.Second),
		boardID:       boardID,
		commitTimeout: commitTimeout,
	}
}

// boundDB scopes the store call to the commit deadline so a stuck commit
// surfaces as a timeout instead of hanging the request.
func (h *TaskHandler) boundDB(c *gin.Context) (*gorm.DB, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.commitTimeout)
	if h.db == nil {
		return nil, cancel
	}
	return h.db.WithContext(ctx), cancel
}

type taskInput struct {
	Text       string     `json:"text" binding:"required"`
	Status     string     `json:"status"`
	Priority   string     `json:"priority"`
	DueDate    *time.Time `json:"due_date"`
	AssignedTo *uuid.UUID `json:"assigned_to"`
	Notes      string     `json:"notes"`
	Recurrence string     `json:"recurrence"`
}

func (h *TaskHandler) CreateTask(c *gin.Context) {
	var input taskInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	actor := middleware.Actor(c)
	task := models.Task{
		Text:       input.Text,
		Status:     models.TaskStatus(input.Status),
		Priority:   models.TaskPriority(input.Priority),
		DueDate:    input.DueDate,
		AssignedTo: input.AssignedTo,
		Notes:      input.Notes,
		Recurrence: input.Recurrence,
		CreatedBy:  actor,
		UpdatedBy:  actor,
	}

	db, cancel := h.boundDB(c)
	defer cancel()

	created, err := h.tasks.CreateTask(db, task)
	if err != nil {
		handleTaskError(c, err)
		return
	}

	entry, entryErr := models.NewActivityEntry(models.ActionTaskCreated, actor, &created.ID, created.Text, nil)
	h.logActivityEntry(c, entry, entryErr)
	h.publish(c, boardsync.ChangeCreated, created.ID, &created)

	c.JSON(http.StatusCreated, created)
}

func (h *TaskHandler) GetTasks(c *gin.Context) {
	sortBy := c.DefaultQuery("sortBy", "created_at")
	order := c.DefaultQuery("order", "desc")
	page := c.DefaultQuery("page", "1")
	pageSize := c.DefaultQuery("pageSize", "50")

	tasks, total, err := h.tasks.GetTasksPaginated(h.db, sortBy, order, page, pageSize)
	if err != nil {
		handleTaskError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"tasks": tasks,
		"total": total,
	})
}

func (h *TaskHandler) GetTaskByID(c *gin.Context) {
	id, ok := taskID(c)
	if !ok {
		return
	}
	task, err := h.tasks.GetTaskByID(h.db, id)
	if err != nil {
		handleTaskError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (h *TaskHandler) UpdateTask(c *gin.Context) {
	id, ok := taskID(c)
	if !ok {
		return
	}

	var input taskInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	actor := middleware.Actor(c)
	updated := models.Task{
		Text:       input.Text,
		Status:     models.TaskStatus(input.Status),
		Priority:   models.TaskPriority(input.Priority),
		DueDate:    input.DueDate,
		AssignedTo: input.AssignedTo,
		Notes:      input.Notes,
		Recurrence: input.Recurrence,
		UpdatedBy:  actor,
	}

	db, cancel := h.boundDB(c)
	defer cancel()

	task, err := h.tasks.UpdateTask(db, id, updated)
	if err != nil {
		handleTaskError(c, err)
		return
	}

	entry, entryErr := models.NewActivityEntry(models.ActionTaskUpdated, actor, &task.ID, task.Text, nil)
	h.logActivityEntry(c, entry, entryErr)
	h.publish(c, boardsync.ChangeUpdated, task.ID, &task)

	c.JSON(http.StatusOK, task)
}

func (h *TaskHandler) DeleteTask(c *gin.Context) {
	id, ok := taskID(c)
	if !ok {
		return
	}

	actor := middleware.Actor(c)
	db, cancel := h.boundDB(c)
	defer cancel()

	task, err := h.tasks.GetTaskByID(db, id)
	if err != nil {
		handleTaskError(c, err)
		return
	}

	if err := h.tasks.DeleteTask(db, id); err != nil {
		handleTaskError(c, err)
		return
	}

	entry, entryErr := models.NewActivityEntry(models.ActionTaskDeleted, actor, &id, task.Text, nil)
	h.logActivityEntry(c, entry, entryErr)
	h.publish(c, boardsync.ChangeDeleted, id, nil)

	c.JSON(http.StatusNoContent, nil)
}

// MoveTask commits a column change, typically the tail end of a drag
// gesture. A conflicting concurrent edit surfaces as 409 so the client can
// roll its optimistic state back.
func (h *TaskHandler) MoveTask(c *gin.Context) {
	id, ok := taskID(c)
	if !ok {
		return
	}

	var input struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	status := models.TaskStatus(input.Status)
	if !status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
		return
	}

	db, cancel := h.boundDB(c)
	defer cancel()

	task, entry, err := h.tasks.SetStatus(db, id, status, middleware.Actor(c))
	if err != nil {
		handleTaskError(c, err)
		return
	}

	h.announceActivity(c, entry)
	h.publish(c, boardsync.ChangeUpdated, task.ID, &task)

	c.JSON(http.StatusOK, task)
}

func (h *TaskHandler) ReassignTask(c *gin.Context) {
	id, ok := taskID(c)
	if !ok {
		return
	}

	var input struct {
		AssignedTo *uuid.UUID `json:"assigned_to"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	db, cancel := h.boundDB(c)
	defer cancel()

	task, entry, err := h.tasks.Reassign(db, id, input.AssignedTo, middleware.Actor(c))
	if err != nil {
		handleTaskError(c, err)
		return
	}

	h.announceActivity(c, entry)
	h.publish(c, boardsync.ChangeUpdated, task.ID, &task)

	c.JSON(http.StatusOK, task)
}

func handleTaskError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
	case errors.Is(err, services.ErrCommitConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "task changed elsewhere"})
	case errors.Is(err, services.ErrInvalidStatus), errors.Is(err, services.ErrInvalidPriority):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "commit timed out"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process task request"})
	}
}

func taskID(c *gin.Context) (uuid.UUID, bool) {
	idStr := c.Param("id")
	if !utils.IsValidUUID(idStr) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid task id"})
		return uuid.UUID{}, false
	}
	return uuid.FromStringOrNil(idStr), true
}

// originSeq reads the client's optimistic sequence from the request so the
// resulting event echoes it back on the feed.
func originSeq(c *gin.Context) uint64 {
	seq, err := strconv.ParseUint(c.GetHeader("X-Origin-Seq"), 10, 64)
	if err != nil {
		return 0
	}
	return seq
}

func (h *TaskHandler) publish(c *gin.Context, kind boardsync.ChangeKind, id uuid.UUID, payload *models.Task) {
	if h.publisher == nil {
		return
	}

	ev := boardsync.TaskEvent{
		EntityType:      boardsync.EntityTask,
		EntityID:        id,
		ChangeKind:      kind,
		Payload:         payload,
		ServerTimestamp: time.Now().UTC(),
		OriginSeq:       originSeq(c),
	}

	err := h.breaker.Call(func() error {
		return h.publisher.Publish(c.Request.Context(), channel.BoardFeed(h.boardID), ev)
	})
	if err != nil {
		log.Printf("⚠️  Failed to publish %s event for task %s: %v", kind, id, err)
	}
}

// logActivityEntry appends the entry and announces it on the board feed and the
// actor's own activity feed, so open clients can bump their live badges
// without polling.
func (h *TaskHandler) logActivityEntry(c *gin.Context, entry models.ActivityLogEntry, err error) {
	if err != nil {
		log.Printf("⚠️  Failed to build activity entry: %v", err)
		return
	}
	if h.activity == nil {
		return
	}
	appended, err := h.activity.Append(h.db, entry)
	if err != nil {
		log.Printf("⚠️  Failed to append activity entry: %v", err)
		return
	}
	h.announceActivity(c, appended)
}

// announceActivity publishes an already-persisted activity entry on the board
// feed and the actor's own feed. Entries the store declined to create (zero
// Action) are skipped.
func (h *TaskHandler) announceActivity(c *gin.Context, entry models.ActivityLogEntry) {
	if h.publisher == nil || entry.Action == "" {
		return
	}
	ev := boardsync.TaskEvent{
		EntityType:      boardsync.EntityActivity,
		EntityID:        entry.ID,
		ChangeKind:      boardsync.ChangeCreated,
		ServerTimestamp: time.Now().UTC(),
	}
	for _, feed := range []string{channel.BoardFeed(h.boardID), channel.ActivityFeed(entry.ActorName)} {
		err := h.breaker.Call(func() error {
			return h.publisher.Publish(c.Request.Context(), feed, ev)
		})
		if err != nil {
			log.Printf("⚠️  Failed to publish activity event on %s: %v", feed, err)
		}
	}
}
