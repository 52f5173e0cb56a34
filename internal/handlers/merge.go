package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid"

	"taskboard/backend/internal/merge"
	"taskboard/backend/internal/middleware"
	"taskboard/backend/internal/models"
	boardsync "taskboard/backend/internal/sync"
)

// MergeTasks folds one or more secondary tasks into the task named in the
// path. The merged result is computed first, then committed and the
// secondaries deleted; the feed carries one update for the primary and a
// delete per absorbed secondary.
func (h *TaskHandler) MergeTasks(c *gin.Context) {
	id, ok := taskID(c)
	if !ok {
		return
	}

	var input struct {
		SecondaryIDs []uuid.UUID `json:"secondary_ids" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	db, cancel := h.boundDB(c)
	defer cancel()

	primary, err := h.tasks.GetTaskByID(db, id)
	if err != nil {
		handleTaskError(c, err)
		return
	}

	secondaries := make([]models.Task, 0, len(input.SecondaryIDs))
	for _, sid := range input.SecondaryIDs {
		if sid == id {
			c.JSON(http.StatusBadRequest, gin.H{"error": "task cannot be merged into itself"})
			return
		}
		secondary, err := h.tasks.GetTaskByID(db, sid)
		if err != nil {
			handleTaskError(c, err)
			return
		}
		secondaries = append(secondaries, secondary)
	}

	result, err := merge.Merge(primary, secondaries, middleware.Actor(c), time.Now().UTC())
	if err != nil {
		if errors.Is(err, merge.ErrNoSecondaries) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	task, err := h.tasks.MergeCommit(db, id, result.Task, result.Entries, input.SecondaryIDs)
	if err != nil {
		handleTaskError(c, err)
		return
	}

	h.publish(c, boardsync.ChangeUpdated, task.ID, &task)
	for _, sid := range input.SecondaryIDs {
		h.publish(c, boardsync.ChangeDeleted, sid, nil)
	}
	// MergeCommit inserts the audit entries in place, so their IDs are
	// filled by now.
	for _, entry := range result.Entries {
		h.announceActivity(c, entry)
	}

	c.JSON(http.StatusOK, task)
}
