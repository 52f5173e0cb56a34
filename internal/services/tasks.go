package services

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"

	"taskboard/backend/internal/models"
)

type TaskService interface {
	CreateTask(db *gorm.DB, task models.Task) (models.Task, error)
	GetTaskByID(db *gorm.DB, id uuid.UUID) (models.Task, error)
	GetTasks(db *gorm.DB) ([]models.Task, error)
	GetTasksPaginated(db *gorm.DB, sortBy, order, page, pageSize string) ([]models.Task, int64, error)
	UpdateTask(db *gorm.DB, id uuid.UUID, updated models.Task) (models.Task, error)
	DeleteTask(db *gorm.DB, id uuid.UUID) error
	SetStatus(db *gorm.DB, id uuid.UUID, status models.TaskStatus, actor string) (models.Task, models.ActivityLogEntry, error)
	Reassign(db *gorm.DB, id uuid.UUID, assignee *uuid.UUID, actor string) (models.Task, models.ActivityLogEntry, error)
	MergeCommit(db *gorm.DB, primaryID uuid.UUID, result models.Task, entries []models.ActivityLogEntry, secondaryIDs []uuid.UUID) (models.Task, error)
}

type TaskServiceImpl struct{}

func NewTaskService() *TaskServiceImpl {
	return &TaskServiceImpl{}
}

func (s *TaskServiceImpl) CreateTask(db *gorm.DB, task models.Task) (models.Task, error) {
	if task.Status == "" {
		task.Status = models.StatusTodo
	}
	if !task.Status.Valid() {
		return models.Task{}, ErrInvalidStatus
	}
	if task.Priority == "" {
		task.Priority = models.PriorityMedium
	}
	if !task.Priority.Valid() {
		return models.Task{}, ErrInvalidPriority
	}
	if task.ID == (uuid.UUID{}) {
		task.ID = uuid.Must(uuid.NewV4())
	}
	if err := db.Create(&task).Error; err != nil {
		return models.Task{}, err
	}
	return task, nil
}

func (s *TaskServiceImpl) GetTaskByID(db *gorm.DB, id uuid.UUID) (models.Task, error) {
	var task models.Task
	result := db.Preload("Subtasks").Preload("Attachments").Where("id = ?", id).First(&task)
	return task, result.Error
}

func (s *TaskServiceImpl) GetTasks(db *gorm.DB) ([]models.Task, error) {
	var tasks []models.Task
	result := db.Preload("Subtasks").Preload("Attachments").Find(&tasks)
	return tasks, result.Error
}

func (s *TaskServiceImpl) GetTasksPaginated(db *gorm.DB, sortBy, order, page, pageSize string) ([]models.Task, int64, error) {
	var tasks []models.Task
	var total int64

	allowedSort := map[string]bool{"created_at": true, "updated_at": true, "due_date": true, "text": true, "priority": true, "status": true}
	if !allowedSort[sortBy] {
		sortBy = "created_at"
	}
	if order != "asc" && order != "desc" {
		order = "desc"
	}

	p := 1
	ps := 10
	if v, err := strconv.Atoi(page); err == nil && v > 0 {
		p = v
	}
	if v, err := strconv.Atoi(pageSize); err == nil && v > 0 && v <= 100 {
		ps = v
	}
	offset := (p - 1) * ps
	db.Model(&models.Task{}).Count(&total)
	result := db.Preload("Subtasks").Preload("Attachments").Order(sortBy + " " + order).Offset(offset).Limit(ps).Find(&tasks)
	return tasks, total, result.Error
}

func (s *TaskServiceImpl) UpdateTask(db *gorm.DB, id uuid.UUID, updated models.Task) (models.Task, error) {
	result := db.Model(&models.Task{}).Where("id = ?", id).Updates(updated)
	if result.Error != nil {
		return models.Task{}, result.Error
	}
	if result.RowsAffected == 0 {
		return models.Task{}, ErrCommitConflict
	}
	return s.GetTaskByID(db, id)
}

func (s *TaskServiceImpl) DeleteTask(db *gorm.DB, id uuid.UUID) error {
	return db.Delete(&models.Task{}, "id = ?", id).Error
}

// SetStatus commits a column move and records the transition in the activity
// log. A missing task surfaces as ErrCommitConflict so the caller rolls back
// the optimistic move instead of leaving the board inconsistent. The created
// entry is returned so the caller can announce it on the live feeds; a no-op
// move returns a zero entry.
func (s *TaskServiceImpl) SetStatus(db *gorm.DB, id uuid.UUID, status models.TaskStatus, actor string) (models.Task, models.ActivityLogEntry, error) {
	if !status.Valid() {
		return models.Task{}, models.ActivityLogEntry{}, ErrInvalidStatus
	}

	var task models.Task
	var entry models.ActivityLogEntry
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", id).First(&task).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrCommitConflict
			}
			return err
		}

		from := task.Status
		if from == status {
			return nil
		}

		result := tx.Model(&models.Task{}).Where("id = ?", id).Updates(map[string]interface{}{
			"status":     status,
			"updated_by": actor,
		})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrCommitConflict
		}
		task.Status = status
		task.UpdatedBy = actor

		var err error
		entry, err = models.NewActivityEntry(models.ActionStatusChanged, actor, &task.ID, task.Text,
			models.StatusChangeDetails{From: from, To: status})
		if err != nil {
			return err
		}
		return tx.Create(&entry).Error
	})
	if err != nil {
		return models.Task{}, models.ActivityLogEntry{}, err
	}
	return task, entry, nil
}

// Reassign follows the same contract as SetStatus: the appended assignment
// entry comes back for feed announcement.
func (s *TaskServiceImpl) Reassign(db *gorm.DB, id uuid.UUID, assignee *uuid.UUID, actor string) (models.Task, models.ActivityLogEntry, error) {
	var task models.Task
	var entry models.ActivityLogEntry
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", id).First(&task).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrCommitConflict
			}
			return err
		}

		from := task.AssignedTo
		result := tx.Model(&models.Task{}).Where("id = ?", id).Updates(map[string]interface{}{
			"assigned_to": assignee,
			"updated_by":  actor,
		})
		if result.Error != nil {
			return result.Error
		}
		task.AssignedTo = assignee
		task.UpdatedBy = actor

		action := models.ActionTaskAssigned
		if assignee == nil {
			action = models.ActionTaskUnassigned
		}
		var err error
		entry, err = models.NewActivityEntry(action, actor, &task.ID, task.Text,
			models.AssignmentDetails{From: from, To: assignee})
		if err != nil {
			return err
		}
		return tx.Create(&entry).Error
	})
	if err != nil {
		return models.Task{}, models.ActivityLogEntry{}, err
	}
	return task, entry, nil
}

// MergeCommit persists a computed merge result: first the primary's merged
// fields and the audit entries, then the secondary deletions. The two steps
// are deliberately not one transaction; the merge output is recomputable, so
// a failure between them is retried by resubmitting the same result. Deleting
// an already-deleted secondary is a no-op, which makes the retry idempotent
// from either step.
func (s *TaskServiceImpl) MergeCommit(db *gorm.DB, primaryID uuid.UUID, result models.Task, entries []models.ActivityLogEntry, secondaryIDs []uuid.UUID) (models.Task, error) {
	err := db.Transaction(func(tx *gorm.DB) error {
		update := tx.Model(&models.Task{}).Where("id = ?", primaryID).Updates(map[string]interface{}{
			"text":        result.Text,
			"notes":       result.Notes,
			"priority":    result.Priority,
			"due_date":    result.DueDate,
			"merged_from": result.MergedFrom,
			"updated_by":  result.UpdatedBy,
		})
		if update.Error != nil {
			return update.Error
		}
		if update.RowsAffected == 0 {
			return ErrCommitConflict
		}

		for i := range result.Subtasks {
			result.Subtasks[i].TaskID = primaryID
			if err := tx.Save(&result.Subtasks[i]).Error; err != nil {
				return err
			}
		}
		for i := range result.Attachments {
			result.Attachments[i].TaskID = primaryID
			if err := tx.Save(&result.Attachments[i]).Error; err != nil {
				return err
			}
		}

		for i := range entries {
			if err := tx.Create(&entries[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return models.Task{}, fmt.Errorf("merge primary commit failed: %w", err)
	}

	if err := db.Delete(&models.Task{}, "id IN ?", secondaryIDs).Error; err != nil {
		return models.Task{}, fmt.Errorf("merge secondary deletion failed: %w", err)
	}

	return s.GetTaskByID(db, primaryID)
}
