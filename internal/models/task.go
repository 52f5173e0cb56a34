package models

import (
	"time"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"
)

type TaskStatus string

const (
	StatusTodo       TaskStatus = "todo"
	StatusInProgress TaskStatus = "in_progress"
	StatusBlocked    TaskStatus = "blocked"
	StatusDone       TaskStatus = "done"
)

func (s TaskStatus) Valid() bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusBlocked, StatusDone:
		return true
	}
	return false
}

type TaskPriority string

const (
	PriorityLow    TaskPriority = "low"
	PriorityMedium TaskPriority = "medium"
	PriorityHigh   TaskPriority = "high"
	PriorityUrgent TaskPriority = "urgent"
)

var priorityRank = map[TaskPriority]int{
	PriorityLow:    0,
	PriorityMedium: 1,
	PriorityHigh:   2,
	PriorityUrgent: 3,
}

// Rank returns the urgency order of a priority, lowest first. Unknown
// priorities rank below low so they never win a merge.
func (p TaskPriority) Rank() int {
	if r, ok := priorityRank[p]; ok {
		return r
	}
	return -1
}

func (p TaskPriority) Valid() bool {
	_, ok := priorityRank[p]
	return ok
}

// MaxAttachmentsPerTask bounds the attachment list of a single task.
const MaxAttachmentsPerTask = 10

type Task struct {
	ID          uuid.UUID      `json:"id" gorm:"primaryKey;type:uuid;default:uuid_generate_v4()"`
	Text        string         `json:"text" gorm:"not null"`
	Status      TaskStatus     `json:"status" gorm:"not null;default:'todo';index"`
	Priority    TaskPriority   `json:"priority" gorm:"not null;default:'medium'"`
	DueDate     *time.Time     `json:"due_date,omitempty" gorm:"type:timestamp"`
	AssignedTo  *uuid.UUID     `json:"assigned_to,omitempty" gorm:"type:uuid"`
	Notes       string         `json:"notes"`
	Subtasks    []Subtask      `json:"subtasks" gorm:"foreignKey:TaskID;constraint:OnDelete:CASCADE"`
	Attachments []Attachment   `json:"attachments" gorm:"foreignKey:TaskID;constraint:OnDelete:CASCADE"`
	Recurrence  string         `json:"recurrence,omitempty"`
	MergedFrom  UUIDList       `json:"merged_from,omitempty" gorm:"type:jsonb"`
	CreatedAt   time.Time      `json:"created_at"`
	CreatedBy   string         `json:"created_by"`
	UpdatedAt   time.Time      `json:"updated_at"`
	UpdatedBy   string         `json:"updated_by"`
	DeletedAt   gorm.DeletedAt `json:"-" gorm:"index"`
}

// Completed reports whether the task sits in the terminal column.
func (t *Task) Completed() bool {
	return t.Status == StatusDone
}

type Subtask struct {
	ID        uuid.UUID    `json:"id" gorm:"primaryKey;type:uuid;default:uuid_generate_v4()"`
	TaskID    uuid.UUID    `json:"task_id" gorm:"type:uuid;not null;index"`
	Text      string       `json:"text" gorm:"not null"`
	Completed bool         `json:"completed" gorm:"not null;default:false"`
	Priority  TaskPriority `json:"priority,omitempty"`
	Estimate  string       `json:"estimate,omitempty"`
	Position  int          `json:"position" gorm:"not null;default:0"`
}

type Attachment struct {
	ID         uuid.UUID `json:"id" gorm:"primaryKey;type:uuid;default:uuid_generate_v4()"`
	TaskID     uuid.UUID `json:"task_id" gorm:"type:uuid;not null;index"`
	FileName   string    `json:"file_name" gorm:"not null"`
	FileSize   int64     `json:"file_size"`
	MimeType   string    `json:"mime_type"`
	StorageKey string    `json:"storage_key" gorm:"not null"`
	UploadedBy string    `json:"uploaded_by"`
	UploadedAt time.Time `json:"uploaded_at"`
}
