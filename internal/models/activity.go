package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
)

// ActivityAction is the closed set of operations recorded in the activity log.
type ActivityAction string

const (
	ActionTaskCreated     ActivityAction = "task_created"
	ActionTaskUpdated     ActivityAction = "task_updated"
	ActionTaskDeleted     ActivityAction = "task_deleted"
	ActionStatusChanged   ActivityAction = "status_changed"
	ActionPriorityChanged ActivityAction = "priority_changed"
	ActionDueDateChanged  ActivityAction = "due_date_changed"
	ActionTaskAssigned    ActivityAction = "task_assigned"
	ActionTaskUnassigned  ActivityAction = "task_unassigned"
	ActionNotesUpdated    ActivityAction = "notes_updated"

	ActionSubtaskAdded     ActivityAction = "subtask_added"
	ActionSubtaskUpdated   ActivityAction = "subtask_updated"
	ActionSubtaskCompleted ActivityAction = "subtask_completed"
	ActionSubtaskReopened  ActivityAction = "subtask_reopened"
	ActionSubtaskDeleted   ActivityAction = "subtask_deleted"

	ActionAttachmentAdded   ActivityAction = "attachment_added"
	ActionAttachmentDeleted ActivityAction = "attachment_deleted"

	ActionTasksMerged   ActivityAction = "tasks_merged"
	ActionMergeAbsorbed ActivityAction = "merge_absorbed"

	ActionReminderSet       ActivityAction = "reminder_set"
	ActionReminderCleared   ActivityAction = "reminder_cleared"
	ActionReminderTriggered ActivityAction = "reminder_triggered"

	ActionMemberJoined     ActivityAction = "member_joined"
	ActionMemberLeft       ActivityAction = "member_left"
	ActionMemberRoleSet    ActivityAction = "member_role_set"
	ActionRecurrenceSet    ActivityAction = "recurrence_set"
	ActionRecurrenceClear  ActivityAction = "recurrence_cleared"
	ActionBoardRenamed     ActivityAction = "board_renamed"
	ActionColumnReordered  ActivityAction = "column_reordered"
	ActionCommentAdded     ActivityAction = "comment_added"
	ActionCommentDeleted   ActivityAction = "comment_deleted"
)

// ActivityDetails is the typed payload attached to a log entry. The concrete
// variant is determined by the entry's Action.
type ActivityDetails interface {
	activityDetails()
}

type StatusChangeDetails struct {
	From TaskStatus `json:"from"`
	To   TaskStatus `json:"to"`
}

type PriorityChangeDetails struct {
	From TaskPriority `json:"from"`
	To   TaskPriority `json:"to"`
}

type AssignmentDetails struct {
	From *uuid.UUID `json:"from,omitempty"`
	To   *uuid.UUID `json:"to,omitempty"`
}

type DueDateDetails struct {
	From *time.Time `json:"from,omitempty"`
	To   *time.Time `json:"to,omitempty"`
}

type SubtaskDetails struct {
	SubtaskID uuid.UUID `json:"subtask_id"`
	Text      string    `json:"text"`
}

type AttachmentDetails struct {
	AttachmentID uuid.UUID `json:"attachment_id"`
	FileName     string    `json:"file_name"`
}

type MergeDetails struct {
	SecondaryIDs   []uuid.UUID `json:"secondary_ids"`
	SecondaryTexts []string    `json:"secondary_texts"`
}

type ReminderDetails struct {
	At time.Time `json:"at"`
}

type MemberDetails struct {
	UserName string `json:"user_name"`
	Role     string `json:"role,omitempty"`
}

type GenericDetails map[string]string

func (StatusChangeDetails) activityDetails()   {}
func (PriorityChangeDetails) activityDetails() {}
func (AssignmentDetails) activityDetails()     {}
func (DueDateDetails) activityDetails()        {}
func (SubtaskDetails) activityDetails()        {}
func (AttachmentDetails) activityDetails()     {}
func (MergeDetails) activityDetails()          {}
func (ReminderDetails) activityDetails()       {}
func (MemberDetails) activityDetails()         {}
func (GenericDetails) activityDetails()        {}

// RawDetails is the stored jsonb form of an ActivityDetails value.
type RawDetails json.RawMessage

func (d RawDetails) Value() (driver.Value, error) {
	if len(d) == 0 {
		return nil, nil
	}
	return []byte(d), nil
}

func (d *RawDetails) Scan(value interface{}) error {
	if value == nil {
		*d = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		*d = append((*d)[:0], v...)
	case string:
		*d = RawDetails(v)
	default:
		return fmt.Errorf("cannot scan %T into RawDetails", value)
	}
	return nil
}

func (d RawDetails) MarshalJSON() ([]byte, error) {
	if len(d) == 0 {
		return []byte("null"), nil
	}
	return []byte(d), nil
}

func (d *RawDetails) UnmarshalJSON(data []byte) error {
	*d = append((*d)[:0], data...)
	return nil
}

// ActivityLogEntry is an immutable, append-only record of one board action.
type ActivityLogEntry struct {
	ID        uuid.UUID      `json:"id" gorm:"primaryKey;type:uuid;default:uuid_generate_v4()"`
	Action    ActivityAction `json:"action" gorm:"not null;index"`
	ActorName string         `json:"actor_name" gorm:"not null"`
	TaskID    *uuid.UUID     `json:"task_id,omitempty" gorm:"type:uuid;index"`
	TaskText  string         `json:"task_text,omitempty"`
	Details   RawDetails     `json:"details,omitempty" gorm:"type:jsonb"`
	CreatedAt time.Time      `json:"created_at" gorm:"index"`
}

// NewActivityEntry builds an entry with its details serialized. CreatedAt is
// left zero; the store assigns it on insert so ordering is server-owned.
func NewActivityEntry(action ActivityAction, actor string, taskID *uuid.UUID, taskText string, details ActivityDetails) (ActivityLogEntry, error) {
	entry := ActivityLogEntry{
		Action:    action,
		ActorName: actor,
		TaskID:    taskID,
		TaskText:  taskText,
	}
	if details != nil {
		data, err := json.Marshal(details)
		if err != nil {
			return ActivityLogEntry{}, fmt.Errorf("failed to encode %s details: %w", action, err)
		}
		entry.Details = RawDetails(data)
	}
	return entry, nil
}

// DecodeDetails returns the typed details variant for the entry's action.
// Actions without a dedicated variant decode into GenericDetails.
func (e *ActivityLogEntry) DecodeDetails() (ActivityDetails, error) {
	if len(e.Details) == 0 {
		return nil, nil
	}

	var dest ActivityDetails
	switch e.Action {
	case ActionStatusChanged:
		dest = &StatusChangeDetails{}
	case ActionPriorityChanged:
		dest = &PriorityChangeDetails{}
	case ActionTaskAssigned, ActionTaskUnassigned:
		dest = &AssignmentDetails{}
	case ActionDueDateChanged:
		dest = &DueDateDetails{}
	case ActionSubtaskAdded, ActionSubtaskUpdated, ActionSubtaskCompleted,
		ActionSubtaskReopened, ActionSubtaskDeleted:
		dest = &SubtaskDetails{}
	case ActionAttachmentAdded, ActionAttachmentDeleted:
		dest = &AttachmentDetails{}
	case ActionTasksMerged, ActionMergeAbsorbed:
		dest = &MergeDetails{}
	case ActionReminderSet, ActionReminderCleared, ActionReminderTriggered:
		dest = &ReminderDetails{}
	case ActionMemberJoined, ActionMemberLeft, ActionMemberRoleSet:
		dest = &MemberDetails{}
	default:
		generic := GenericDetails{}
		if err := json.Unmarshal(e.Details, &generic); err != nil {
			return nil, fmt.Errorf("failed to decode %s details: %w", e.Action, err)
		}
		return generic, nil
	}

	if err := json.Unmarshal(e.Details, dest); err != nil {
		return nil, fmt.Errorf("failed to decode %s details: %w", e.Action, err)
	}

	switch v := dest.(type) {
	case *StatusChangeDetails:
		return *v, nil
	case *PriorityChangeDetails:
		return *v, nil
	case *AssignmentDetails:
		return *v, nil
	case *DueDateDetails:
		return *v, nil
	case *SubtaskDetails:
		return *v, nil
	case *AttachmentDetails:
		return *v, nil
	case *MergeDetails:
		return *v, nil
	case *ReminderDetails:
		return *v, nil
	case *MemberDetails:
		return *v, nil
	}
	return dest, nil
}
