package sync

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofrs/uuid"

	"taskboard/backend/internal/models"
)

type ChangeKind string

const (
	ChangeCreated ChangeKind = "created"
	ChangeUpdated ChangeKind = "updated"
	ChangeDeleted ChangeKind = "deleted"
)

const (
	EntityTask     = "task"
	EntityActivity = "activity"
)

// TaskEvent is the wire shape delivered on a board feed. OriginSeq carries the
// local sequence of the optimistic write that produced the change, so the
// originating client can match the authoritative echo without comparing
// wall clocks.
type TaskEvent struct {
	EntityType      string       `json:"entity_type"`
	EntityID        uuid.UUID    `json:"entity_id"`
	ChangeKind      ChangeKind   `json:"change_kind"`
	Payload         *models.Task `json:"payload,omitempty"`
	ServerTimestamp time.Time    `json:"server_ts"`
	OriginSeq       uint64       `json:"origin_seq,omitempty"`
}

func (e TaskEvent) Encode() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to encode task event: %w", err)
	}
	return data, nil
}

func DecodeEvent(data []byte) (TaskEvent, error) {
	var ev TaskEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return TaskEvent{}, fmt.Errorf("failed to decode task event: %w", err)
	}
	return ev, nil
}
