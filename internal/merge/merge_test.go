package merge

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/uuid"

	"taskboard/backend/internal/models"
)

func datePtr(s string) *time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return &d
}

func mergeFixture() (models.Task, []models.Task) {
	primary := models.Task{
		ID:        uuid.Must(uuid.NewV4()),
		Text:      "Fix login redirect",
		Notes:     "Repro on staging.",
		Status:    models.StatusInProgress,
		Priority:  models.PriorityMedium,
		DueDate:   datePtr("2025-03-01"),
		CreatedAt: time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC),
	}
	secondaries := []models.Task{
		{
			ID:        uuid.Must(uuid.NewV4()),
			Text:      "Login loops forever",
			Notes:     "Same on mobile.",
			Priority:  models.PriorityUrgent,
			DueDate:   datePtr("2025-02-15"),
			CreatedAt: time.Date(2025, 1, 12, 0, 0, 0, 0, time.UTC),
		},
		{
			ID:        uuid.Must(uuid.NewV4()),
			Text:      "Redirect 302 storm",
			Priority:  models.PriorityLow,
			CreatedAt: time.Date(2025, 1, 14, 0, 0, 0, 0, time.UTC),
		},
	}
	return primary, secondaries
}

func TestMerge_PriorityAndDueDateScenario(t *testing.T) {
	primary := models.Task{
		ID:       uuid.Must(uuid.NewV4()),
		Text:     "primary",
		Priority: models.PriorityMedium,
		DueDate:  datePtr("2025-03-01"),
	}
	secondary := models.Task{
		ID:       uuid.Must(uuid.NewV4()),
		Text:     "secondary",
		Priority: models.PriorityUrgent,
		DueDate:  datePtr("2025-02-15"),
	}

	result, err := Merge(primary, []models.Task{secondary}, "alice", time.Unix(1000, 0))
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}

	if result.Task.Priority != models.PriorityUrgent {
		t.Errorf("Expected priority urgent, got %s", result.Task.Priority)
	}
	if result.Task.DueDate == nil || !result.Task.DueDate.Equal(*datePtr("2025-02-15")) {
		t.Errorf("Expected due date 2025-02-15, got %v", result.Task.DueDate)
	}
}

func TestMerge_NullDueDateNeverOverrides(t *testing.T) {
	primary, secondaries := mergeFixture()
	secondaries[0].DueDate = nil
	secondaries[1].DueDate = nil

	result, err := Merge(primary, secondaries, "alice", time.Unix(1000, 0))
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}

	if result.Task.DueDate == nil || !result.Task.DueDate.Equal(*primary.DueDate) {
		t.Errorf("Expected primary due date to survive, got %v", result.Task.DueDate)
	}
}

func TestMerge_Deterministic(t *testing.T) {
	primary, secondaries := mergeFixture()
	now := time.Date(2025, 2, 1, 12, 0, 0, 0, time.UTC)

	first, err := Merge(primary, secondaries, "alice", now)
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	second, err := Merge(primary, secondaries, "alice", now)
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}

	if !reflect.DeepEqual(first.Task, second.Task) {
		t.Error("Expected identical merged tasks for identical inputs")
	}
	if !reflect.DeepEqual(first.Entries, second.Entries) {
		t.Error("Expected identical audit entries for identical inputs")
	}
}

func TestMerge_TextAnnotatesCount(t *testing.T) {
	primary, secondaries := mergeFixture()

	result, err := Merge(primary, secondaries, "alice", time.Unix(1000, 0))
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}

	if result.Task.Text != "Fix login redirect (+2 merged)" {
		t.Errorf("Expected annotated text, got %q", result.Task.Text)
	}
}

func TestMerge_NotesCarryAuditBlock(t *testing.T) {
	primary, secondaries := mergeFixture()
	now := time.Date(2025, 2, 1, 12, 0, 0, 0, time.UTC)

	result, err := Merge(primary, secondaries, "alice", now)
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}

	notes := result.Task.Notes
	order := []string{
		"Repro on staging.",
		"Same on mobile.",
		"--- Merged 2025-02-01T12:00:00Z ---",
		`"Login loops forever" (created 2025-01-12)`,
		`"Redirect 302 storm" (created 2025-01-14)`,
	}
	last := -1
	for _, want := range order {
		idx := strings.Index(notes, want)
		if idx == -1 {
			t.Fatalf("Expected notes to contain %q, got:\n%s", want, notes)
		}
		if idx < last {
			t.Errorf("Expected %q to appear in order, got:\n%s", want, notes)
		}
		last = idx
	}
}

func TestMerge_SubtasksAndAttachmentsUnionByIdentity(t *testing.T) {
	primary, secondaries := mergeFixture()

	shared := models.Subtask{ID: uuid.Must(uuid.NewV4()), Text: "shared step"}
	primary.Subtasks = []models.Subtask{shared, {ID: uuid.Must(uuid.NewV4()), Text: "primary step"}}
	// Same identity on a secondary, and a content duplicate under a new id.
	secondaries[0].Subtasks = []models.Subtask{shared, {ID: uuid.Must(uuid.NewV4()), Text: "primary step"}}

	att := models.Attachment{ID: uuid.Must(uuid.NewV4()), FileName: "trace.log"}
	primary.Attachments = []models.Attachment{att}
	secondaries[1].Attachments = []models.Attachment{att, {ID: uuid.Must(uuid.NewV4()), FileName: "screen.png"}}

	result, err := Merge(primary, secondaries, "alice", time.Unix(1000, 0))
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}

	if len(result.Task.Subtasks) != 3 {
		t.Errorf("Expected 3 subtasks (identity union keeps content duplicates), got %d", len(result.Task.Subtasks))
	}
	if len(result.Task.Attachments) != 2 {
		t.Errorf("Expected 2 attachments, got %d", len(result.Task.Attachments))
	}
	for _, st := range result.Task.Subtasks {
		if st.TaskID != primary.ID && st.TaskID != (uuid.UUID{}) {
			// Reparented subtasks must point at the primary.
			t.Errorf("Expected subtask reparented to primary, got %s", st.TaskID)
		}
	}
}

func TestMerge_AttachmentBoundEnforced(t *testing.T) {
	primary, secondaries := mergeFixture()
	for i := 0; i <= models.MaxAttachmentsPerTask; i++ {
		secondaries[0].Attachments = append(secondaries[0].Attachments, models.Attachment{
			ID: uuid.Must(uuid.NewV4()),
		})
	}

	if _, err := Merge(primary, secondaries, "alice", time.Unix(1000, 0)); err == nil {
		t.Error("Expected merge exceeding the attachment bound to fail")
	}
}

func TestMerge_MergedFromAppendsIdempotently(t *testing.T) {
	primary, secondaries := mergeFixture()
	// One secondary is already recorded from an earlier merge.
	primary.MergedFrom = models.UUIDList{secondaries[0].ID}

	result, err := Merge(primary, secondaries, "alice", time.Unix(1000, 0))
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}

	if len(result.Task.MergedFrom) != 2 {
		t.Errorf("Expected 2 provenance ids without duplicates, got %d", len(result.Task.MergedFrom))
	}
	if !result.Task.MergedFrom.Contains(secondaries[1].ID) {
		t.Error("Expected second secondary to be recorded")
	}
}

func TestMerge_AuditEntriesCoverEveryTask(t *testing.T) {
	primary, secondaries := mergeFixture()

	result, err := Merge(primary, secondaries, "alice", time.Unix(1000, 0))
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}

	if len(result.Entries) != 3 {
		t.Fatalf("Expected 1 merge entry + 2 absorbed entries, got %d", len(result.Entries))
	}
	if result.Entries[0].Action != models.ActionTasksMerged {
		t.Errorf("Expected first entry %s, got %s", models.ActionTasksMerged, result.Entries[0].Action)
	}

	details, err := result.Entries[0].DecodeDetails()
	if err != nil {
		t.Fatalf("Failed to decode merge details: %v", err)
	}
	md, ok := details.(models.MergeDetails)
	if !ok {
		t.Fatalf("Expected MergeDetails, got %T", details)
	}
	if len(md.SecondaryIDs) != 2 {
		t.Errorf("Expected 2 secondary ids in details, got %d", len(md.SecondaryIDs))
	}
}

func TestMerge_NoSecondariesRejected(t *testing.T) {
	primary, _ := mergeFixture()
	if _, err := Merge(primary, nil, "alice", time.Unix(1000, 0)); err != ErrNoSecondaries {
		t.Errorf("Expected ErrNoSecondaries, got %v", err)
	}
}
