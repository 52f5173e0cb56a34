// Package merge computes the single surviving task when several tasks are
// merged into one. The computation is pure: given the same inputs it always
// produces the same output, so a failed commit sequence can simply resubmit
// the recomputed result.
package merge

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid"

	"taskboard/backend/internal/models"
)

var ErrNoSecondaries = errors.New("merge requires at least one secondary task")

// Result is the merged task plus the audit entries describing provenance.
// Entries carry no CreatedAt; the store assigns it on insert.
type Result struct {
	Task    models.Task
	Entries []models.ActivityLogEntry
}

// Merge folds secondaries into primary. Field rules:
//
//	text        primary's text annotated with the merged-in count
//	notes       primary, each secondary in order, then a timestamped
//	            merge-history block naming every secondary
//	priority    highest urgency wins
//	due date    earliest non-null wins; null never overrides a date
//	subtasks    union by identity, no content de-duplication
//	attachments union by identity, bounded by the per-task maximum
//	merged_from secondary ids appended, idempotently
func Merge(primary models.Task, secondaries []models.Task, actor string, now time.Time) (Result, error) {
	if len(secondaries) == 0 {
		return Result{}, ErrNoSecondaries
	}

	merged := primary

	merged.Text = fmt.Sprintf("%s (+%d merged)", primary.Text, len(secondaries))
	merged.Notes = mergeNotes(primary, secondaries, now)
	merged.Priority = maxPriority(primary, secondaries)
	merged.DueDate = earliestDueDate(primary, secondaries)
	merged.Subtasks = unionSubtasks(primary, secondaries)

	attachments, err := unionAttachments(primary, secondaries)
	if err != nil {
		return Result{}, err
	}
	merged.Attachments = attachments

	merged.MergedFrom = append(models.UUIDList{}, primary.MergedFrom...)
	for _, s := range secondaries {
		if !merged.MergedFrom.Contains(s.ID) {
			merged.MergedFrom = append(merged.MergedFrom, s.ID)
		}
	}

	merged.UpdatedAt = now
	merged.UpdatedBy = actor

	entries, err := auditEntries(merged, secondaries, actor)
	if err != nil {
		return Result{}, err
	}

	return Result{Task: merged, Entries: entries}, nil
}

func mergeNotes(primary models.Task, secondaries []models.Task, now time.Time) string {
	var b strings.Builder

	if primary.Notes != "" {
		b.WriteString(primary.Notes)
	}
	for _, s := range secondaries {
		if s.Notes == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(s.Notes)
	}

	if b.Len() > 0 {
		b.WriteString("\n\n")
	}
	b.WriteString(fmt.Sprintf("--- Merged %s ---", now.UTC().Format(time.RFC3339)))
	for _, s := range secondaries {
		b.WriteString(fmt.Sprintf("\n- %q (created %s)", s.Text, s.CreatedAt.UTC().Format("2006-01-02")))
	}

	return b.String()
}

func maxPriority(primary models.Task, secondaries []models.Task) models.TaskPriority {
	best := primary.Priority
	for _, s := range secondaries {
		if s.Priority.Rank() > best.Rank() {
			best = s.Priority
		}
	}
	return best
}

func earliestDueDate(primary models.Task, secondaries []models.Task) *time.Time {
	earliest := primary.DueDate
	for _, s := range secondaries {
		if s.DueDate == nil {
			continue
		}
		if earliest == nil || s.DueDate.Before(*earliest) {
			d := *s.DueDate
			earliest = &d
		}
	}
	if earliest == nil {
		return nil
	}
	d := *earliest
	return &d
}

func unionSubtasks(primary models.Task, secondaries []models.Task) []models.Subtask {
	out := append([]models.Subtask{}, primary.Subtasks...)
	seen := make(map[string]bool, len(out))
	for _, st := range out {
		seen[st.ID.String()] = true
	}
	for _, s := range secondaries {
		for _, st := range s.Subtasks {
			if seen[st.ID.String()] {
				continue
			}
			seen[st.ID.String()] = true
			st.TaskID = primary.ID
			st.Position = len(out)
			out = append(out, st)
		}
	}
	return out
}

func unionAttachments(primary models.Task, secondaries []models.Task) ([]models.Attachment, error) {
	out := append([]models.Attachment{}, primary.Attachments...)
	seen := make(map[string]bool, len(out))
	for _, a := range out {
		seen[a.ID.String()] = true
	}
	for _, s := range secondaries {
		for _, a := range s.Attachments {
			if seen[a.ID.String()] {
				continue
			}
			seen[a.ID.String()] = true
			a.TaskID = primary.ID
			out = append(out, a)
		}
	}
	if len(out) > models.MaxAttachmentsPerTask {
		return nil, fmt.Errorf("merge would exceed %d attachments (got %d)", models.MaxAttachmentsPerTask, len(out))
	}
	return out, nil
}

func auditEntries(merged models.Task, secondaries []models.Task, actor string) ([]models.ActivityLogEntry, error) {
	details := models.MergeDetails{}
	for _, s := range secondaries {
		details.SecondaryIDs = append(details.SecondaryIDs, s.ID)
		details.SecondaryTexts = append(details.SecondaryTexts, s.Text)
	}

	primaryID := merged.ID
	entry, err := models.NewActivityEntry(models.ActionTasksMerged, actor, &primaryID, merged.Text, details)
	if err != nil {
		return nil, err
	}
	entries := []models.ActivityLogEntry{entry}

	for _, s := range secondaries {
		secondaryID := s.ID
		absorbed, err := models.NewActivityEntry(models.ActionMergeAbsorbed, actor, &secondaryID, s.Text, models.MergeDetails{
			SecondaryIDs:   []uuid.UUID{primaryID},
			SecondaryTexts: []string{merged.Text},
		})
		if err != nil {
			return nil, err
		}
		entries = append(entries, absorbed)
	}

	return entries, nil
}
