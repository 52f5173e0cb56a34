package services

import (
	"time"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"

	"taskboard/backend/internal/models"
)

// ActivityService is the append-only activity log. Entries are never updated
// or deleted; CreatedAt is assigned here on insert so ordering is owned by
// the server clock, not the submitting client.
type ActivityService interface {
	Append(db *gorm.DB, entry models.ActivityLogEntry) (models.ActivityLogEntry, error)
	Recent(db *gorm.DB, limit int) ([]models.ActivityLogEntry, error)
	RecentForTask(db *gorm.DB, taskID uuid.UUID, limit int) ([]models.ActivityLogEntry, error)
}

type ActivityServiceImpl struct{}

func NewActivityService() *ActivityServiceImpl {
	return &ActivityServiceImpl{}
}

func (s *ActivityServiceImpl) Append(db *gorm.DB, entry models.ActivityLogEntry) (models.ActivityLogEntry, error) {
	if entry.ID == (uuid.UUID{}) {
		entry.ID = uuid.Must(uuid.NewV4())
	}
	entry.CreatedAt = time.Now().UTC()
	if err := db.Create(&entry).Error; err != nil {
		return models.ActivityLogEntry{}, err
	}
	return entry, nil
}

func (s *ActivityServiceImpl) Recent(db *gorm.DB, limit int) ([]models.ActivityLogEntry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var entries []models.ActivityLogEntry
	result := db.Order("created_at desc").Limit(limit).Find(&entries)
	return entries, result.Error
}

func (s *ActivityServiceImpl) RecentForTask(db *gorm.DB, taskID uuid.UUID, limit int) ([]models.ActivityLogEntry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var entries []models.ActivityLogEntry
	result := db.Where("task_id = ?", taskID).Order("created_at desc").Limit(limit).Find(&entries)
	return entries, result.Error
}
