package services

import (
	"fmt"
	"log"
	"time"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"

	"taskboard/backend/internal/cache"
	"taskboard/backend/internal/models"
)

const (
	taskCacheTTL  = 5 * time.Minute
	taskKeyPrefix = "task:"
	listKeyPrefix = "tasks:list:"
)

// CachedTaskService wraps a TaskService with the read cache. Single-task
// reads are cached by id; list reads by their pagination signature. Every
// write path invalidates, never updates in place, so the cache can only serve
// what the store already confirmed.
type CachedTaskService struct {
	inner   TaskService
	cache   cache.Cache
	metrics *cache.CacheMetrics
}

func NewCachedTaskService(inner TaskService, c cache.Cache) *CachedTaskService {
	return &CachedTaskService{
		inner:   inner,
		cache:   c,
		metrics: cache.NewCacheMetrics(),
	}
}

func (s *CachedTaskService) Metrics() *cache.CacheMetrics {
	return s.metrics
}

func (s *CachedTaskService) CreateTask(db *gorm.DB, task models.Task) (models.Task, error) {
	created, err := s.inner.CreateTask(db, task)
	if err != nil {
		return models.Task{}, err
	}
	s.invalidateLists()
	return created, nil
}

func (s *CachedTaskService) GetTaskByID(db *gorm.DB, id uuid.UUID) (models.Task, error) {
	key := taskKeyPrefix + id.String()

	var cached models.Task
	if err := s.cache.Get(key, &cached); err == nil {
		s.metrics.RecordHit()
		return cached, nil
	}
	s.metrics.RecordMiss()

	task, err := s.inner.GetTaskByID(db, id)
	if err != nil {
		return models.Task{}, err
	}

	if err := s.cache.Set(key, task, taskCacheTTL); err != nil {
		s.metrics.RecordError()
	} else {
		s.metrics.RecordSet()
	}
	return task, nil
}

func (s *CachedTaskService) GetTasks(db *gorm.DB) ([]models.Task, error) {
	return s.inner.GetTasks(db)
}

func (s *CachedTaskService) GetTasksPaginated(db *gorm.DB, sortBy, order, page, pageSize string) ([]models.Task, int64, error) {
	key := fmt.Sprintf("%s%s:%s:%s:%s", listKeyPrefix, sortBy, order, page, pageSize)

	var cached struct {
		Tasks []models.Task `json:"tasks"`
		Total int64         `json:"total"`
	}
	if err := s.cache.Get(key, &cached); err == nil {
		s.metrics.RecordHit()
		return cached.Tasks, cached.Total, nil
	}
	s.metrics.RecordMiss()

	tasks, total, err := s.inner.GetTasksPaginated(db, sortBy, order, page, pageSize)
	if err != nil {
		return nil, 0, err
	}

	cached.Tasks = tasks
	cached.Total = total
	if err := s.cache.Set(key, cached, taskCacheTTL); err != nil {
		s.metrics.RecordError()
	} else {
		s.metrics.RecordSet()
	}
	return tasks, total, nil
}

func (s *CachedTaskService) UpdateTask(db *gorm.DB, id uuid.UUID, updated models.Task) (models.Task, error) {
	task, err := s.inner.UpdateTask(db, id, updated)
	if err != nil {
		return models.Task{}, err
	}
	s.invalidateTask(id)
	return task, nil
}

func (s *CachedTaskService) DeleteTask(db *gorm.DB, id uuid.UUID) error {
	if err := s.inner.DeleteTask(db, id); err != nil {
		return err
	}
	s.invalidateTask(id)
	return nil
}

func (s *CachedTaskService) SetStatus(db *gorm.DB, id uuid.UUID, status models.TaskStatus, actor string) (models.Task, models.ActivityLogEntry, error) {
	task, entry, err := s.inner.SetStatus(db, id, status, actor)
	if err != nil {
		return models.Task{}, models.ActivityLogEntry{}, err
	}
	s.invalidateTask(id)
	return task, entry, nil
}

func (s *CachedTaskService) Reassign(db *gorm.DB, id uuid.UUID, assignee *uuid.UUID, actor string) (models.Task, models.ActivityLogEntry, error) {
	task, entry, err := s.inner.Reassign(db, id, assignee, actor)
	if err != nil {
		return models.Task{}, models.ActivityLogEntry{}, err
	}
	s.invalidateTask(id)
	return task, entry, nil
}

func (s *CachedTaskService) MergeCommit(db *gorm.DB, primaryID uuid.UUID, result models.Task, entries []models.ActivityLogEntry, secondaryIDs []uuid.UUID) (models.Task, error) {
	merged, err := s.inner.MergeCommit(db, primaryID, result, entries, secondaryIDs)
	if err != nil {
		return models.Task{}, err
	}
	s.invalidateTask(primaryID)
	for _, id := range secondaryIDs {
		s.invalidateTask(id)
	}
	return merged, nil
}

func (s *CachedTaskService) invalidateTask(id uuid.UUID) {
	if err := s.cache.Delete(taskKeyPrefix + id.String()); err != nil {
		s.metrics.RecordError()
		log.Printf("⚠️  Failed to invalidate task %s: %v", id, err)
		return
	}
	s.metrics.RecordDelete()
	s.invalidateLists()
}

func (s *CachedTaskService) invalidateLists() {
	if err := s.cache.DeletePattern(listKeyPrefix + "*"); err != nil {
		s.metrics.RecordError()
		log.Printf("⚠️  Failed to invalidate task lists: %v", err)
	}
}
