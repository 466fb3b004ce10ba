package models

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

const (
	SyncRunStatusQueued  = "queued"
	SyncRunStatusRunning = "running"
	SyncRunStatusSuccess = "success"
	SyncRunStatusFailed  = "failed"
	SyncRunStatusPartial = "partial"
)

const (
	SyncTriggeredManual   = "manual"
	SyncTriggeredRetry    = "retry"
	SyncTriggeredSchedule = "schedule"
)

// SyncRun is one batch execution. EntityTypesJSON narrows the run to a subset
// of entity types (empty means all); StatsJSON stores the per-type batch
// summaries. Retries reference the run they re-execute via ParentRunId.
type SyncRun struct {
	ID              uint       `gorm:"primary_key" json:"id"`
	Status          string     `gorm:"index;size:20;not null" json:"status"`
	TriggeredBy     string     `gorm:"size:20" json:"triggered_by"`
	EntityTypesJSON []byte     `gorm:"type:json" json:"entity_types"`
	StatsJSON       []byte     `gorm:"type:json" json:"stats"`
	Limit           int        `json:"limit"`
	Force           bool       `json:"force"`
	RecordsSynced   int        `json:"records_synced"`
	ErrorCount      int        `json:"error_count"`
	ParentRunId     *uint      `gorm:"index" json:"parent_run_id"`
	StartedAt       *time.Time `json:"started_at"`
	FinishedAt      *time.Time `json:"finished_at"`
	DurationMs      int64      `json:"duration_ms"`
	CreatedAt       time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (SyncRun) TableName() string { return "qbsync_runs" }

type SyncRunStore struct {
	db *gorm.DB
}

func NewSyncRunStore(db *gorm.DB) *SyncRunStore {
	return &SyncRunStore{db: db}
}

func (s *SyncRunStore) Create(ctx context.Context, run *SyncRun) error {
	return session(ctx, s.db).Create(run).Error
}

func (s *SyncRunStore) Get(ctx context.Context, id uint) (*SyncRun, error) {
	var run SyncRun
	err := session(ctx, s.db).Take(&run, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &run, nil
}

// MarkRunning transitions a queued run to running. Returns false when the run
// is no longer queued, so duplicate pub/sub deliveries do not re-execute it.
func (s *SyncRunStore) MarkRunning(ctx context.Context, id uint, startedAt time.Time) (bool, error) {
	res := session(ctx, s.db).
		Model(&SyncRun{}).
		Where("id = ? AND status = ?", id, SyncRunStatusQueued).
		Updates(map[string]interface{}{
			"status":     SyncRunStatusRunning,
			"started_at": startedAt,
		})
	return res.RowsAffected == 1, res.Error
}

func (s *SyncRunStore) Finish(ctx context.Context, id uint, status string, statsJSON []byte, recordsSynced, errorCount int, finishedAt time.Time, durationMs int64) error {
	return session(ctx, s.db).
		Model(&SyncRun{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":         status,
			"stats_json":     statsJSON,
			"records_synced": recordsSynced,
			"error_count":    errorCount,
			"finished_at":    finishedAt,
			"duration_ms":    durationMs,
		}).Error
}

// List returns run history newest first, optionally filtered by status.
func (s *SyncRunStore) List(ctx context.Context, status string, limit, offset int) ([]SyncRun, error) {
	var runs []SyncRun
	q := session(ctx, s.db).Model(&SyncRun{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	err := q.Order("id desc").Limit(limit).Offset(offset).Find(&runs).Error
	return runs, err
}
