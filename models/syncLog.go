package models

import (
	"context"
	"time"

	"github.com/hostbooks/qbsync_backend/config"
	"gorm.io/gorm"
)

const (
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionLink   = "link"
	ActionSync   = "sync"

	StatusSuccess = "success"
	StatusError   = "error"
)

// SyncLog is one append-only row per attempted remote operation. Request and
// Response hold the serialized payloads exchanged with QuickBooks, kept for
// support diagnostics.
type SyncLog struct {
	ID         uint      `gorm:"primary_key" json:"id"`
	EntityType string    `gorm:"index;size:20;not null" json:"entity_type"`
	Action     string    `gorm:"size:20;not null" json:"action"`
	LocalId    int       `gorm:"index" json:"local_id"`
	RemoteId   string    `gorm:"size:64" json:"remote_id"`
	Status     string    `gorm:"index;size:20;not null" json:"status"`
	Message    string    `gorm:"size:2000" json:"message"`
	Request    string    `gorm:"type:text" json:"request"`
	Response   string    `gorm:"type:text" json:"response"`
	CreatedAt  time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (SyncLog) TableName() string { return "qbsync_logs" }

// LogFilter narrows Query/Count. Zero values mean "no constraint". Search
// matches against Message with a LIKE.
type LogFilter struct {
	EntityType string
	Action     string
	Status     string
	LocalId    int
	RemoteId   string
	From       *time.Time
	To         *time.Time
	Search     string
}

// TypeStat is the per-entity-type slice of a trailing-window summary.
type TypeStat struct {
	EntityType string `json:"entity_type"`
	Success    int64  `json:"success"`
	Errors     int64  `json:"errors"`
}

type LogStats struct {
	Days    int        `json:"days"`
	Total   int64      `json:"total"`
	Success int64      `json:"success"`
	Errors  int64      `json:"errors"`
	ByType  []TypeStat `json:"by_type"`
}

// LogStore writes and reads qbsync_logs. The clock is injectable so the
// retention boundary is testable.
type LogStore struct {
	db  *gorm.DB
	now func() time.Time
}

func NewLogStore(db *gorm.DB) *LogStore {
	return &LogStore{db: db, now: time.Now}
}

// NewLogStoreWithClock is for tests that pin time.
func NewLogStoreWithClock(db *gorm.DB, now func() time.Time) *LogStore {
	return &LogStore{db: db, now: now}
}

// Append records one operation. A failed insert is logged and swallowed: the
// log is diagnostics, it never changes the outcome of a sync.
func (s *LogStore) Append(ctx context.Context, entry SyncLog) {
	if err := session(ctx, s.db).Create(&entry).Error; err != nil {
		config.LogError(config.GetLogger(), "models", "LogStore.Append", entry.EntityType, entry, err)
	}
}

func (s *LogStore) applyFilter(q *gorm.DB, f LogFilter) *gorm.DB {
	if f.EntityType != "" {
		q = q.Where("entity_type = ?", f.EntityType)
	}
	if f.Action != "" {
		q = q.Where("action = ?", f.Action)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.LocalId != 0 {
		q = q.Where("local_id = ?", f.LocalId)
	}
	if f.RemoteId != "" {
		q = q.Where("remote_id = ?", f.RemoteId)
	}
	if f.From != nil {
		q = q.Where("created_at >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("created_at <= ?", *f.To)
	}
	if f.Search != "" {
		q = q.Where("message LIKE ?", "%"+f.Search+"%")
	}
	return q
}

// Query returns matching entries newest first.
func (s *LogStore) Query(ctx context.Context, f LogFilter, limit, offset int) ([]SyncLog, error) {
	var entries []SyncLog
	q := s.applyFilter(session(ctx, s.db).Model(&SyncLog{}), f)
	err := q.Order("id desc").Limit(limit).Offset(offset).Find(&entries).Error
	return entries, err
}

func (s *LogStore) Count(ctx context.Context, f LogFilter) (int64, error) {
	var count int64
	q := s.applyFilter(session(ctx, s.db).Model(&SyncLog{}), f)
	err := q.Count(&count).Error
	return count, err
}

// RecentErrors returns the newest error entries, for the admin dashboard.
func (s *LogStore) RecentErrors(ctx context.Context, limit int) ([]SyncLog, error) {
	return s.Query(ctx, LogFilter{Status: StatusError}, limit, 0)
}

// Cleanup deletes entries strictly older than daysToKeep. An entry created
// exactly at the cutoff instant survives.
func (s *LogStore) Cleanup(ctx context.Context, daysToKeep int) (int64, error) {
	cutoff := s.now().AddDate(0, 0, -daysToKeep)
	res := session(ctx, s.db).
		Where("created_at < ?", cutoff).
		Delete(&SyncLog{})
	return res.RowsAffected, res.Error
}

// ClearAll truncates the operation log.
func (s *LogStore) ClearAll(ctx context.Context) (int64, error) {
	res := session(ctx, s.db).Where("1 = 1").Delete(&SyncLog{})
	return res.RowsAffected, res.Error
}

// Stats summarizes the trailing days window with a per-type breakdown.
func (s *LogStore) Stats(ctx context.Context, days int) (*LogStats, error) {
	since := s.now().AddDate(0, 0, -days)
	stats := LogStats{Days: days}

	base := session(ctx, s.db).Model(&SyncLog{}).Where("created_at >= ?", since)
	if err := base.Session(&gorm.Session{}).Count(&stats.Total).Error; err != nil {
		return nil, err
	}
	if err := base.Session(&gorm.Session{}).Where("status = ?", StatusSuccess).Count(&stats.Success).Error; err != nil {
		return nil, err
	}
	stats.Errors = stats.Total - stats.Success

	rows := []struct {
		EntityType string
		Status     string
		N          int64
	}{}
	err := session(ctx, s.db).Model(&SyncLog{}).
		Select("entity_type, status, count(*) as n").
		Where("created_at >= ?", since).
		Group("entity_type, status").
		Order("entity_type").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	byType := map[string]*TypeStat{}
	order := []string{}
	for _, r := range rows {
		ts, ok := byType[r.EntityType]
		if !ok {
			ts = &TypeStat{EntityType: r.EntityType}
			byType[r.EntityType] = ts
			order = append(order, r.EntityType)
		}
		if r.Status == StatusSuccess {
			ts.Success = r.N
		} else {
			ts.Errors += r.N
		}
	}
	for _, t := range order {
		stats.ByType = append(stats.ByType, *byType[t])
	}
	return &stats, nil
}
