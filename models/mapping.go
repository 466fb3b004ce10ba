package models

import (
	"context"
	"errors"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

// Entity types carried in qbsync_entity_mappings and qbsync_logs. Credits and
// refunds share the mapping table, disambiguated by entity_type: refund
// transactions and account credits originate from overlapping billing tables,
// so (entity_type, local_id) is the composite identity.
const (
	EntityTypeClient  = "client"
	EntityTypeInvoice = "invoice"
	EntityTypePayment = "payment"
	EntityTypeCredit  = "credit"
	EntityTypeRefund  = "refund"
)

// EntityMapping associates a billing record with its QuickBooks counterpart.
// SyncToken holds the remote concurrency token for entity types whose update
// endpoint requires one; it is empty otherwise.
type EntityMapping struct {
	ID           uint       `gorm:"primary_key" json:"id"`
	EntityType   string     `gorm:"uniqueIndex:idx_qbsync_mapping,priority:1;size:20;not null" json:"entity_type"`
	LocalId      int        `gorm:"uniqueIndex:idx_qbsync_mapping,priority:2;not null" json:"local_id"`
	RemoteId     string     `gorm:"size:64;not null" json:"remote_id"`
	SyncToken    string     `gorm:"size:64" json:"sync_token"`
	Locked       bool       `gorm:"not null;default:false" json:"locked"`
	LastSyncedAt *time.Time `json:"last_synced_at"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (EntityMapping) TableName() string { return "qbsync_entity_mappings" }

// MappingStore is the identity map: the only writer of qbsync_entity_mappings.
type MappingStore struct {
	db *gorm.DB
}

func NewMappingStore(db *gorm.DB) *MappingStore {
	return &MappingStore{db: db}
}

// Get returns the mapping for (entityType, localId), or nil when absent.
func (s *MappingStore) Get(ctx context.Context, entityType string, localId int) (*EntityMapping, error) {
	var mapping EntityMapping
	err := session(ctx, s.db).
		Where("entity_type = ? AND local_id = ?", entityType, localId).
		Take(&mapping).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &mapping, nil
}

// Upsert creates the mapping if absent, else updates remote id, sync token and
// the synced-at stamp. Locked is never touched here: a locked row stays locked
// across forced re-syncs until explicitly unlocked.
func (s *MappingStore) Upsert(ctx context.Context, entityType string, localId int, remoteId string, syncToken string, syncedAt time.Time) error {
	existing, err := s.Get(ctx, entityType, localId)
	if err != nil {
		return err
	}

	if existing == nil {
		mapping := EntityMapping{
			EntityType:   entityType,
			LocalId:      localId,
			RemoteId:     remoteId,
			SyncToken:    syncToken,
			LastSyncedAt: &syncedAt,
		}
		err := session(ctx, s.db).Create(&mapping).Error
		// A concurrent sync of the same record may have inserted the row
		// between Get and Create; fall through to the update in that case.
		var mysqlErr *mysqldriver.MySQLError
		if err == nil || !errors.As(err, &mysqlErr) || mysqlErr.Number != 1062 {
			return err
		}
	}

	return session(ctx, s.db).
		Model(&EntityMapping{}).
		Where("entity_type = ? AND local_id = ?", entityType, localId).
		Updates(map[string]interface{}{
			"remote_id":      remoteId,
			"sync_token":     syncToken,
			"last_synced_at": syncedAt,
		}).Error
}

func (s *MappingStore) SetLocked(ctx context.Context, entityType string, localId int, locked bool) error {
	res := session(ctx, s.db).
		Model(&EntityMapping{}).
		Where("entity_type = ? AND local_id = ?", entityType, localId).
		Update("locked", locked)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Unlink deletes the mapping. Destructive: the next sync of the local record
// treats it as brand-new and creates a fresh remote record.
func (s *MappingStore) Unlink(ctx context.Context, entityType string, localId int) error {
	return session(ctx, s.db).
		Where("entity_type = ? AND local_id = ?", entityType, localId).
		Delete(&EntityMapping{}).Error
}

// List returns mappings of one entity type, newest first.
func (s *MappingStore) List(ctx context.Context, entityType string, limit, offset int) ([]EntityMapping, error) {
	var mappings []EntityMapping
	err := session(ctx, s.db).
		Where("entity_type = ?", entityType).
		Order("id desc").
		Limit(limit).
		Offset(offset).
		Find(&mappings).Error
	return mappings, err
}
