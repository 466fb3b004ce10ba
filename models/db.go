package models

import (
	"context"

	"github.com/hostbooks/qbsync_backend/config"
	"gorm.io/gorm"
)

// session resolves the store's connection per call. A nil db means the shared
// connection, which lets stores be wired before the startup connect-with-retry
// finishes; tests pass their own *gorm.DB instead.
func session(ctx context.Context, db *gorm.DB) *gorm.DB {
	if db == nil {
		db = config.GetDB()
	}
	return db.WithContext(ctx)
}
