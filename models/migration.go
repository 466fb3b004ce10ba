package models

import (
	"log"

	"github.com/hostbooks/qbsync_backend/config"
)

// MigrateTable migrates only the engine-owned qbsync_* tables. The billing
// tables are external and must never be touched by AutoMigrate.
func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&EntityMapping{},
		&SyncLog{},
		&SyncRun{},
		&TaxMapping{},
		&GatewayMapping{},
		&ItemMapping{},
		&Setting{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
