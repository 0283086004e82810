package db

import (
	"fmt"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"evcharge/internal/model"
)

// Migrate brings the schema up to date. With reset set, existing tables are
// dropped first, dependents before the tables they reference.
func Migrate(gormDB *gorm.DB, reset bool, log zerolog.Logger) error {
	if reset {
		log.Warn().Msg("RESET_DB=true detected, dropping all tables")
		for _, table := range []interface{}{&model.Charger{}, &model.User{}} {
			if err := gormDB.Migrator().DropTable(table); err != nil {
				log.Warn().Err(err).Msg("failed to drop table (may not exist)")
			}
		}
	}

	// users must exist before the chargers.owner_id foreign key is created.
	if err := gormDB.AutoMigrate(&model.User{}, &model.Charger{}); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	return nil
}
