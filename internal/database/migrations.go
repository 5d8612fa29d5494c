package database

import (
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/verdantworks/fieldsync/internal/registry"
)

const migrationScrubTombstonePayloads = "2026-07-14_scrub_tombstone_payloads"

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationScrubTombstonePayloads, apply: scrubTombstonePayloads},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// scrubTombstonePayloads clears payload columns on soft-deleted rows.
// Tombstones only need to carry the deletion marker forward; retaining the
// deleted record's field values kept customer data alive longer than the
// deletion implied.
func scrubTombstonePayloads(db *gorm.DB) error {
	reg := registry.New()
	for _, kind := range reg.Kinds() {
		cfg, ok := reg.Resolve(kind)
		if !ok {
			continue
		}
		updates := make(map[string]any, len(cfg.Fields))
		for _, field := range cfg.Fields {
			updates[field.Column] = nil
		}
		err := db.Table(cfg.Table).
			Where("deleted_at_ms IS NOT NULL").
			Updates(updates).Error
		if err != nil {
			return err
		}
	}
	return nil
}
