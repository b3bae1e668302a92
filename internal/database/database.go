package database

import (
	"fmt"

	"github.com/auditflow/callpipe/internal/config"
	"github.com/auditflow/callpipe/internal/types"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDatabase initializes and returns a new GORM DB connection for the
// configured backend. sqlite is the default; mysql is used for split
// deployments where several drain instances share one database.
func NewDatabase(cfg config.StoreConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "mysql":
		dialector = mysql.Open(cfg.DSN)
	case "sqlite", "":
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	if err := Migrate(db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return db, nil
}

// Migrate creates or updates every persisted table.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&types.Batch{},
		&types.Call{},
		&types.TradeMetadata{},
		&types.TradeAudioMapping{},
		&types.CallConversation{},
		&types.LotQuantityMapping{},
		&types.StageResult{},
		&types.TranscriptSegment{},
		&types.AuditAnswer{},
	)
}
