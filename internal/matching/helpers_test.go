package matching

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/auditflow/callpipe/internal/database"
	"github.com/auditflow/callpipe/internal/types"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	return db
}

func newTestBatch(t *testing.T, db *gorm.DB) *types.Batch {
	t.Helper()
	batch := types.Batch{
		BatchDate:    tradeDay(),
		CurrentBatch: true,
		BatchStatus:  types.StatusInProgress,
	}
	require.NoError(t, db.Create(&batch).Error)
	return &batch
}

func tradeDay() time.Time {
	return time.Date(2026, 3, 17, 0, 0, 0, 0, time.UTC)
}

func at(hour, min int) time.Time {
	d := tradeDay()
	return time.Date(d.Year(), d.Month(), d.Day(), hour, min, 0, 0, time.UTC)
}

func timePtr(t time.Time) *time.Time {
	return &t
}

func seedCall(t *testing.T, db *gorm.DB, batchID uint, audio, mobile, clientCode, language string, start, end time.Time) *types.Call {
	t.Helper()
	call := types.Call{
		AudioName:          audio,
		BatchID:            batchID,
		Status:             types.CallPending,
		LanguageID:         language,
		ClientMobileNumber: mobile,
		ClientCode:         clientCode,
		CallStartTime:      timePtr(start),
		CallEndTime:        timePtr(end),
	}
	require.NoError(t, db.Create(&call).Error)
	return &call
}
