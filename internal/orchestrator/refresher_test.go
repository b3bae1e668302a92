package orchestrator

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/auditflow/callpipe/internal/types"
)

func TestRefresher_NoCurrentBatch(t *testing.T) {
	r := NewRefresher(newTestDB(t), time.Second)
	require.NoError(t, r.Refresh())
}

func TestRefresher_ReportsActiveBatch(t *testing.T) {
	gormDB := newTestDB(t)
	db := NewDatabase(gormDB)
	batch, err := db.ActivateBatchFor(time.Date(2026, 3, 17, 9, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	for i, status := range []string{types.CallPending, types.CallComplete, types.CallComplete} {
		require.NoError(t, gormDB.Create(&types.Call{
			AudioName: fmt.Sprintf("call-%d.wav", i), BatchID: batch.ID, Status: status,
		}).Error)
	}

	r := NewRefresher(gormDB, time.Second)
	require.NoError(t, r.Refresh())
}

func TestRefresher_SurfacesQueryErrors(t *testing.T) {
	gormDB := newTestDB(t)
	require.NoError(t, gormDB.Migrator().DropTable(&types.Batch{}))

	r := NewRefresher(gormDB, time.Second)
	require.Error(t, r.Refresh())
}
