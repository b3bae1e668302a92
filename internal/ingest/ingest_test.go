package ingest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/auditflow/callpipe/internal/config"
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

func newTestService(t *testing.T, db *gorm.DB) (*Service, config.PathsConfig) {
	t.Helper()
	cfg := config.PathsConfig{
		IntakeRoot:  filepath.Join(t.TempDir(), "intake"),
		WorkingCopy: filepath.Join(t.TempDir(), "working"),
	}
	return NewService(db, cfg, nil, nil), cfg
}

func testBatch(t *testing.T, db *gorm.DB) *types.Batch {
	t.Helper()
	batch := types.Batch{
		BatchDate:    time.Date(2026, 3, 17, 0, 0, 0, 0, time.UTC),
		CurrentBatch: true,
	}
	require.NoError(t, db.Create(&batch).Error)
	return &batch
}

func writeFile(t *testing.T, dir, name string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("audio"), 0o644))
}

func TestReady_FolderAbsent(t *testing.T) {
	db := newTestDB(t)
	svc, cfg := newTestService(t, db)
	batch := testBatch(t, db)

	ready, err := svc.Ready(batch)
	require.NoError(t, err)
	assert.False(t, ready)

	require.NoError(t, os.MkdirAll(filepath.Join(cfg.IntakeRoot, "17-03-2026"), 0o755))
	ready, err = svc.Ready(batch)
	require.NoError(t, err)
	assert.True(t, ready)
}

func TestRegister_CreatesCallsAndCopies(t *testing.T) {
	db := newTestDB(t)
	svc, cfg := newTestService(t, db)
	batch := testBatch(t, db)

	dir := filepath.Join(cfg.IntakeRoot, "17-03-2026")
	writeFile(t, dir, "9876500001_C42_1773741600.wav")
	writeFile(t, dir, "notes.txt") // not audio, skipped

	n, err := svc.Register(context.Background(), batch)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	var call types.Call
	require.NoError(t, db.Where("batch_id = ?", batch.ID).First(&call).Error)
	assert.Equal(t, "9876500001_C42_1773741600.wav", call.AudioName)
	assert.Equal(t, types.CallPending, call.Status)
	assert.Equal(t, "9876500001", call.ClientMobileNumber)
	assert.Equal(t, "C42", call.ClientCode)
	require.NotNil(t, call.CallStartTime)
	assert.Equal(t, int64(1773741600), call.CallStartTime.Unix())

	_, err = os.Stat(filepath.Join(cfg.WorkingCopy, call.AudioName))
	assert.NoError(t, err)
}

func TestRegister_Rerunnable(t *testing.T) {
	db := newTestDB(t)
	svc, cfg := newTestService(t, db)
	batch := testBatch(t, db)

	dir := filepath.Join(cfg.IntakeRoot, "17-03-2026")
	writeFile(t, dir, "a.wav")

	n, err := svc.Register(context.Background(), batch)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// Crash recovery re-runs registration; existing rows are left alone.
	n, err = svc.Register(context.Background(), batch)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	var count int64
	require.NoError(t, db.Model(&types.Call{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestCallFromFileName_NonConforming(t *testing.T) {
	batch := &types.Batch{}
	call := callFromFileName("recording.wav", batch)
	assert.Equal(t, "recording.wav", call.AudioName)
	assert.Empty(t, call.ClientMobileNumber)
	assert.Empty(t, call.ClientCode)
	assert.Nil(t, call.CallStartTime)
}

func TestHTTPIngester_DisabledWhenUnconfigured(t *testing.T) {
	assert.Nil(t, NewHTTPIngester(""))
}

func TestHTTPIngester_PostsBatchAndDate(t *testing.T) {
	var got map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	ing := NewHTTPIngester(server.URL)
	require.NoError(t, ing.Ingest(context.Background(), 7, time.Date(2026, 3, 17, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, float64(7), got["batch_id"])
	assert.Equal(t, "2026-03-17", got["date"])
}

func TestHTTPIngester_NonOKIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not ready", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	ing := NewHTTPIngester(server.URL)
	assert.Error(t, ing.Ingest(context.Background(), 7, time.Now()))
}

func TestIngestMetadata_NilCollaborator(t *testing.T) {
	db := newTestDB(t)
	svc, _ := newTestService(t, db)
	batch := testBatch(t, db)

	assert.NoError(t, svc.IngestCallMetadata(context.Background(), batch))
	assert.NoError(t, svc.IngestTradeMetadata(context.Background(), batch))
}
