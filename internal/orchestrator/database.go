package orchestrator

import (
	"errors"
	"time"

	"github.com/auditflow/callpipe/internal/types"
	"gorm.io/gorm"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

// GetCurrentBatch returns the single active batch, or nil when none is
// flagged active.
func (d *Database) GetCurrentBatch() (*types.Batch, error) {
	var batch types.Batch
	err := d.db.Where("current_batch = ?", true).First(&batch).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &batch, nil
}

// ActivateBatchFor finds or creates the batch for the given day and flags
// it active. Any previously active batch must have been cleared first.
func (d *Database) ActivateBatchFor(date time.Time) (*types.Batch, error) {
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())

	var batch types.Batch
	err := d.db.Where("batch_date = ?", day).First(&batch).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		batch = types.Batch{
			BatchDate:    day,
			CurrentBatch: true,
			BatchStatus:  types.StatusPending,
		}
		for _, stage := range types.PipelineStages {
			batch.Phase(stage).Status = types.StatusPending
		}
		if err := d.db.Create(&batch).Error; err != nil {
			return nil, err
		}
		return &batch, nil
	}
	if err != nil {
		return nil, err
	}

	batch.CurrentBatch = true
	if err := d.db.Save(&batch).Error; err != nil {
		return nil, err
	}
	return &batch, nil
}

// BeginStage durably marks a stage InProgress with its start timestamp.
func (d *Database) BeginStage(batch *types.Batch, stage types.Stage) error {
	phase := batch.Phase(stage)
	if err := phase.Advance(types.StatusInProgress); err != nil {
		return err
	}
	now := time.Now()
	phase.StartTime = &now
	if batch.BatchStatus == types.StatusPending {
		batch.BatchStatus = types.StatusInProgress
	}
	return d.db.Save(batch).Error
}

// CompleteStage durably marks a stage Complete with its end timestamp.
func (d *Database) CompleteStage(batch *types.Batch, stage types.Stage) error {
	phase := batch.Phase(stage)
	if err := phase.Advance(types.StatusComplete); err != nil {
		return err
	}
	now := time.Now()
	if phase.StartTime == nil {
		phase.StartTime = &now
	}
	phase.EndTime = &now
	return d.db.Save(batch).Error
}

// CompleteBatch marks the overall batch Complete.
func (d *Database) CompleteBatch(batch *types.Batch) error {
	batch.BatchStatus = types.StatusComplete
	return d.db.Save(batch).Error
}

// ClearCurrent drops the active flag from a completed batch. The batch row
// is retained for audit.
func (d *Database) ClearCurrent(batch *types.Batch) error {
	batch.CurrentBatch = false
	return d.db.Save(batch).Error
}

// CallNames returns every audio file name registered for the batch.
func (d *Database) CallNames(batchID uint) ([]string, error) {
	var names []string
	err := d.db.Model(&types.Call{}).Where("batch_id = ?", batchID).
		Pluck("audio_name", &names).Error
	return names, err
}

// CallCountsByStatus returns how many batch calls sit in each status.
func (d *Database) CallCountsByStatus(batchID uint) (map[string]int64, error) {
	var rows []struct {
		Status string
		N      int64
	}
	err := d.db.Model(&types.Call{}).
		Select("status, COUNT(*) AS n").
		Where("batch_id = ?", batchID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.Status] = r.N
	}
	return out, nil
}

// SetCallLanguage records the detected language for a call by audio name.
func (d *Database) SetCallLanguage(batchID uint, audioName, language string) error {
	return d.db.Model(&types.Call{}).
		Where("batch_id = ? AND audio_name = ?", batchID, audioName).
		Update("language_id", language).Error
}

// HasTradeMetadata reports whether trade rows exist for the batch.
func (d *Database) HasTradeMetadata(batchID uint) (bool, error) {
	var n int64
	err := d.db.Model(&types.TradeMetadata{}).Where("batch_id = ?", batchID).Count(&n).Error
	return n > 0, err
}
