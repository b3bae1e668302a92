package dispatch

import (
	"errors"

	"github.com/auditflow/callpipe/internal/types"
	"gorm.io/gorm"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

// GetMarker returns the idempotency marker for a file at a stage, or nil
// when the file has not been processed yet.
func (d *Database) GetMarker(stage string, batchID uint, audioName string) (*types.StageResult, error) {
	var marker types.StageResult
	err := d.db.Where("stage = ? AND batch_id = ? AND audio_name = ?", stage, batchID, audioName).First(&marker).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &marker, nil
}

// SaveMarker records a processing result for a file. The row is written for
// failures too, so a bad file is not re-dispatched indefinitely.
func (d *Database) SaveMarker(marker *types.StageResult) error {
	return d.db.Create(marker).Error
}

// MarkersForStage returns every marker written for a stage in a batch,
// keyed by audio name. Used to carry IP affinity into the next stage.
func (d *Database) MarkersForStage(stage string, batchID uint) (map[string]types.StageResult, error) {
	var markers []types.StageResult
	if err := d.db.Where("stage = ? AND batch_id = ?", stage, batchID).Find(&markers).Error; err != nil {
		return nil, err
	}
	out := make(map[string]types.StageResult, len(markers))
	for _, m := range markers {
		out[m.AudioName] = m
	}
	return out, nil
}
