package drain

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/auditflow/callpipe/internal/types"
)

// claimableStatuses are the call states a drain instance may pick up.
var claimableStatuses = []string{
	types.CallPending,
	types.CallTranscriptDone,
	types.CallAuditDone,
}

// staleReverts maps an in-flight status back to the status it is retried
// from when its claim is reclaimed.
var staleReverts = map[string]string{
	types.CallInProgress: types.CallPending,
	types.CallAuditing:   types.CallTranscriptDone,
}

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

// ClaimNext claims at most one processable call for this instance. On
// backends with row-level locking the select skips rows already locked by
// another claimant, so cooperating instances never double-process; on
// sqlite the single-writer process makes the plain select equivalent.
func (d *Database) ClaimNext(batchID uint, instance string) (*types.Call, error) {
	var claimed *types.Call
	err := d.db.Transaction(func(tx *gorm.DB) error {
		q := tx.Where("batch_id = ? AND status IN ? AND claimed_by = ?", batchID, claimableStatuses, "")
		if tx.Dialector.Name() != "sqlite" {
			q = q.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		}

		var call types.Call
		if err := q.Order("id").First(&call).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}

		now := time.Now()
		call.ClaimedBy = instance
		call.ClaimedAt = &now
		if err := tx.Save(&call).Error; err != nil {
			return err
		}
		claimed = &call
		return nil
	})
	return claimed, err
}

// SetStatus persists a status transition for a claimed call.
func (d *Database) SetStatus(call *types.Call, status string) error {
	call.Status = status
	return d.db.Save(call).Error
}

// Release returns a call to the unclaimed pool, optionally with a new
// status (the error path reverts to Pending for a later cycle).
func (d *Database) Release(call *types.Call, status string) error {
	call.ClaimedBy = ""
	call.ClaimedAt = nil
	if status != "" {
		call.Status = status
	}
	return d.db.Save(call).Error
}

// ReclaimStale clears claims stamped before cutoff, reverting in-flight
// statuses so the calls are claimable again. A claim is only ever this old
// when the instance holding it died without releasing; without reclaim the
// call would be orphaned and the batch could never close its stt stage.
func (d *Database) ReclaimStale(batchID uint, cutoff time.Time) (int64, error) {
	var reclaimed int64
	err := d.db.Transaction(func(tx *gorm.DB) error {
		var calls []types.Call
		if err := tx.Where("batch_id = ? AND claimed_by <> ? AND (claimed_at IS NULL OR claimed_at < ?)",
			batchID, "", cutoff).Find(&calls).Error; err != nil {
			return err
		}
		for i := range calls {
			call := &calls[i]
			call.ClaimedBy = ""
			call.ClaimedAt = nil
			if revert, ok := staleReverts[call.Status]; ok {
				call.Status = revert
			}
			if err := tx.Save(call).Error; err != nil {
				return err
			}
			reclaimed++
		}
		return nil
	})
	return reclaimed, err
}

// SaveSegments persists the call's transcript segments.
func (d *Database) SaveSegments(segments []types.TranscriptSegment) error {
	if len(segments) == 0 {
		return nil
	}
	return d.db.CreateInBatches(segments, 200).Error
}

// SaveConversations persists the stock mentions extracted from a call.
func (d *Database) SaveConversations(rows []types.CallConversation) error {
	if len(rows) == 0 {
		return nil
	}
	return d.db.CreateInBatches(rows, 200).Error
}
