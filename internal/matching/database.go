package matching

import (
	"github.com/auditflow/callpipe/internal/types"
	"gorm.io/gorm"
)

// updateChunkSize bounds database round-trips when the second pass flips
// flags on large batches.
const updateChunkSize = 10000

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

// LoadSnapshot reads every table the matching engine consumes for one batch
// into memory.
func (d *Database) LoadSnapshot(batchID uint) (*Snapshot, error) {
	snap := newSnapshot(batchID)

	if err := d.db.Where("batch_id = ?", batchID).Find(&snap.Trades).Error; err != nil {
		return nil, err
	}
	if err := d.db.Where("batch_id = ?", batchID).Find(&snap.Calls).Error; err != nil {
		return nil, err
	}

	var conversations []types.CallConversation
	if err := d.db.Where("batch_id = ?", batchID).Find(&conversations).Error; err != nil {
		return nil, err
	}
	for _, c := range conversations {
		snap.Conversations[c.CallID] = append(snap.Conversations[c.CallID], c)
	}

	if err := d.db.Where("batch_id = ?", batchID).Find(&snap.Mappings).Error; err != nil {
		return nil, err
	}

	var lots []types.LotQuantityMapping
	if err := d.db.Find(&lots).Error; err != nil {
		return nil, err
	}
	for _, l := range lots {
		snap.Lots[normalizeSymbol(l.Symbol)] = l
	}

	snap.index()
	return snap, nil
}

// SaveMappings persists the candidate mapping rows produced for a trade.
func (d *Database) SaveMappings(rows []types.TradeAudioMapping) error {
	if len(rows) == 0 {
		return nil
	}
	return d.db.CreateInBatches(rows, 100).Error
}

// UpdateTradeConfirmation back-propagates the winning classification onto
// the trade row.
func (d *Database) UpdateTradeConfirmation(tradeID uint, label, audioName string) error {
	return d.db.Model(&types.TradeMetadata{}).Where("id = ?", tradeID).
		Updates(map[string]interface{}{
			"voice_recording_confirmations": label,
			"audio_file_name":               audioName,
		}).Error
}

// TaggedTrades returns the batch trades already tagged "Pre trade found" or
// "Post trade found", for the second-pass re-evaluation. The prefixes are
// anchored so the negative "No Post trade found" label stays out.
func (d *Database) TaggedTrades(batchID uint) ([]types.TradeMetadata, error) {
	var trades []types.TradeMetadata
	err := d.db.Where("batch_id = ? AND (voice_recording_confirmations LIKE ? OR voice_recording_confirmations LIKE ?)",
		batchID, "Pre trade found%", "Post trade found%").
		Find(&trades).Error
	return trades, err
}

// BulkSetMappingFlags flips the given flag columns to true for every mapping
// in ids, chunked to bound round-trips.
func (d *Database) BulkSetMappingFlags(ids []uint, columns map[string]interface{}) error {
	for start := 0; start < len(ids); start += updateChunkSize {
		end := start + updateChunkSize
		if end > len(ids) {
			end = len(ids)
		}
		if err := d.db.Model(&types.TradeAudioMapping{}).
			Where("id IN ?", ids[start:end]).
			Updates(columns).Error; err != nil {
			return err
		}
	}
	return nil
}

// BulkSetTradeConfirmations rewrites the confirmation label for every trade
// in ids, chunked to bound round-trips.
func (d *Database) BulkSetTradeConfirmations(ids []uint, label string) error {
	for start := 0; start < len(ids); start += updateChunkSize {
		end := start + updateChunkSize
		if end > len(ids) {
			end = len(ids)
		}
		if err := d.db.Model(&types.TradeMetadata{}).
			Where("id IN ?", ids[start:end]).
			Update("voice_recording_confirmations", label).Error; err != nil {
			return err
		}
	}
	return nil
}
