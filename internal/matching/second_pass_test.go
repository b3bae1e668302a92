package matching

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auditflow/callpipe/internal/types"
)

func TestReevaluateTaggedTrades_UpgradesLabel(t *testing.T) {
	db := newTestDB(t)
	batch := newTestBatch(t, db)

	call := seedCall(t, db, batch.ID, "a1.wav", "9876500001", "C1", "en", at(10, 0), at(10, 5))

	// First pass ran before conversation extraction landed: only the script
	// dimension agreed.
	trade := types.TradeMetadata{
		OrderID:                     "O1",
		ALNumber:                    "9876500001",
		TradeDate:                   tradeDay(),
		OrderPlacedTime:             at(10, 2),
		Symbol:                      "TCS",
		TradeQuantity:               100,
		TradePrice:                  3500,
		BatchID:                     batch.ID,
		AudioFileName:               "a1.wav",
		VoiceRecordingConfirmations: "Pre trade found / Details not matching / Price & Quantity",
	}
	require.NoError(t, db.Create(&trade).Error)

	mapping := types.TradeAudioMapping{
		MappingID:       uuid.New().String(),
		TradeMetadataID: trade.ID,
		AudioFileName:   "a1.wav",
		IsScript:        true,
		BatchID:         batch.ID,
	}
	require.NoError(t, db.Create(&mapping).Error)

	// The extraction has now landed and confirms price and quantity too.
	require.NoError(t, db.Create(&types.CallConversation{
		CallID:      call.ID,
		ScriptName:  "TCS",
		LotQuantity: 100,
		TradePrice:  3501,
		BatchID:     batch.ID,
	}).Error)

	engine := NewEngine(db, supportedEN)
	require.NoError(t, engine.ReevaluateTaggedTrades(context.Background(), batch.ID))

	var gotMapping types.TradeAudioMapping
	require.NoError(t, db.First(&gotMapping, mapping.ID).Error)
	assert.True(t, gotMapping.IsScript)
	assert.True(t, gotMapping.IsPrice)
	assert.True(t, gotMapping.IsQuantity)

	got := reloadTrade(t, db, trade.ID)
	assert.Equal(t, "Pre trade found / Details matching", got.VoiceRecordingConfirmations)
}

func TestReevaluateTaggedTrades_FlagsNeverRegress(t *testing.T) {
	db := newTestDB(t)
	batch := newTestBatch(t, db)

	seedCall(t, db, batch.ID, "a1.wav", "9876500001", "C1", "en", at(10, 0), at(10, 5))

	// Flags already set stay set even though the conversation no longer
	// supports them; re-evaluation only flips false to true.
	trade := types.TradeMetadata{
		OrderID:                     "O1",
		ALNumber:                    "9876500001",
		TradeDate:                   tradeDay(),
		OrderPlacedTime:             at(10, 2),
		Symbol:                      "TCS",
		TradeQuantity:               100,
		TradePrice:                  3500,
		BatchID:                     batch.ID,
		AudioFileName:               "a1.wav",
		VoiceRecordingConfirmations: "Pre trade found / Details matching",
	}
	require.NoError(t, db.Create(&trade).Error)

	mapping := types.TradeAudioMapping{
		MappingID:       uuid.New().String(),
		TradeMetadataID: trade.ID,
		AudioFileName:   "a1.wav",
		IsScript:        true,
		IsPrice:         true,
		IsQuantity:      true,
		BatchID:         batch.ID,
	}
	require.NoError(t, db.Create(&mapping).Error)

	engine := NewEngine(db, supportedEN)
	require.NoError(t, engine.ReevaluateTaggedTrades(context.Background(), batch.ID))

	var gotMapping types.TradeAudioMapping
	require.NoError(t, db.First(&gotMapping, mapping.ID).Error)
	assert.True(t, gotMapping.IsScript)
	assert.True(t, gotMapping.IsPrice)
	assert.True(t, gotMapping.IsQuantity)

	got := reloadTrade(t, db, trade.ID)
	assert.Equal(t, "Pre trade found / Details matching", got.VoiceRecordingConfirmations)
}

func TestTaggedTrades_Selection(t *testing.T) {
	db := newTestDB(t)
	batch := newTestBatch(t, db)

	labels := []string{
		"Pre trade found / Details matching",
		"Post trade found / Details not matching / Price",
		"No Post trade found",
		"No call record found",
		"Non observatory call",
	}
	for i, label := range labels {
		require.NoError(t, db.Create(&types.TradeMetadata{
			OrderID:                     "O" + string(rune('1'+i)),
			BatchID:                     batch.ID,
			VoiceRecordingConfirmations: label,
		}).Error)
	}

	mdb := NewDatabase(db)
	trades, err := mdb.TaggedTrades(batch.ID)
	require.NoError(t, err)

	// Only the two found labels qualify; "No Post trade found" stays out.
	require.Len(t, trades, 2)
	assert.ElementsMatch(t, []string{
		"Pre trade found / Details matching",
		"Post trade found / Details not matching / Price",
	}, []string{trades[0].VoiceRecordingConfirmations, trades[1].VoiceRecordingConfirmations})
}
