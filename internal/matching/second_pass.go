package matching

import (
	"context"
	"fmt"
	"strings"
)

// flagDelta identifies which mapping flags need to flip to true. Rows are
// grouped by delta so each group becomes one bulk update instead of a
// per-row round-trip.
type flagDelta struct {
	script   bool
	price    bool
	quantity bool
}

func (d flagDelta) columns() map[string]interface{} {
	cols := make(map[string]interface{}, 3)
	if d.script {
		cols["is_script"] = true
	}
	if d.price {
		cols["is_price"] = true
	}
	if d.quantity {
		cols["is_quantity"] = true
	}
	return cols
}

// ReevaluateTaggedTrades is the second pass over trades already tagged
// "Pre/Post trade found". Conversation extraction arrives asynchronously
// from the LLM step, so flags set before the conversations existed are
// re-scored here once the data is in, and flipped in grouped bulk updates.
func (e *Engine) ReevaluateTaggedTrades(ctx context.Context, batchID uint) error {
	snap, err := e.db.LoadSnapshot(batchID)
	if err != nil {
		return fmt.Errorf("loading batch snapshot: %w", err)
	}

	trades, err := e.db.TaggedTrades(batchID)
	if err != nil {
		return fmt.Errorf("loading tagged trades: %w", err)
	}

	logger := e.logger.With().Uint("batch_id", batchID).Logger()
	logger.Info().Int("trades", len(trades)).Msg("re-evaluating tagged trades")

	mappingsByTrade := make(map[uint]map[string]int, len(snap.Mappings))
	for i, m := range snap.Mappings {
		byAudio, ok := mappingsByTrade[m.TradeMetadataID]
		if !ok {
			byAudio = make(map[string]int)
			mappingsByTrade[m.TradeMetadataID] = byAudio
		}
		byAudio[m.AudioFileName] = i
	}

	flagGroups := make(map[flagDelta][]uint)
	labelGroups := make(map[string][]uint)

	for i := range trades {
		if err := ctx.Err(); err != nil {
			return err
		}
		trade := &trades[i]
		call := snap.CallByAudio(trade.AudioFileName)
		if call == nil {
			continue
		}
		byAudio, ok := mappingsByTrade[trade.ID]
		if !ok {
			continue
		}
		idx, ok := byAudio[trade.AudioFileName]
		if !ok {
			continue
		}
		mapping := &snap.Mappings[idx]

		flags := e.evaluate(snap, trade, call)
		delta := flagDelta{
			script:   flags.Script && !mapping.IsScript,
			price:    flags.Price && !mapping.IsPrice,
			quantity: flags.Quantity && !mapping.IsQuantity,
		}
		if delta != (flagDelta{}) {
			flagGroups[delta] = append(flagGroups[delta], mapping.ID)
		}

		merged := Flags{
			Script:   mapping.IsScript || flags.Script,
			Price:    mapping.IsPrice || flags.Price,
			Quantity: mapping.IsQuantity || flags.Quantity,
		}
		pre := strings.HasPrefix(trade.VoiceRecordingConfirmations, TagPreTradeFound)
		tag1, tag2, tag3 := Classify(pre, merged)
		label := Label(tag1, tag2, tag3)
		if label != trade.VoiceRecordingConfirmations {
			labelGroups[label] = append(labelGroups[label], trade.ID)
		}
	}

	for delta, ids := range flagGroups {
		if err := e.db.BulkSetMappingFlags(ids, delta.columns()); err != nil {
			return fmt.Errorf("bulk flag update: %w", err)
		}
		logger.Info().Int("rows", len(ids)).
			Bool("script", delta.script).Bool("price", delta.price).Bool("quantity", delta.quantity).
			Msg("flipped mapping flags")
	}
	for label, ids := range labelGroups {
		if err := e.db.BulkSetTradeConfirmations(ids, label); err != nil {
			return fmt.Errorf("bulk label update: %w", err)
		}
		logger.Info().Int("rows", len(ids)).Str("label", label).Msg("rewrote trade confirmations")
	}

	return nil
}
