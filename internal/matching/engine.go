// Package matching links structured trade records to the call recordings
// that evidence them. The engine is deterministic: for each trade it walks
// a tiered candidate search, scores every candidate on script, price and
// quantity agreement, and persists the strongest classification.
package matching

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/auditflow/callpipe/internal/types"
)

// Engine runs the trade-to-call matching for one batch at a time.
type Engine struct {
	db        *Database
	supported map[string]bool
	logger    zerolog.Logger
}

// NewEngine creates a matching engine. supported is the set of detected
// languages the downstream audit can consume.
func NewEngine(gormDB *gorm.DB, supported map[string]bool) *Engine {
	return &Engine{
		db:        NewDatabase(gormDB),
		supported: supported,
		logger:    log.With().Str("component", "matching_engine").Logger(),
	}
}

// Outcome is the final classification of one trade.
type Outcome struct {
	Trade *types.TradeMetadata
	Call  *types.Call
	Pre   bool
	Flags Flags
	Tag1  string
	Tag2  string
	Tag3  string
}

// Label returns the human-readable voiceRecordingConfirmations string.
func (o Outcome) Label() string {
	return Label(o.Tag1, o.Tag2, o.Tag3)
}

// Run matches every trade of the batch.
func (e *Engine) Run(ctx context.Context, batchID uint) error {
	return e.RunRange(ctx, batchID, 0, -1)
}

// RunRange matches the trades with index in [from, to) of the batch's trade
// list. A negative to means "to the end". The bounded slice form backs the
// horizontal fan-out endpoint.
func (e *Engine) RunRange(ctx context.Context, batchID uint, from, to int) error {
	snap, err := e.db.LoadSnapshot(batchID)
	if err != nil {
		return fmt.Errorf("loading batch snapshot: %w", err)
	}

	if from < 0 {
		from = 0
	}
	if to < 0 || to > len(snap.Trades) {
		to = len(snap.Trades)
	}

	logger := e.logger.With().Uint("batch_id", batchID).Logger()
	logger.Info().Int("from", from).Int("to", to).Int("total", len(snap.Trades)).Msg("matching trades")

	for i := from; i < to; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		trade := &snap.Trades[i]
		outcome, rows := e.matchTrade(snap, trade)

		if err := e.db.SaveMappings(rows); err != nil {
			logger.Error().Err(err).Str("order_id", trade.OrderID).Msg("failed to save mapping rows")
			continue
		}
		audio := ""
		if outcome.Call != nil {
			audio = outcome.Call.AudioName
		}
		if err := e.db.UpdateTradeConfirmation(trade.ID, outcome.Label(), audio); err != nil {
			logger.Error().Err(err).Str("order_id", trade.OrderID).Msg("failed to update trade confirmation")
			continue
		}
		logger.Debug().
			Str("order_id", trade.OrderID).
			Str("tag", outcome.Label()).
			Str("audio", audio).
			Msg("trade classified")
	}

	return nil
}

// matchTrade classifies one trade against the snapshot and returns the
// winning outcome plus one mapping row per scored candidate.
func (e *Engine) matchTrade(snap *Snapshot, trade *types.TradeMetadata) (Outcome, []types.TradeAudioMapping) {
	cands := snap.candidates(trade, joinByMobile)
	if len(cands) == 0 {
		cands = snap.candidates(trade, joinByClientCode)
	}
	if len(cands) == 0 {
		return Outcome{Trade: trade, Tag1: TagNoCallRecordFound}, nil
	}

	var rows []types.TradeAudioMapping
	best := Outcome{Trade: trade}
	bestCount := -1
	sawSupported := false

	for _, cand := range cands {
		if !e.languageSupported(cand.call) {
			continue
		}
		sawSupported = true

		flags := e.evaluate(snap, trade, cand.call)
		tag1, tag2, tag3 := Classify(cand.pre, flags)

		rows = append(rows, types.TradeAudioMapping{
			MappingID:       uuid.New().String(),
			TradeMetadataID: trade.ID,
			AudioFileName:   cand.call.AudioName,
			IsScript:        flags.Script,
			IsPrice:         flags.Price,
			IsQuantity:      flags.Quantity,
			BatchID:         snap.BatchID,
		})

		// Highest count of true flags wins; ties go to the first found.
		if flags.Count() > bestCount {
			bestCount = flags.Count()
			best = Outcome{
				Trade: trade, Call: cand.call, Pre: cand.pre,
				Flags: flags, Tag1: tag1, Tag2: tag2, Tag3: tag3,
			}
		}
		if flags.Perfect() {
			break
		}
	}

	if !sawSupported {
		// Every candidate call is in a language the pipeline cannot audit.
		c := cands[0]
		return Outcome{Trade: trade, Call: c.call, Pre: c.pre, Tag1: TagUnsupportedLanguage}, rows
	}

	// Stamp the winning row with the final label.
	for i := range rows {
		if best.Call != nil && rows[i].AudioFileName == best.Call.AudioName {
			rows[i].VoiceRecordingConfirmations = best.Label()
			break
		}
	}
	return best, rows
}

// evaluate scores one candidate call against the trade on the three
// confirmation dimensions.
func (e *Engine) evaluate(snap *Snapshot, trade *types.TradeMetadata, call *types.Call) Flags {
	mentions := snap.Conversations[call.ID]
	relevant, scriptMatched := e.relevantMentions(snap, trade, mentions)
	if len(relevant) == 0 {
		return Flags{}
	}

	var lotQty, priceSum float64
	strikeHit := false
	for _, m := range relevant {
		lotQty += m.LotQuantity
		priceSum += m.TradePrice
		if trade.StrikePrice > 0 && m.StrikePrice == trade.StrikePrice {
			strikeHit = true
		}
	}
	avgPrice := priceSum / float64(len(relevant))

	return Flags{
		Script:   scriptMatched,
		Price:    strikeHit || PriceMatch(trade.TradePrice, avgPrice),
		Quantity: QuantityMatch(trade.TradeQuantity, lotQty, snap.OrderTotal(trade.OrderID), snap.LotMultiplier(trade.Symbol)),
	}
}

// relevantMentions filters the call's extracted mentions down to the ones
// referring to the trade's instrument. A call whose mentions all carry an
// empty script name is treated as single-instrument and aggregated whole,
// though it cannot confirm the script dimension.
func (e *Engine) relevantMentions(snap *Snapshot, trade *types.TradeMetadata, mentions []types.CallConversation) ([]types.CallConversation, bool) {
	if len(mentions) == 0 {
		return nil, false
	}

	allEmpty := true
	var matched []types.CallConversation
	for _, m := range mentions {
		if m.ScriptName != "" {
			allEmpty = false
		}
		if e.scriptRefersToTrade(snap, trade, m.ScriptName) {
			matched = append(matched, m)
		}
	}
	if len(matched) > 0 {
		return matched, true
	}
	if allEmpty {
		return mentions, false
	}
	return nil, false
}

// scriptRefersToTrade compares a conversation script name to the trade's
// symbol and scrip name, falling back to the static variant table when the
// direct comparison fails.
func (e *Engine) scriptRefersToTrade(snap *Snapshot, trade *types.TradeMetadata, scriptName string) bool {
	if scriptName == "" {
		return false
	}
	if ScriptMatch(trade.Symbol, scriptName) || ScriptMatch(trade.ScripName, scriptName) {
		return true
	}
	lot, ok := snap.Lots[normalizeSymbol(trade.Symbol)]
	if !ok {
		return false
	}
	for _, variant := range []string{lot.ScripName, lot.Variation1, lot.Variation2, lot.Variation3} {
		if variant != "" && ScriptMatch(variant, scriptName) {
			return true
		}
	}
	return false
}

func (e *Engine) languageSupported(call *types.Call) bool {
	if call.Status == types.CallUnsupportedLanguage {
		return false
	}
	if call.LanguageID == "" || len(e.supported) == 0 {
		return true
	}
	return e.supported[normalizeLanguage(call.LanguageID)]
}
