package matching

import (
	"sort"
	"strings"
	"time"

	"github.com/auditflow/callpipe/internal/types"
)

// Snapshot is the in-memory view of one batch's call, trade, conversation
// and reference tables. It is populated once per matching run and read-only
// thereafter; one day's volume is bounded enough to hold whole.
type Snapshot struct {
	BatchID       uint
	Trades        []types.TradeMetadata
	Calls         []types.Call
	Conversations map[uint][]types.CallConversation // keyed by call ID
	Mappings      []types.TradeAudioMapping
	Lots          map[string]types.LotQuantityMapping // keyed by upper-cased symbol

	callsByAudio map[string]*types.Call
	orderTotals  map[string]float64
}

func newSnapshot(batchID uint) *Snapshot {
	return &Snapshot{
		BatchID:       batchID,
		Conversations: make(map[uint][]types.CallConversation),
		Lots:          make(map[string]types.LotQuantityMapping),
		callsByAudio:  make(map[string]*types.Call),
		orderTotals:   make(map[string]float64),
	}
}

func (s *Snapshot) index() {
	for i := range s.Calls {
		s.callsByAudio[s.Calls[i].AudioName] = &s.Calls[i]
	}
	for _, t := range s.Trades {
		if t.OrderID != "" {
			s.orderTotals[t.OrderID] += t.TradeQuantity
		}
	}
}

// CallByAudio returns the batch call carrying the given audio file name.
func (s *Snapshot) CallByAudio(audioName string) *types.Call {
	return s.callsByAudio[audioName]
}

// OrderTotal is the combined quantity of every trade leg sharing an order.
func (s *Snapshot) OrderTotal(orderID string) float64 {
	return s.orderTotals[orderID]
}

// LotMultiplier returns the lot-size multiplier for a symbol, or zero when
// the symbol is not in the reference table.
func (s *Snapshot) LotMultiplier(symbol string) float64 {
	if m, ok := s.Lots[normalizeSymbol(symbol)]; ok {
		return m.Quantity
	}
	return 0
}

func normalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

func normalizeLanguage(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// joinKey decides whether a call belongs to the same counterparty as a
// trade. The tiers differ only in which identifier they join on.
type joinKey func(t *types.TradeMetadata, c *types.Call) bool

// joinByMobile joins on the trade's AL number, falling back to its
// registration number when the AL number is absent.
func joinByMobile(t *types.TradeMetadata, c *types.Call) bool {
	key := t.ALNumber
	if key == "" {
		key = t.RegNumber
	}
	return key != "" && c.ClientMobileNumber == key
}

// joinByClientCode joins on the client code.
func joinByClientCode(t *types.TradeMetadata, c *types.Call) bool {
	return t.ClientCode != "" && c.ClientCode == t.ClientCode
}

// candidate is one call under consideration for a trade, flagged pre-trade
// when the call precedes (or contains) the order placement.
type candidate struct {
	call *types.Call
	pre  bool
}

// candidates returns the trade-date calls joined by key, in evaluation
// priority order: calls whose [start,end] window contains the order time,
// then calls ending before the order (nearest ending first), then calls
// ending after it (nearest ending first). The first group is pre-trade; so
// is the second; the last is post-trade.
func (s *Snapshot) candidates(t *types.TradeMetadata, key joinKey) []candidate {
	order := t.OrderPlacedTime

	var containing, before, after []*types.Call
	for i := range s.Calls {
		c := &s.Calls[i]
		if !key(t, c) || c.CallStartTime == nil || c.CallEndTime == nil {
			continue
		}
		if !sameDay(*c.CallStartTime, t.TradeDate) {
			continue
		}
		switch {
		case !c.CallStartTime.After(order) && !c.CallEndTime.Before(order):
			containing = append(containing, c)
		case c.CallEndTime.Before(order):
			before = append(before, c)
		default:
			after = append(after, c)
		}
	}

	sort.Slice(containing, func(i, j int) bool {
		return containing[i].CallStartTime.Before(*containing[j].CallStartTime)
	})
	sort.Slice(before, func(i, j int) bool {
		return before[i].CallEndTime.After(*before[j].CallEndTime)
	})
	sort.Slice(after, func(i, j int) bool {
		return after[i].CallEndTime.Before(*after[j].CallEndTime)
	})

	out := make([]candidate, 0, len(containing)+len(before)+len(after))
	for _, c := range containing {
		out = append(out, candidate{call: c, pre: true})
	}
	for _, c := range before {
		out = append(out, candidate{call: c, pre: true})
	}
	for _, c := range after {
		out = append(out, candidate{call: c, pre: false})
	}
	return out
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
