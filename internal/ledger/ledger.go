// Package ledger implements the FIFO lot ledger: per contract, an ordered
// sequence of lots that trades open and close in time order.
package ledger

import (
	"sort"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"fno-ledger/internal/logging"
	"fno-ledger/internal/models"
)

// Classification tags what a trade did to its contract's lots.
type Classification string

const (
	Entry         Classification = "Entry"
	Exit          Classification = "Exit"
	PartialExit   Classification = "Partial Exit"
	UnmatchedExit Classification = "Unmatched Exit"
)

// IsExit reports whether the trade was routed to the closing path.
func (c Classification) IsExit() bool {
	return c == Exit || c == PartialExit || c == UnmatchedExit
}

// LotRef points at one lot touched by a trade and the quantity involved.
type LotRef struct {
	Key models.ContractKey
	Seq int
	Qty int
}

// Application is the result of applying one trade.
type Application struct {
	TradeID        string
	Key            models.ContractKey
	Classification Classification
	MatchedQty     int      // quantity that closed existing lots
	OpenedQty      int      // quantity that opened a new lot
	Closed         []LotRef // lots closed, oldest first
	Opened         *LotRef
	Flipped        bool // an exit whose remainder opened a lot
}

type keyLots struct {
	key  models.ContractKey
	lots []*models.Lot
}

// State owns every lot of a replay. It is not safe for concurrent use.
type State struct {
	byKey map[string]*keyLots
}

// NewState returns an empty ledger.
func NewState() *State {
	return &State{byKey: make(map[string]*keyLots)}
}

// Apply routes one trade through the ledger.
//
// A trade is an entry when its contract has no lots or when the most recent
// lot points the same way. Otherwise it closes opposite open lots oldest
// first; whatever it cannot close opens a new lot in its own direction.
func (s *State) Apply(t models.Trade) Application {
	key := t.Key()
	kl := s.byKey[key.String()]
	if kl == nil {
		kl = &keyLots{key: key}
		s.byKey[key.String()] = kl
	}

	side := models.SideOf(t.SignedQty())
	app := Application{TradeID: t.ID, Key: key}

	if len(kl.lots) == 0 || kl.lots[len(kl.lots)-1].Direction == side {
		ref := kl.open(t, t.Quantity, false)
		app.Classification = Entry
		app.OpenedQty = t.Quantity
		app.Opened = &ref
		return app
	}

	remaining := t.Quantity
	for _, lot := range kl.lots {
		if remaining == 0 {
			break
		}
		if lot.Direction == side || !lot.IsOpen() {
			continue
		}
		n := min(remaining, lot.RemainingQty())
		closeDate := t.TradeDate
		lot.CloseQty += n
		lot.CloseDate = &closeDate
		lot.ClosePrice = decimal.NewNullDecimal(t.Price)
		lot.CloseValue = lot.CloseValue.Add(t.Price.Mul(decimal.NewFromInt(int64(n))))
		lot.CloseTradeIDs = append(lot.CloseTradeIDs, t.ID)
		remaining -= n
		app.Closed = append(app.Closed, LotRef{Key: key, Seq: lot.Seq, Qty: n})
	}
	app.MatchedQty = t.Quantity - remaining

	switch {
	case app.MatchedQty == 0:
		app.Classification = UnmatchedExit
	case remaining == 0:
		app.Classification = Exit
	default:
		app.Classification = PartialExit
	}

	if remaining > 0 {
		ref := kl.open(t, remaining, true)
		app.OpenedQty = remaining
		app.Opened = &ref
		app.Flipped = true
	}
	return app
}

func (kl *keyLots) open(t models.Trade, qty int, flipped bool) LotRef {
	lot := &models.Lot{
		Key:         kl.key,
		Seq:         len(kl.lots),
		Direction:   models.SideOf(t.SignedQty()),
		OpenQty:     qty,
		OpenDate:    t.TradeDate,
		OpenPrice:   t.Price,
		OpenTradeID: t.ID,
		Flipped:     flipped,
	}
	kl.lots = append(kl.lots, lot)
	return LotRef{Key: kl.key, Seq: lot.Seq, Qty: qty}
}

// Keys returns every contract seen, in ContractKey order.
func (s *State) Keys() []models.ContractKey {
	keys := make([]models.ContractKey, 0, len(s.byKey))
	for _, kl := range s.byKey {
		keys = append(keys, kl.key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
	return keys
}

// Lots returns copies of the lots for key, oldest first.
func (s *State) Lots(key models.ContractKey) []models.Lot {
	kl := s.byKey[key.String()]
	if kl == nil {
		return nil
	}
	out := make([]models.Lot, len(kl.lots))
	for i, lot := range kl.lots {
		out[i] = copyLot(lot)
	}
	return out
}

// AllLots returns copies of every lot, ordered by contract then sequence.
func (s *State) AllLots() []models.Lot {
	var out []models.Lot
	for _, key := range s.Keys() {
		out = append(out, s.Lots(key)...)
	}
	return out
}

// Totals returns the opened and closed quantity summed over the lots of key.
func (s *State) Totals(key models.ContractKey) (opened, closed int) {
	kl := s.byKey[key.String()]
	if kl == nil {
		return 0, 0
	}
	for _, lot := range kl.lots {
		opened += lot.OpenQty
		closed += lot.CloseQty
	}
	return opened, closed
}

func copyLot(l *models.Lot) models.Lot {
	c := *l
	if l.CloseDate != nil {
		d := *l.CloseDate
		c.CloseDate = &d
	}
	c.CloseTradeIDs = append([]string(nil), l.CloseTradeIDs...)
	return c
}

// Summary counts applications by classification.
type Summary struct {
	Entries        int
	Exits          int
	PartialExits   int
	UnmatchedExits int
	Flips          int
}

// Add counts one application.
func (s *Summary) Add(a Application) {
	switch a.Classification {
	case Entry:
		s.Entries++
	case Exit:
		s.Exits++
	case PartialExit:
		s.PartialExits++
	case UnmatchedExit:
		s.UnmatchedExits++
	}
	if a.Flipped {
		s.Flips++
	}
}

// Replay applies time-ordered trades to a fresh state. Flips are logged for audit.
func Replay(trades []models.Trade, logger zerolog.Logger) (*State, []Application, Summary) {
	logger = logging.WithStage(logger, "ledger")
	state := NewState()
	apps := make([]Application, 0, len(trades))
	var summary Summary

	for _, t := range trades {
		app := state.Apply(t)
		if app.Flipped {
			logging.LogFlip(logger, app.Key.String(), app.TradeID, app.MatchedQty, app.OpenedQty)
		}
		summary.Add(app)
		apps = append(apps, app)
	}

	logger.Info().
		Int("entries", summary.Entries).
		Int("exits", summary.Exits).
		Int("partial_exits", summary.PartialExits).
		Int("unmatched_exits", summary.UnmatchedExits).
		Int("flips", summary.Flips).
		Msg("Ledger replayed")

	return state, apps, summary
}
