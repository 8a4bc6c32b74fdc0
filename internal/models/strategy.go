package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// StrategyType names a classified options structure.
type StrategyType string

const (
	IronCondor     StrategyType = "Iron Condor"
	BullCallSpread StrategyType = "Bull Call Spread"
	BearCallSpread StrategyType = "Bear Call Spread"
	BullPutSpread  StrategyType = "Bull Put Spread"
	BearPutSpread  StrategyType = "Bear Put Spread"
	Straddle       StrategyType = "Straddle"
	Strangle       StrategyType = "Strangle"
	NakedCallBuy   StrategyType = "Naked Call Buy"
	NakedCallSell  StrategyType = "Naked Call Sell"
	NakedPutBuy    StrategyType = "Naked Put Buy"
	NakedPutSell   StrategyType = "Naked Put Sell"
	CalendarSpread StrategyType = "Calendar Spread"
)

// StrategyTypes lists every classified type.
var StrategyTypes = []StrategyType{
	IronCondor, BullCallSpread, BearCallSpread, BullPutSpread, BearPutSpread,
	Straddle, Strangle, NakedCallBuy, NakedCallSell, NakedPutBuy, NakedPutSell,
	CalendarSpread,
}

// ParseStrategyType accepts either the display name or the code of a type,
// ignoring case.
func ParseStrategyType(s string) (StrategyType, bool) {
	s = strings.ReplaceAll(strings.TrimSpace(s), " ", "")
	for _, t := range StrategyTypes {
		if strings.EqualFold(t.Code(), s) {
			return t, true
		}
	}
	return "", false
}

// Code returns the type without spaces, for ids.
func (t StrategyType) Code() string {
	return strings.ReplaceAll(string(t), " ", "")
}

// Leg is one contract inside a strategy. Expiry is set only for calendar legs.
type Leg struct {
	Strike     int
	OptionType OptionType
	Quantity   int
	Expiry     time.Time
}

// StrategyRecord is one classified structure on one day.
type StrategyRecord struct {
	ID         string
	Date       time.Time
	Underlying string
	Expiries   []time.Time
	Type       StrategyType
	Legs       []Leg
}

// ExpiryLabel joins the expiries with "|".
func (r StrategyRecord) ExpiryLabel() string {
	parts := make([]string, len(r.Expiries))
	for i, e := range r.Expiries {
		parts[i] = FormatDate(e)
	}
	return strings.Join(parts, "|")
}

// PnLKind tells whether a pnl record comes from a closing fill or an expiry.
type PnLKind string

const (
	PnLClose  PnLKind = "CLOSE"
	PnLExpiry PnLKind = "EXPIRY"
)

// PnLRecord is realized pnl for one matched quantity.
type PnLRecord struct {
	Date         time.Time
	Key          ContractKey
	Kind         PnLKind
	EntryTradeID string
	ExitTradeID  string // empty for expiry settlement
	Quantity     int
	EntryPrice   decimal.Decimal
	ExitPrice    decimal.Decimal
	Realized     decimal.Decimal
}

// StrategyPnL is the pnl booked by one strategy on its day.
type StrategyPnL struct {
	Date       time.Time
	StrategyID string
	Type       StrategyType
	Underlying string
	Legs       []Leg
	PnLBooked  decimal.Decimal
}
