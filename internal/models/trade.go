package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade is one normalized tradebook fill. Trades are never mutated after normalization.
type Trade struct {
	ID            string
	Symbol        string
	Underlying    string
	Expiry        time.Time
	Strike        Strike
	OptionType    OptionType
	Direction     Direction
	Quantity      int
	Price         decimal.Decimal
	ExecutionTime time.Time // UTC
	TradeDate     time.Time // civil date
	Exchange      Exchange
	BrokerTradeID string
	OrderID       string
	Seq           int // position in the raw input
}

// Key returns the contract the trade belongs to.
func (t Trade) Key() ContractKey {
	return ContractKey{
		Underlying: t.Underlying,
		Expiry:     t.Expiry,
		Strike:     t.Strike,
		OptionType: t.OptionType,
	}
}

// SignedQty is +quantity for buys and -quantity for sells.
func (t Trade) SignedQty() int {
	return t.Direction.Sign() * t.Quantity
}

