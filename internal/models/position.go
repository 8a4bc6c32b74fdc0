package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Lot is a quantity of one contract opened at one price.
type Lot struct {
	Key           ContractKey
	Seq           int
	Direction     PositionSide
	OpenQty       int
	CloseQty      int
	OpenDate      time.Time
	OpenPrice     decimal.Decimal
	CloseDate     *time.Time
	ClosePrice    decimal.NullDecimal // last fill that touched the lot
	CloseValue    decimal.Decimal     // sum of closed qty * fill price
	OpenTradeID   string
	CloseTradeIDs []string
	Flipped       bool // opened by the remainder of an over-closing trade
}

// RemainingQty is the still-open quantity.
func (l Lot) RemainingQty() int {
	return l.OpenQty - l.CloseQty
}

// IsOpen reports whether any quantity is still open.
func (l Lot) IsOpen() bool {
	return l.CloseQty < l.OpenQty
}

// SignedQty is OpenQty signed by direction.
func (l Lot) SignedQty() int {
	return l.Direction.Sign() * l.OpenQty
}

// PositionStatus is the daily status of a lot.
type PositionStatus string

const (
	StatusActive  PositionStatus = "ACTIVE"
	StatusClosed  PositionStatus = "CLOSED"
	StatusExpired PositionStatus = "EXPIRED"
)

// PositionSnapshot is one business day of one lot's open exposure.
type PositionSnapshot struct {
	Date          time.Time
	Key           ContractKey
	Quantity      int // positive long, negative short
	Side          PositionSide
	AvgEntryPrice decimal.Decimal
	Status        PositionStatus
	LotSeq        int
	ClosedQty     int
	OpenDate      time.Time
}
