// Package models provides domain models for the tradebook ledger.
package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Exchange represents a stock exchange segment.
type Exchange string

const (
	NSE Exchange = "NSE"
	NFO Exchange = "NFO" // F&O
	BFO Exchange = "BFO" // BSE F&O
)

// Direction represents the side of a trade.
type Direction string

const (
	Buy  Direction = "BUY"
	Sell Direction = "SELL"
)

// ParseDirection maps broker spellings ("buy", "B", "SELL") to a Direction.
func ParseDirection(s string) (Direction, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BUY", "B":
		return Buy, true
	case "SELL", "S":
		return Sell, true
	}
	return "", false
}

// Sign returns +1 for Buy and -1 for Sell.
func (d Direction) Sign() int {
	if d == Sell {
		return -1
	}
	return 1
}

// OptionType is CE (call) or PE (put).
type OptionType string

const (
	Call OptionType = "CE"
	Put  OptionType = "PE"
)

// PositionSide is the direction of an open lot.
type PositionSide string

const (
	Long  PositionSide = "LONG"
	Short PositionSide = "SHORT"
)

// SideOf returns the lot side for a signed quantity.
func SideOf(signedQty int) PositionSide {
	if signedQty < 0 {
		return Short
	}
	return Long
}

// Sign returns +1 for Long and -1 for Short.
func (s PositionSide) Sign() int {
	if s == Short {
		return -1
	}
	return 1
}

// Strike is an integer strike price that may be absent.
type Strike struct {
	Value int
	Valid bool
}

// NewStrike returns a valid strike.
func NewStrike(v int) Strike {
	return Strike{Value: v, Valid: true}
}

// ParseStrike coerces "22300", "22300.0" or " 22300 " into a strike.
// Anything else yields an invalid strike.
func ParseStrike(s string) Strike {
	s = strings.TrimSpace(s)
	if s == "" {
		return Strike{}
	}
	if v, err := strconv.Atoi(s); err == nil {
		return NewStrike(v)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != float64(int(f)) {
		return Strike{}
	}
	return NewStrike(int(f))
}

func (s Strike) String() string {
	if !s.Valid {
		return ""
	}
	return strconv.Itoa(s.Value)
}

// ContractKey identifies one option contract.
type ContractKey struct {
	Underlying string
	Expiry     time.Time
	Strike     Strike
	OptionType OptionType
}

func (k ContractKey) String() string {
	return fmt.Sprintf("%s|%s|%s|%s", k.Underlying, FormatDate(k.Expiry), k.Strike, k.OptionType)
}

// Less orders keys by underlying, expiry, option type, then strike.
func (k ContractKey) Less(o ContractKey) bool {
	if k.Underlying != o.Underlying {
		return k.Underlying < o.Underlying
	}
	if !k.Expiry.Equal(o.Expiry) {
		return k.Expiry.Before(o.Expiry)
	}
	if k.OptionType != o.OptionType {
		return k.OptionType < o.OptionType
	}
	return LessStrike(k.Strike, o.Strike)
}

// LessStrike orders strikes ascending with invalid strikes first.
func LessStrike(a, b Strike) bool {
	if a.Valid != b.Valid {
		return !a.Valid
	}
	return a.Value < b.Value
}
