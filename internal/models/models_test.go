package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseStrike(t *testing.T) {
	tests := []struct {
		in   string
		want Strike
	}{
		{"22300", NewStrike(22300)},
		{" 22300 ", NewStrike(22300)},
		{"22300.0", NewStrike(22300)},
		{"22300.5", Strike{}},
		{"", Strike{}},
		{"abc", Strike{}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseStrike(tt.in))
		})
	}
}

func TestParseDirection(t *testing.T) {
	d, ok := ParseDirection(" buy ")
	assert.True(t, ok)
	assert.Equal(t, Buy, d)

	d, ok = ParseDirection("S")
	assert.True(t, ok)
	assert.Equal(t, Sell, d)

	_, ok = ParseDirection("hold")
	assert.False(t, ok)
}

func TestParseStrategyType(t *testing.T) {
	for _, typ := range StrategyTypes {
		got, ok := ParseStrategyType(string(typ))
		assert.True(t, ok, typ)
		assert.Equal(t, typ, got)

		got, ok = ParseStrategyType(typ.Code())
		assert.True(t, ok, typ)
		assert.Equal(t, typ, got)
	}

	got, ok := ParseStrategyType("iron condor")
	assert.True(t, ok)
	assert.Equal(t, IronCondor, got)

	_, ok = ParseStrategyType("Butterfly")
	assert.False(t, ok)
}

func TestContractKeyLess(t *testing.T) {
	a := ContractKey{Underlying: "NIFTY", Expiry: Date(2024, 4, 18), Strike: NewStrike(22300), OptionType: Call}
	b := a
	b.Strike = NewStrike(22500)
	assert.True(t, a.Less(b))
	assert.False(t, b.Less(a))

	put := a
	put.OptionType = Put
	assert.True(t, a.Less(put), "CE sorts before PE")

	noStrike := a
	noStrike.Strike = Strike{}
	assert.True(t, noStrike.Less(a))
}

func TestExpiryLabel(t *testing.T) {
	r := StrategyRecord{Expiries: []time.Time{Date(2024, 4, 18), Date(2024, 4, 25)}}
	assert.Equal(t, "2024-04-18|2024-04-25", r.ExpiryLabel())
}
