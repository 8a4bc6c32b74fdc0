package utils

import (
	"regexp"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

var indianGrouping = regexp.MustCompile(`^(\d{1,2},)*\d{1,3}$`)

// For any amount in paise, FormatIndianCurrency carries the rupee sign, two
// decimals and lakh/crore grouping, and parses back to the same amount.
func TestIndianCurrencyFormattingProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("uses Indian grouping with two decimals", prop.ForAll(
		func(paise int64) bool {
			amount := decimal.New(paise, -2)
			formatted := FormatIndianCurrency(amount)

			prefix := "₹"
			if paise < 0 {
				prefix = "-₹"
			}
			if !strings.HasPrefix(formatted, prefix) {
				t.Logf("expected %q prefix for %s, got %s", prefix, amount, formatted)
				return false
			}

			parts := strings.Split(strings.TrimPrefix(formatted, prefix), ".")
			if len(parts) != 2 || len(parts[1]) != 2 {
				t.Logf("expected two decimals for %s, got %s", amount, formatted)
				return false
			}
			if !indianGrouping.MatchString(parts[0]) {
				t.Logf("invalid grouping for %s: %s", amount, formatted)
				return false
			}
			return true
		},
		gen.Int64Range(-1e14, 1e14),
	))

	properties.Property("preserves value", prop.ForAll(
		func(paise int64) bool {
			amount := decimal.New(paise, -2)
			formatted := FormatIndianCurrency(amount)

			plain := strings.ReplaceAll(strings.Replace(formatted, "₹", "", 1), ",", "")
			parsed, err := decimal.NewFromString(plain)
			if err != nil {
				t.Logf("cannot parse %s: %v", formatted, err)
				return false
			}
			return parsed.Equal(amount)
		},
		gen.Int64Range(-1e14, 1e14),
	))

	properties.Property("FormatPnL signs gains only", prop.ForAll(
		func(paise int64) bool {
			amount := decimal.New(paise, -2)
			formatted := FormatPnL(amount)
			switch {
			case paise > 0:
				return strings.HasPrefix(formatted, "+₹")
			case paise < 0:
				return strings.HasPrefix(formatted, "-₹")
			}
			return formatted == "₹0.00"
		},
		gen.Int64Range(-1e9, 1e9),
	))

	properties.TestingRun(t)
}

func TestIndianNumberFormatExamples(t *testing.T) {
	testCases := []struct {
		amount   string
		expected string
	}{
		{"0", "₹0.00"},
		{"1", "₹1.00"},
		{"100", "₹100.00"},
		{"1000", "₹1,000.00"},
		{"10000", "₹10,000.00"},
		{"100000", "₹1,00,000.00"},
		{"1000000", "₹10,00,000.00"},
		{"10000000", "₹1,00,00,000.00"},
		{"-1234.56", "-₹1,234.56"},
		{"12345678.9", "₹1,23,45,678.90"},
		{"2437.5", "₹2,437.50"},
	}

	for _, tc := range testCases {
		t.Run(tc.expected, func(t *testing.T) {
			assert.Equal(t, tc.expected, FormatIndianCurrency(decimal.RequireFromString(tc.amount)))
		})
	}
}

func TestFormatPnLExamples(t *testing.T) {
	assert.Equal(t, "+₹1,500.00", FormatPnL(decimal.NewFromInt(1500)))
	assert.Equal(t, "-₹375.25", FormatPnL(decimal.RequireFromString("-375.25")))
	assert.Equal(t, "₹0.00", FormatPnL(decimal.Zero))
}
