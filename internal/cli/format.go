package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"fno-ledger/internal/models"
	"fno-ledger/pkg/utils"
)

var (
	lakh  = decimal.NewFromInt(100000)
	crore = decimal.NewFromInt(10000000)
)

// FormatCompact formats an amount in lakhs or crores once it is large enough.
func FormatCompact(amount decimal.Decimal) string {
	abs := amount.Abs()
	switch {
	case abs.GreaterThanOrEqual(crore):
		return amount.Div(crore).StringFixed(2) + " Cr"
	case abs.GreaterThanOrEqual(lakh):
		return amount.Div(lakh).StringFixed(2) + " L"
	}
	return utils.FormatIndianCurrency(amount)
}

// FormatPrice formats a premium with two decimals.
func FormatPrice(price decimal.Decimal) string {
	return price.StringFixed(2)
}

// FormatDate formats a civil date; the zero time prints as "-".
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("02-Jan-2006")
}

// FormatStrike prints an invalid strike as "-".
func FormatStrike(s models.Strike) string {
	if !s.Valid {
		return "-"
	}
	return s.String()
}

// FormatQuantity formats a signed quantity with an explicit sign.
func FormatQuantity(qty int) string {
	if qty > 0 {
		return fmt.Sprintf("+%d", qty)
	}
	return fmt.Sprintf("%d", qty)
}

// FormatContract formats a contract as "NIFTY 25-Apr-2024 22300 CE".
func FormatContract(k models.ContractKey) string {
	return fmt.Sprintf("%s %s %s %s", k.Underlying, FormatDate(k.Expiry), FormatStrike(k.Strike), k.OptionType)
}

// FormatLeg formats one leg as "22300CE -50", with the expiry for calendar legs.
func FormatLeg(l models.Leg) string {
	s := fmt.Sprintf("%d%s %s", l.Strike, l.OptionType, FormatQuantity(l.Quantity))
	if !l.Expiry.IsZero() {
		s += " @" + l.Expiry.Format("02Jan")
	}
	return s
}

// FormatLegs joins legs with ", ".
func FormatLegs(legs []models.Leg) string {
	parts := make([]string, len(legs))
	for i, l := range legs {
		parts[i] = FormatLeg(l)
	}
	return strings.Join(parts, ", ")
}

// FormatDuration formats a duration in human-readable form.
func FormatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
}

// TruncateString truncates a string to max length with ellipsis.
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
