// Package normalize turns raw tradebook rows into validated, time-ordered trades.
package normalize

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"fno-ledger/internal/calendar"
	apperrors "fno-ledger/internal/errors"
	"fno-ledger/internal/logging"
	"fno-ledger/internal/models"
	"fno-ledger/internal/symbol"
)

// ExpiryRule resolves the expiry day of monthly contracts.
type ExpiryRule string

const (
	LastBusinessDay ExpiryRule = "last_business_day"
	LastThursday    ExpiryRule = "last_thursday"
)

// Valid reports whether the rule is known.
func (r ExpiryRule) Valid() bool {
	return r == LastBusinessDay || r == LastThursday
}

// ExpirySource records which precedence level produced a trade's expiry.
type ExpirySource string

const (
	ExpiryFromSource   ExpirySource = "source"
	ExpiryFromSymbol   ExpirySource = "symbol"
	ExpiryFromMonthEnd ExpirySource = "month_end"
)

// DropReason classifies an excluded row.
type DropReason string

const (
	DropParseFailure DropReason = "parse_failure"
	DropMissingField DropReason = "missing_field"
)

// Dropped describes one excluded row.
type Dropped struct {
	Row    int
	Symbol string
	Reason DropReason
	Err    error
}

// Report summarizes one normalization pass. No row leaves without being counted.
type Report struct {
	Total         int
	Accepted      int
	ParseFailures int
	MissingFields map[string]int // field -> rows dropped for it
	ExpirySources map[ExpirySource]int
	Dropped       []Dropped
}

// DroppedCount returns the number of excluded rows.
func (r Report) DroppedCount() int {
	return len(r.Dropped)
}

// tradeNamespace scopes trade ids generated by this package.
var tradeNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("fno-ledger/trade"))

var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"02-01-2006 15:04:05",
	"02-01-2006T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

var dateLayouts = []string{
	models.DateLayout,
	"02-01-2006",
	"02/01/2006",
	"2006/01/02",
	"02-Jan-2006",
}

// Normalizer validates raw rows against a business-day calendar.
type Normalizer struct {
	cal    *calendar.Calendar
	rule   ExpiryRule
	logger zerolog.Logger
}

// New creates a Normalizer. An unknown rule falls back to LastBusinessDay.
func New(cal *calendar.Calendar, rule ExpiryRule, logger zerolog.Logger) *Normalizer {
	if !rule.Valid() {
		rule = LastBusinessDay
	}
	return &Normalizer{cal: cal, rule: rule, logger: logging.WithStage(logger, "normalize")}
}

// Normalize coerces, validates and sorts rows. Rows are ordered by execution
// time; ties keep their input order.
func (n *Normalizer) Normalize(rows []models.RawTrade) ([]models.Trade, Report) {
	report := Report{
		Total:         len(rows),
		MissingFields: make(map[string]int),
		ExpirySources: make(map[ExpirySource]int),
	}

	trades := make([]models.Trade, 0, len(rows))
	occurrences := make(map[string]int)

	for i, raw := range rows {
		if raw.Row == 0 {
			raw.Row = i + 1
		}
		trade, source, err := n.normalizeRow(raw)
		if err != nil {
			n.drop(&report, raw, err)
			continue
		}
		trade.Seq = i

		identity := identityOf(trade)
		occurrences[identity]++
		trade.ID = tradeID(identity, occurrences[identity])

		report.ExpirySources[source]++
		trades = append(trades, trade)
	}

	sort.SliceStable(trades, func(i, j int) bool {
		return trades[i].ExecutionTime.Before(trades[j].ExecutionTime)
	})

	report.Accepted = len(trades)
	n.logger.Info().
		Int("total", report.Total).
		Int("accepted", report.Accepted).
		Int("parse_failures", report.ParseFailures).
		Int("dropped", report.DroppedCount()).
		Msg("Tradebook normalized")

	return trades, report
}

func (n *Normalizer) drop(report *Report, raw models.RawTrade, err error) {
	d := Dropped{Row: raw.Row, Symbol: raw.Symbol, Err: err}

	var mf *apperrors.MissingFieldError
	switch {
	case apperrors.Is(err, apperrors.ErrUnparsedSymbol):
		d.Reason = DropParseFailure
		report.ParseFailures++
	case apperrors.As(err, &mf):
		d.Reason = DropMissingField
		report.MissingFields[mf.Field]++
	default:
		d.Reason = DropMissingField
		report.MissingFields["unknown"]++
	}
	report.Dropped = append(report.Dropped, d)

	logging.LogDropped(n.logger, raw.Row, raw.Symbol, string(d.Reason), err)
}

func (n *Normalizer) normalizeRow(raw models.RawTrade) (models.Trade, ExpirySource, error) {
	sym := strings.ToUpper(strings.TrimSpace(raw.Symbol))
	if sym == "" {
		return models.Trade{}, "", apperrors.NewMissingFieldError(raw.Row, raw.Symbol, "symbol")
	}

	parsed, err := symbol.Parse(sym)
	if err != nil {
		return models.Trade{}, "", err
	}

	missing := func(field string) error {
		return apperrors.NewMissingFieldError(raw.Row, sym, field)
	}

	direction, ok := models.ParseDirection(raw.TradeType)
	if !ok {
		return models.Trade{}, "", missing("direction")
	}

	qty, ok := parseQuantity(raw.Quantity)
	if !ok {
		return models.Trade{}, "", missing("quantity")
	}

	price, err := decimal.NewFromString(strings.TrimSpace(raw.Price))
	if err != nil || price.IsNegative() {
		return models.Trade{}, "", missing("price")
	}

	loc := n.cal.Location()
	execTime, hasExec := parseTimestamp(raw.OrderExecutionTime, loc)
	tradeDate, hasDate := parseDate(raw.TradeDate)
	switch {
	case hasExec && !hasDate:
		tradeDate = models.DateOf(execTime, loc)
	case !hasExec && hasDate:
		execTime = time.Date(tradeDate.Year(), tradeDate.Month(), tradeDate.Day(), 0, 0, 0, 0, loc).UTC()
	case !hasExec && !hasDate:
		return models.Trade{}, "", missing("execution_time")
	}

	expiry, source, ok := n.resolveExpiry(raw, parsed)
	if !ok {
		return models.Trade{}, "", missing("expiry_date")
	}

	return models.Trade{
		Symbol:        sym,
		Underlying:    parsed.Underlying,
		Expiry:        expiry,
		Strike:        models.NewStrike(parsed.Strike),
		OptionType:    parsed.OptionType,
		Direction:     direction,
		Quantity:      qty,
		Price:         price,
		ExecutionTime: execTime,
		TradeDate:     tradeDate,
		Exchange:      models.Exchange(strings.ToUpper(strings.TrimSpace(raw.Exchange))),
		BrokerTradeID: strings.TrimSpace(raw.TradeID),
		OrderID:       strings.TrimSpace(raw.OrderID),
	}, source, nil
}

// resolveExpiry applies the precedence: source column, then the weekly
// symbol day, then the monthly rule.
func (n *Normalizer) resolveExpiry(raw models.RawTrade, p symbol.Parsed) (time.Time, ExpirySource, bool) {
	if d, ok := parseDate(raw.ExpiryDate); ok {
		return d, ExpiryFromSource, true
	}
	if p.Weekly() {
		d, ok := p.Expiry()
		return d, ExpiryFromSymbol, ok
	}
	if p.Year == 0 || p.Month < time.January || p.Month > time.December {
		return time.Time{}, "", false
	}
	if n.rule == LastThursday {
		return n.cal.LastThursdayOfMonth(p.Year, p.Month), ExpiryFromMonthEnd, true
	}
	return n.cal.LastBusinessDayOfMonth(p.Year, p.Month), ExpiryFromMonthEnd, true
}

// identityOf is the logical identity of a trade: symbol, execution date, quantity and price.
func identityOf(t models.Trade) string {
	return fmt.Sprintf("%s|%s|%d|%s", t.Symbol, models.FormatDate(t.TradeDate), t.Quantity, t.Price.String())
}

// tradeID derives a stable id from the identity and its occurrence number,
// so replaying the same log reproduces the same ids.
func tradeID(identity string, occurrence int) string {
	return uuid.NewSHA1(tradeNamespace, []byte(identity+"#"+strconv.Itoa(occurrence))).String()
}

// parseQuantity accepts positive integers, including "75.0" style exports.
func parseQuantity(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if q, err := strconv.Atoi(s); err == nil {
		return q, q > 0
	}
	d, err := decimal.NewFromString(s)
	if err != nil || !d.IsInteger() || !d.IsPositive() {
		return 0, false
	}
	return int(d.IntPart()), true
}

func parseTimestamp(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return models.DateOf(t, nil), true
		}
	}
	return time.Time{}, false
}
