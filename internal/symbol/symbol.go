// Package symbol parses NSE option trading symbols.
//
// Two grammars are recognized:
//
//	monthly  <UNDERLYING><YY><MON><STRIKE><CE|PE>           NIFTY24APR22300CE
//	weekly   <UNDERLYING><YY><M><DD><STRIKE><CE|PE>         NIFTY2450522650PE
//
// where M is 1-9 for Jan-Sep or O/N/D for Oct-Dec. The monthly grammar is
// tried first; a symbol must match a grammar in full.
package symbol

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	apperrors "fno-ledger/internal/errors"
	"fno-ledger/internal/models"
)

var (
	monthlyPattern = regexp.MustCompile(`^([A-Z][A-Z&-]*)(\d{2})(JAN|FEB|MAR|APR|MAY|JUN|JUL|AUG|SEP|OCT|NOV|DEC)(\d+)(CE|PE)$`)
	weeklyPattern  = regexp.MustCompile(`^([A-Z][A-Z&-]*)(\d{2})([1-9OND])(\d{2})(\d+)(CE|PE)$`)
)

var monthCodes = map[string]time.Month{
	"JAN": time.January, "FEB": time.February, "MAR": time.March,
	"APR": time.April, "MAY": time.May, "JUN": time.June,
	"JUL": time.July, "AUG": time.August, "SEP": time.September,
	"OCT": time.October, "NOV": time.November, "DEC": time.December,
	"O": time.October, "N": time.November, "D": time.December,
}

// Parsed holds the fields extracted from a symbol.
// Day is 0 for monthly contracts, whose expiry day the caller resolves.
type Parsed struct {
	Underlying string
	Year       int
	Month      time.Month
	Day        int
	Strike     int
	OptionType models.OptionType
}

// Weekly reports whether the symbol carried an explicit expiry day.
func (p Parsed) Weekly() bool {
	return p.Day != 0
}

// Expiry returns the explicit expiry date of a weekly contract.
// It reports false for monthly contracts and for impossible dates such as 31 Feb.
func (p Parsed) Expiry() (time.Time, bool) {
	if !p.Weekly() {
		return time.Time{}, false
	}
	d := models.Date(p.Year, p.Month, p.Day)
	if d.Month() != p.Month || d.Day() != p.Day {
		return time.Time{}, false
	}
	return d, true
}

// Parse extracts contract fields from an option symbol. A symbol that matches
// neither grammar returns a zero Parsed and a *errors.ParseError.
func Parse(symbol string) (Parsed, error) {
	s := strings.ToUpper(strings.TrimSpace(symbol))

	if m := monthlyPattern.FindStringSubmatch(s); m != nil {
		strike, err := strconv.Atoi(m[4])
		if err != nil {
			return Parsed{}, apperrors.NewParseError(symbol)
		}
		return Parsed{
			Underlying: m[1],
			Year:       2000 + atoi(m[2]),
			Month:      monthCodes[m[3]],
			Strike:     strike,
			OptionType: models.OptionType(m[5]),
		}, nil
	}

	if m := weeklyPattern.FindStringSubmatch(s); m != nil {
		strike, err := strconv.Atoi(m[5])
		if err != nil {
			return Parsed{}, apperrors.NewParseError(symbol)
		}
		month, ok := monthCodes[m[3]]
		if !ok {
			month = time.Month(atoi(m[3]))
		}
		return Parsed{
			Underlying: m[1],
			Year:       2000 + atoi(m[2]),
			Month:      month,
			Day:        atoi(m[4]),
			Strike:     strike,
			OptionType: models.OptionType(m[6]),
		}, nil
	}

	return Parsed{}, apperrors.NewParseError(symbol)
}

// atoi converts a string the patterns already restricted to digits.
func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
