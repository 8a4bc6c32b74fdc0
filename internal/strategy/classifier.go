// Package strategy groups each day's open legs into named option structures.
package strategy

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/iter"

	"fno-ledger/internal/book"
	"fno-ledger/internal/logging"
	"fno-ledger/internal/models"
)

// Classifier turns daily position snapshots into strategy records.
type Classifier struct {
	workers int
	logger  zerolog.Logger
}

// New creates a Classifier that fans day groups out over up to workers goroutines.
func New(workers int, logger zerolog.Logger) *Classifier {
	if workers < 1 {
		workers = 1
	}
	return &Classifier{workers: workers, logger: logging.WithStage(logger, "strategy")}
}

// Classify returns the strategy records for every day in snapshots, ordered
// by day. Days are independent, so they are classified in parallel; the
// output order does not depend on scheduling.
func (c *Classifier) Classify(snapshots []models.PositionSnapshot) []models.StrategyRecord {
	days, groups := book.ByDate(snapshots)

	mapper := iter.Mapper[time.Time, []models.StrategyRecord]{MaxGoroutines: c.workers}
	perDay := mapper.Map(days, func(day *time.Time) []models.StrategyRecord {
		return ClassifyDay(*day, groups[*day])
	})

	var out []models.StrategyRecord
	for _, records := range perDay {
		out = append(out, records...)
	}

	c.logger.Info().
		Int("days", len(days)).
		Int("strategies", len(out)).
		Msg("Strategies classified")
	return out
}

// leg is one snapshot as seen by the matcher.
type leg struct {
	strike int
	typ    models.OptionType
	qty    int
	expiry time.Time
}

func (l leg) model() models.Leg {
	return models.Leg{Strike: l.strike, OptionType: l.typ, Quantity: l.qty}
}

type dayLeg struct {
	underlying string
	leg
}

type groupKey struct {
	underlying string
	expiry     time.Time
}

// ClassifyDay classifies the snapshots of a single day. Snapshots without a
// valid strike are skipped.
func ClassifyDay(day time.Time, snapshots []models.PositionSnapshot) []models.StrategyRecord {
	groups := make(map[groupKey][]leg)
	var keys []groupKey
	var all []dayLeg

	for _, s := range snapshots {
		if !s.Key.Strike.Valid {
			continue
		}
		gk := groupKey{underlying: s.Key.Underlying, expiry: s.Key.Expiry}
		if _, ok := groups[gk]; !ok {
			keys = append(keys, gk)
		}
		l := leg{strike: s.Key.Strike.Value, typ: s.Key.OptionType, qty: s.Quantity, expiry: s.Key.Expiry}
		groups[gk] = append(groups[gk], l)
		all = append(all, dayLeg{underlying: s.Key.Underlying, leg: l})
	}

	sort.Slice(keys, func(i, j int) bool {
		if keys[i].underlying != keys[j].underlying {
			return keys[i].underlying < keys[j].underlying
		}
		return keys[i].expiry.Before(keys[j].expiry)
	})

	var records []models.StrategyRecord
	for _, gk := range keys {
		legs := groups[gk]
		sort.SliceStable(legs, func(i, j int) bool {
			if legs[i].typ != legs[j].typ {
				return legs[i].typ < legs[j].typ
			}
			return legs[i].strike < legs[j].strike
		})
		g := &group{day: day, underlying: gk.underlying, expiry: gk.expiry, legs: legs, used: make([]bool, len(legs))}
		g.ironCondors()
		g.verticals()
		g.straddles()
		g.strangles()
		g.naked()
		records = append(records, g.records...)
	}

	cals := make(map[calendarKey][]time.Time)
	var calKeys []calendarKey
	for _, a := range all {
		ck := calendarKey{underlying: a.underlying, strike: a.strike, typ: a.typ, qty: a.qty}
		if _, ok := cals[ck]; !ok {
			calKeys = append(calKeys, ck)
		}
		if !containsDate(cals[ck], a.expiry) {
			cals[ck] = append(cals[ck], a.expiry)
		}
	}
	sort.Slice(calKeys, func(i, j int) bool { return calKeys[i].less(calKeys[j]) })
	for _, ck := range calKeys {
		if expiries := cals[ck]; len(expiries) > 1 {
			records = append(records, calendarSpread(day, ck, expiries))
		}
	}

	uniquifyIDs(records)
	return records
}

// group holds the legs of one (day, underlying, expiry). Passes run in
// priority order and each claims legs through used.
type group struct {
	day        time.Time
	underlying string
	expiry     time.Time
	legs       []leg
	used       []bool
	records    []models.StrategyRecord
}

func (g *group) emit(typ models.StrategyType, idxs ...int) {
	legs := make([]models.Leg, len(idxs))
	for i, ix := range idxs {
		g.used[ix] = true
		legs[i] = g.legs[ix].model()
	}
	g.records = append(g.records, models.StrategyRecord{
		ID:         strategyID(g.day, g.underlying, g.expiry, typ, legs),
		Date:       g.day,
		Underlying: g.underlying,
		Expiries:   []time.Time{g.expiry},
		Type:       typ,
		Legs:       legs,
	})
}

func (g *group) free(idxs ...int) bool {
	for _, ix := range idxs {
		if g.used[ix] {
			return false
		}
	}
	return true
}

// ironCondors searches every 4-leg subset, so its cost grows as O(n^4) in the
// legs of one underlying and expiry on one day. Real books hold a handful of
// legs per group; thousands would need a smarter search.
func (g *group) ironCondors() {
	n := len(g.legs)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			for k := j + 1; k < n; k++ {
				for l := k + 1; l < n; l++ {
					if !g.free(i, j, k, l) {
						continue
					}
					if isIronCondor(g.legs[i], g.legs[j], g.legs[k], g.legs[l]) {
						g.emit(models.IronCondor, i, j, k, l)
					}
				}
			}
		}
	}
}

func isIronCondor(subset ...leg) bool {
	var ce, pe []leg
	strikes := make(map[int]bool, 4)
	for _, l := range subset {
		strikes[l.strike] = true
		if l.typ == models.Call {
			ce = append(ce, l)
		} else {
			pe = append(pe, l)
		}
	}
	if len(ce) != 2 || len(pe) != 2 || len(strikes) != 4 {
		return false
	}
	sort.Slice(ce, func(i, j int) bool { return ce[i].strike < ce[j].strike })
	sort.Slice(pe, func(i, j int) bool { return pe[i].strike > pe[j].strike })
	return ce[0].qty == -ce[1].qty && pe[0].qty == -pe[1].qty
}

func (g *group) pairs(match func(a, b leg) (models.StrategyType, bool)) {
	n := len(g.legs)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if !g.free(i, j) {
				continue
			}
			if typ, ok := match(g.legs[i], g.legs[j]); ok {
				g.emit(typ, i, j)
			}
		}
	}
}

func (g *group) verticals() {
	g.pairs(func(a, b leg) (models.StrategyType, bool) {
		if a.typ != b.typ || a.strike == b.strike || a.qty != -b.qty {
			return "", false
		}
		return verticalType(a, b), true
	})
}

// verticalType labels a spread by where the long leg sits: a long lower call
// is bullish, a long higher put is bullish.
func verticalType(a, b leg) models.StrategyType {
	aLower := a.strike < b.strike
	aLong := a.qty > 0
	if a.typ == models.Call {
		if aLower == aLong {
			return models.BullCallSpread
		}
		return models.BearCallSpread
	}
	if aLower != aLong {
		return models.BullPutSpread
	}
	return models.BearPutSpread
}

func (g *group) straddles() {
	g.pairs(func(a, b leg) (models.StrategyType, bool) {
		return models.Straddle, a.strike == b.strike && a.typ != b.typ && a.qty == b.qty
	})
}

func (g *group) strangles() {
	g.pairs(func(a, b leg) (models.StrategyType, bool) {
		return models.Strangle, a.strike != b.strike && a.typ != b.typ && a.qty == b.qty
	})
}

func (g *group) naked() {
	for i, l := range g.legs {
		if g.used[i] {
			continue
		}
		g.emit(nakedType(l), i)
	}
}

func nakedType(l leg) models.StrategyType {
	switch {
	case l.typ == models.Call && l.qty > 0:
		return models.NakedCallBuy
	case l.typ == models.Call:
		return models.NakedCallSell
	case l.qty > 0:
		return models.NakedPutBuy
	default:
		return models.NakedPutSell
	}
}

type calendarKey struct {
	underlying string
	strike     int
	typ        models.OptionType
	qty        int
}

func (k calendarKey) less(o calendarKey) bool {
	if k.underlying != o.underlying {
		return k.underlying < o.underlying
	}
	if k.strike != o.strike {
		return k.strike < o.strike
	}
	if k.typ != o.typ {
		return k.typ < o.typ
	}
	return k.qty < o.qty
}

func calendarSpread(day time.Time, ck calendarKey, expiries []time.Time) models.StrategyRecord {
	sorted := append([]time.Time(nil), expiries...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

	legs := make([]models.Leg, len(sorted))
	parts := make([]string, len(sorted))
	for i, e := range sorted {
		legs[i] = models.Leg{Strike: ck.strike, OptionType: ck.typ, Quantity: ck.qty, Expiry: e}
		parts[i] = models.FormatDate(e)
	}

	return models.StrategyRecord{
		ID: fmt.Sprintf("CAL_%s_%s_%d_%s_%d_%s",
			day.Format("20060102"), ck.underlying, ck.strike, ck.typ, ck.qty, strings.Join(parts, "_")),
		Date:       day,
		Underlying: ck.underlying,
		Expiries:   sorted,
		Type:       models.CalendarSpread,
		Legs:       legs,
	}
}

// strategyID is date, underlying, expiry, type and a leg signature of
// strike, option type and quantity sign.
func strategyID(day time.Time, underlying string, expiry time.Time, typ models.StrategyType, legs []models.Leg) string {
	sig := make([]string, len(legs))
	for i, l := range legs {
		sig[i] = strconv.Itoa(l.Strike) + "_" + string(l.OptionType) + "_" + strconv.Itoa(sign(l.Quantity))
	}
	return fmt.Sprintf("%s_%s_%s_%s_%s",
		day.Format("20060102"), underlying, models.FormatDate(expiry), typ.Code(), strings.Join(sig, "|"))
}

// uniquifyIDs suffixes repeated ids within a day with #2, #3 and so on.
func uniquifyIDs(records []models.StrategyRecord) {
	seen := make(map[string]int, len(records))
	for i := range records {
		id := records[i].ID
		seen[id]++
		if n := seen[id]; n > 1 {
			records[i].ID = id + "#" + strconv.Itoa(n)
		}
	}
}

func sign(q int) int {
	switch {
	case q > 0:
		return 1
	case q < 0:
		return -1
	}
	return 0
}

func containsDate(days []time.Time, d time.Time) bool {
	for _, x := range days {
		if x.Equal(d) {
			return true
		}
	}
	return false
}

// CountByType tallies records per strategy type.
func CountByType(records []models.StrategyRecord) map[models.StrategyType]int {
	counts := make(map[models.StrategyType]int)
	for _, r := range records {
		counts[r.Type]++
	}
	return counts
}
