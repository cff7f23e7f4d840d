package ledger

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// SortKey selects the column priced holdings are ordered by.
type SortKey string

// SortDir is the ordering direction.
type SortDir string

const (
	SortBySymbol       SortKey = "symbol"
	SortByCurrentValue SortKey = "currentValue"
	SortByGainAbs      SortKey = "gainAbs"
	SortByGainPct      SortKey = "gainPct"

	Asc  SortDir = "asc"
	Desc SortDir = "desc"
)

// ParseSortKey parses s, defaulting to SortByGainPct when empty.
func ParseSortKey(s string) (SortKey, error) {
	switch k := SortKey(s); k {
	case "":
		return SortByGainPct, nil
	case SortBySymbol, SortByCurrentValue, SortByGainAbs, SortByGainPct:
		return k, nil
	}
	return "", fmt.Errorf("%w: unknown sort key %q", ErrInvalidInput, s)
}

// ParseSortDir parses s, defaulting to Desc when empty.
func ParseSortDir(s string) (SortDir, error) {
	switch d := SortDir(strings.ToLower(s)); d {
	case "":
		return Desc, nil
	case Asc, Desc:
		return d, nil
	}
	return "", fmt.Errorf("%w: unknown sort direction %q", ErrInvalidInput, s)
}

// Sort orders priced in place. Unknown values compare below every known value,
// so they come first ascending and last descending. Ties keep input order.
func Sort(priced []PricedHolding, key SortKey, dir SortDir) {
	sort.SliceStable(priced, func(i, j int) bool {
		c := compare(priced[i], priced[j], key)
		if dir == Asc {
			return c < 0
		}
		return c > 0
	})
}

func compare(a, b PricedHolding, key SortKey) int {
	switch key {
	case SortBySymbol:
		return strings.Compare(strings.ToUpper(a.Symbol), strings.ToUpper(b.Symbol))
	case SortByCurrentValue:
		return compareNull(a.CurrentValue, b.CurrentValue)
	case SortByGainAbs:
		return compareNull(a.GainAbs, b.GainAbs)
	default:
		return compareNull(a.GainPct, b.GainPct)
	}
}

// compareNull treats an invalid value as negative infinity.
func compareNull(a, b decimal.NullDecimal) int {
	switch {
	case !a.Valid && !b.Valid:
		return 0
	case !a.Valid:
		return -1
	case !b.Valid:
		return 1
	}
	return a.Decimal.Cmp(b.Decimal)
}
