package ingest

import (
	"strings"

	"github.com/Checker-Finance/yield-aggregator/pkg/model"
)

// DefaultMinAPY is the APY floor applied when none is configured.
const DefaultMinAPY = 0.01

// Filter is the final predicate pass over aggregated records. It does not
// merge or deduplicate records.
type Filter struct {
	MinAPY     float64
	disallowed map[string]struct{}
}

// NewFilter builds a filter. Disallowed symbols are matched case-insensitively
// against both the wrapped symbol and the canonical symbol of every asset.
func NewFilter(minAPY float64, disallowed []string) Filter {
	set := make(map[string]struct{}, len(disallowed))
	for _, s := range disallowed {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			set[s] = struct{}{}
		}
	}
	return Filter{MinAPY: minAPY, disallowed: set}
}

// Allow reports whether r survives filtering.
func (f Filter) Allow(r model.Record) bool {
	if !r.Valid() {
		return false
	}
	if r.APY < f.MinAPY {
		return false
	}
	for _, a := range r.Assets {
		if f.isDisallowed(a.WrappedSymbol) || f.isDisallowed(a.Asset.Symbol()) {
			return false
		}
	}
	return true
}

// Apply returns the records that pass Allow, preserving order.
func (f Filter) Apply(records []model.Record) []model.Record {
	out := make([]model.Record, 0, len(records))
	for _, r := range records {
		if f.Allow(r) {
			out = append(out, r)
		}
	}
	return out
}

func (f Filter) isDisallowed(symbol string) bool {
	_, ok := f.disallowed[strings.ToUpper(symbol)]
	return ok
}
