package model

import (
	"time"

	"github.com/google/uuid"
)

// Snapshot is the immutable result of one refresh cycle. Every list is sorted
// by descending APY. Snapshots must not be mutated once published.
type Snapshot struct {
	ID          uuid.UUID `json:"id"`
	GeneratedAt time.Time `json:"generated_at"`
	Assets      []Record  `json:"assets"`
	Pairs       []Record  `json:"pairs"`
	Combined    []Record  `json:"combined"`
}

// Query narrows snapshot lists at read time. Nil fields match everything.
type Query struct {
	Asset    *Asset
	Protocol *Protocol
	// Stable keeps records whose assets are all stablecoins (true) or that
	// hold at least one volatile asset (false).
	Stable *bool
}

// Match reports whether r satisfies q.
func (q Query) Match(r Record) bool {
	if q.Asset != nil && !r.HasAsset(*q.Asset) {
		return false
	}
	if q.Protocol != nil && r.Protocol != *q.Protocol {
		return false
	}
	if q.Stable != nil && r.IsStable() != *q.Stable {
		return false
	}
	return true
}

// View is the filtered read of a single snapshot.
type View struct {
	SnapshotID  uuid.UUID `json:"snapshot_id"`
	GeneratedAt time.Time `json:"generated_at"`
	Assets      []Record  `json:"assets"`
	Pairs       []Record  `json:"pairs"`
	Combined    []Record  `json:"combined"`
}

// Filter returns a View of s restricted by q. The snapshot is not modified.
func (s *Snapshot) Filter(q Query) View {
	return View{
		SnapshotID:  s.ID,
		GeneratedAt: s.GeneratedAt,
		Assets:      filterRecords(s.Assets, q),
		Pairs:       filterRecords(s.Pairs, q),
		Combined:    filterRecords(s.Combined, q),
	}
}

func filterRecords(in []Record, q Query) []Record {
	out := make([]Record, 0, len(in))
	for _, r := range in {
		if q.Match(r) {
			out = append(out, r)
		}
	}
	return out
}

// AverageAPY is the mean APY of one recorded series over a trailing window.
type AverageAPY struct {
	Network    Network        `json:"network"`
	Protocol   Protocol       `json:"protocol"`
	Assets     []WrappedAsset `json:"assets"`
	APYAverage float64        `json:"apy_average"`
	Samples    int64          `json:"samples"`
	Since      time.Time      `json:"since"`
}
