package snapshot

import (
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Checker-Finance/yield-aggregator/pkg/model"
)

// Build splits records into single-asset and pair lists, each stably sorted
// by descending APY, plus a combined view of both. The input is not modified.
func Build(records []model.Record, at time.Time) *model.Snapshot {
	assets := make([]model.Record, 0, len(records))
	pairs := make([]model.Record, 0, len(records))
	for _, r := range records {
		if r.IsPair() {
			pairs = append(pairs, r)
		} else {
			assets = append(assets, r)
		}
	}
	sortByAPY(assets)
	sortByAPY(pairs)

	combined := make([]model.Record, 0, len(assets)+len(pairs))
	combined = append(combined, assets...)
	combined = append(combined, pairs...)
	sortByAPY(combined)

	return &model.Snapshot{
		ID:          uuid.New(),
		GeneratedAt: at.UTC(),
		Assets:      assets,
		Pairs:       pairs,
		Combined:    combined,
	}
}

func sortByAPY(records []model.Record) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].APY > records[j].APY
	})
}

// Publisher owns the current snapshot. Install is the only writer; readers
// load the pointer without locking and must treat the snapshot as read-only.
type Publisher struct {
	current atomic.Pointer[model.Snapshot]
	now     func() time.Time
}

// NewPublisher starts with an empty snapshot so reads never see nil.
func NewPublisher() *Publisher {
	p := &Publisher{now: time.Now}
	p.current.Store(&model.Snapshot{
		Assets:   []model.Record{},
		Pairs:    []model.Record{},
		Combined: []model.Record{},
	})
	return p
}

// Install builds a snapshot from records and swaps it in atomically.
func (p *Publisher) Install(records []model.Record) *model.Snapshot {
	snap := Build(records, p.now())
	p.current.Store(snap)
	return snap
}

// Restore installs a previously built snapshot, e.g. one read back from cache.
func (p *Publisher) Restore(snap *model.Snapshot) {
	if snap != nil {
		p.current.Store(snap)
	}
}

// Current returns the published snapshot.
func (p *Publisher) Current() *model.Snapshot {
	return p.current.Load()
}

// Initialized reports whether any snapshot has been installed or restored.
func (p *Publisher) Initialized() bool {
	return p.current.Load().ID != uuid.Nil
}

// Query filters one snapshot generation; all lists in the View come from it.
func (p *Publisher) Query(q model.Query) model.View {
	return p.Current().Filter(q)
}
