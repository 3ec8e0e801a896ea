package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Checker-Finance/yield-aggregator/internal/metrics"
	"github.com/Checker-Finance/yield-aggregator/pkg/model"
)

// SourceResult is the outcome of one source in one cycle.
type SourceResult struct {
	Source   string
	Records  []model.Record
	Err      error
	Duration time.Duration
}

// Result is the outcome of one aggregation run.
type Result struct {
	// Records are the filtered records in source declaration order.
	Records []model.Record
	// Raw is the number of records before filtering.
	Raw     int
	Sources []SourceResult
}

// Failures returns the sources that failed this run.
func (r Result) Failures() []SourceResult {
	var out []SourceResult
	for _, s := range r.Sources {
		if s.Err != nil {
			out = append(out, s)
		}
	}
	return out
}

// Aggregator runs every source concurrently and merges their output.
type Aggregator struct {
	logger       *zap.Logger
	sources      []Source
	filter       Filter
	cycleTimeout time.Duration
}

// NewAggregator builds an aggregator. A positive cycleTimeout cancels
// sources still running when it elapses; zero waits indefinitely.
func NewAggregator(logger *zap.Logger, sources []Source, filter Filter, cycleTimeout time.Duration) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{
		logger:       logger,
		sources:      sources,
		filter:       filter,
		cycleTimeout: cycleTimeout,
	}
}

// Run fans out to all sources and waits for every one to settle. A failing
// source contributes no records and does not affect its siblings. Output
// order follows source declaration order regardless of completion order.
func (a *Aggregator) Run(ctx context.Context) Result {
	if a.cycleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cycleTimeout)
		defer cancel()
	}

	results := make([]SourceResult, len(a.sources))

	var wg sync.WaitGroup
	for i, src := range a.sources {
		i, src := i, src
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = a.runSource(ctx, src)
		}()
	}
	wg.Wait()

	var raw []model.Record
	for _, res := range results {
		raw = append(raw, res.Records...)
	}
	filtered := a.filter.Apply(raw)

	a.logger.Info("ingest.completed",
		zap.Int("sources", len(a.sources)),
		zap.Int("raw_records", len(raw)),
		zap.Int("records", len(filtered)))

	return Result{Records: filtered, Raw: len(raw), Sources: results}
}

func (a *Aggregator) runSource(ctx context.Context, src Source) (res SourceResult) {
	name := src.Name()
	start := time.Now()
	res.Source = name

	defer func() {
		if p := recover(); p != nil {
			res.Records = nil
			res.Err = fmt.Errorf("%s: panic: %v", name, p)
		}
		res.Duration = time.Since(start)

		if res.Err != nil {
			metrics.SourceFailuresTotal.WithLabelValues(name).Inc()
			metrics.SourceRecords.WithLabelValues(name).Set(0)
			a.logger.Error("ingest.source_failed",
				zap.String("source", name),
				zap.Duration("duration", res.Duration),
				zap.Error(res.Err))
			return
		}
		metrics.SourceRecords.WithLabelValues(name).Set(float64(len(res.Records)))
		a.logger.Info("ingest.source_completed",
			zap.String("source", name),
			zap.Int("records", len(res.Records)),
			zap.Duration("duration", res.Duration))
	}()

	a.logger.Debug("ingest.source_started", zap.String("source", name))
	records, err := src.Fetch(ctx)
	if err != nil {
		res.Err = err
		return res
	}
	res.Records = records
	return res
}
