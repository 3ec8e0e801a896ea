package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Checker-Finance/yield-aggregator/internal/ingest"
	"github.com/Checker-Finance/yield-aggregator/internal/metrics"
	"github.com/Checker-Finance/yield-aggregator/internal/snapshot"
	"github.com/Checker-Finance/yield-aggregator/pkg/model"
)

// DefaultInterval is the delay between the end of one cycle and the start
// of the next.
const DefaultInterval = time.Hour

// ErrAllSourcesFailed is reported when no source produced a result.
var ErrAllSourcesFailed = errors.New("all sources failed")

// CycleError wraps anything that aborted a refresh cycle, including panics.
type CycleError struct {
	Started time.Time
	Err     error
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("refresh cycle started %s: %v", e.Started.Format(time.RFC3339), e.Err)
}

func (e *CycleError) Unwrap() error { return e.Err }

// Aggregator produces the records for one cycle.
type Aggregator interface {
	Run(ctx context.Context) ingest.Result
}

// Sink receives every snapshot after it has been installed.
type Sink interface {
	Name() string
	Push(ctx context.Context, snap *model.Snapshot) error
}

// SnapshotLoader returns a previously persisted snapshot.
type SnapshotLoader interface {
	Load(ctx context.Context) (*model.Snapshot, error)
}

type Option func(*Refresher)

// WithSinks registers sinks notified after each successful install.
func WithSinks(sinks ...Sink) Option {
	return func(r *Refresher) { r.sinks = append(r.sinks, sinks...) }
}

// WithWarmStart restores a cached snapshot when the first cycle fails.
func WithWarmStart(loader SnapshotLoader) Option {
	return func(r *Refresher) { r.warm = loader }
}

// Refresher drives the aggregator on a fixed interval and installs each
// result into the snapshot publisher.
type Refresher struct {
	logger    *zap.Logger
	agg       Aggregator
	publisher *snapshot.Publisher
	sinks     []Sink
	warm      SnapshotLoader
	interval  time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	stopped bool
}

// NewRefresher constructs the refresh loop. A non-positive interval falls
// back to DefaultInterval.
func NewRefresher(logger *zap.Logger, agg Aggregator, pub *snapshot.Publisher, interval time.Duration, opts ...Option) *Refresher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	r := &Refresher{
		logger:    logger,
		agg:       agg,
		publisher: pub,
		interval:  interval,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start runs the first cycle before returning, then continues in the
// background until Stop is called or ctx is cancelled. The returned error
// is the first cycle's outcome; the loop keeps running either way.
func (r *Refresher) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.done != nil || r.stopped {
		r.mu.Unlock()
		return errors.New("refresher already started")
	}
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	r.mu.Unlock()

	r.logger.Info("refresher.started", zap.Duration("interval", r.interval))

	err := r.RunOnce(ctx)
	if err != nil && !r.publisher.Initialized() {
		r.warmStart(ctx)
	}

	go r.loop(ctx)
	return err
}

// Stop cancels any in-flight cycle and waits for the loop to exit.
func (r *Refresher) Stop() {
	r.mu.Lock()
	r.stopped = true
	cancel, done := r.cancel, r.done
	r.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (r *Refresher) loop(ctx context.Context) {
	defer close(r.done)

	timer := time.NewTimer(r.interval)
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			_ = r.RunOnce(ctx)
			// measured from completion so slow cycles push the schedule out
			timer.Reset(r.interval)
		case <-ctx.Done():
			r.logger.Info("refresher.stopped")
			return
		}
	}
}

// RunOnce executes a single cycle. On any failure the published snapshot is
// left untouched and a *CycleError is returned.
func (r *Refresher) RunOnce(ctx context.Context) (err error) {
	start := time.Now()

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}

		result := "ok"
		if err != nil {
			result = "error"
			var ce *CycleError
			if !errors.As(err, &ce) {
				err = &CycleError{Started: start, Err: err}
			}
			r.logger.Error("refresher.cycle_failed",
				zap.Duration("duration", time.Since(start)),
				zap.Error(err))
		}
		metrics.RefreshTotal.WithLabelValues(result).Inc()
		metrics.ObserveDuration(metrics.RefreshDuration, start, result)
	}()

	res := r.agg.Run(ctx)
	if ctxErr := ctx.Err(); ctxErr != nil {
		// partial results from an abandoned cycle are never installed
		return ctxErr
	}
	if len(res.Sources) > 0 && len(res.Failures()) == len(res.Sources) {
		return ErrAllSourcesFailed
	}

	snap := r.publisher.Install(res.Records)

	metrics.LastRefreshTimestamp.Set(float64(snap.GeneratedAt.Unix()))
	metrics.SnapshotRecords.WithLabelValues("asset").Set(float64(len(snap.Assets)))
	metrics.SnapshotRecords.WithLabelValues("pair").Set(float64(len(snap.Pairs)))

	r.logger.Info("refresher.snapshot_installed",
		zap.String("snapshot_id", snap.ID.String()),
		zap.Int("assets", len(snap.Assets)),
		zap.Int("pairs", len(snap.Pairs)),
		zap.Int("failed_sources", len(res.Failures())),
		zap.Duration("duration", time.Since(start)))

	r.notify(ctx, snap)
	return nil
}

func (r *Refresher) notify(ctx context.Context, snap *model.Snapshot) {
	for _, sink := range r.sinks {
		if err := r.push(ctx, sink, snap); err != nil {
			metrics.IncSinkError(sink.Name())
			r.logger.Warn("refresher.sink_failed",
				zap.String("sink", sink.Name()),
				zap.String("snapshot_id", snap.ID.String()),
				zap.Error(err))
		}
	}
}

func (r *Refresher) push(ctx context.Context, sink Sink, snap *model.Snapshot) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return sink.Push(ctx, snap)
}

func (r *Refresher) warmStart(ctx context.Context) {
	if r.warm == nil {
		return
	}
	snap, err := r.warm.Load(ctx)
	if err != nil {
		r.logger.Warn("refresher.warm_start_unavailable", zap.Error(err))
		return
	}
	if snap == nil {
		r.logger.Info("refresher.warm_start_miss")
		return
	}
	r.publisher.Restore(snap)
	r.logger.Info("refresher.warm_start",
		zap.String("snapshot_id", snap.ID.String()),
		zap.Time("generated_at", snap.GeneratedAt),
		zap.Int("assets", len(snap.Assets)),
		zap.Int("pairs", len(snap.Pairs)))
}
