package rate

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// ErrInvalidRate is returned when a configured rate sums to zero or less.
var ErrInvalidRate = errors.New("rate limiter cannot be unlimited")

// Config defines pacing parameters for a single source. The three rate units
// are summed into one effective operations-per-second value.
type Config struct {
	Name      string
	PerSecond float64
	PerMinute float64
	PerHour   float64
	// JitterPercentage adds a uniform random delay in
	// [0, JitterPercentage/opsPerSecond) seconds to every non-first wait.
	JitterPercentage float64
}

// OpsPerSecond returns the effective summed rate.
func (c Config) OpsPerSecond() float64 {
	return c.PerSecond + c.PerMinute/60 + c.PerHour/(60*60)
}

// Limiter paces operations so that consecutive Acquire calls return at least
// 1/rate (plus jitter) apart. It is not safe for concurrent callers; each
// source owns one Limiter and drives it from a single goroutine.
type Limiter struct {
	name     string
	rate     float64
	interval time.Duration
	jitter   time.Duration
	last     time.Time

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
	rand  func() float64
}

// New creates a limiter from cfg.
func New(cfg Config) (*Limiter, error) {
	ops := cfg.OpsPerSecond()
	if ops <= 0 {
		return nil, fmt.Errorf("%w (name=%s, rate=%g/s)", ErrInvalidRate, cfg.Name, ops)
	}

	var jitter time.Duration
	if cfg.JitterPercentage > 0 {
		jitter = time.Duration(cfg.JitterPercentage / ops * float64(time.Second))
	}

	return &Limiter{
		name:     cfg.Name,
		rate:     ops,
		interval: time.Duration(float64(time.Second) / ops),
		jitter:   jitter,
		now:      time.Now,
		sleep:    sleepCtx,
		rand:     rand.Float64,
	}, nil
}

// Name returns the source name the limiter was built for.
func (l *Limiter) Name() string { return l.name }

// Rate returns the effective operations per second.
func (l *Limiter) Rate() float64 { return l.rate }

// Interval returns the minimum spacing between operations, excluding jitter.
func (l *Limiter) Interval() time.Duration { return l.interval }

// Acquire blocks until the next operation is allowed and records it.
// The first call never blocks. A canceled ctx aborts the wait without
// recording an operation.
func (l *Limiter) Acquire(ctx context.Context) error {
	if !l.last.IsZero() {
		wait := l.interval - l.now().Sub(l.last)
		if l.jitter > 0 {
			wait += time.Duration(l.rand() * float64(l.jitter))
		}
		if wait > 0 {
			if err := l.sleep(ctx, wait); err != nil {
				return err
			}
		}
	}
	l.last = l.now()
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Manager builds and holds one limiter per source. Limiters are never shared
// between sources, so one slow source cannot throttle another.
type Manager struct {
	mu        sync.Mutex
	limiters  map[string]*Limiter
	defaults  Config
	overrides map[string]Config
}

// NewManager validates defaults and every override up front so that a bad
// rate fails at startup rather than on first use.
func NewManager(defaults Config, overrides map[string]Config) (*Manager, error) {
	if defaults.OpsPerSecond() <= 0 {
		return nil, fmt.Errorf("default rate: %w", ErrInvalidRate)
	}
	for name, cfg := range overrides {
		if cfg.OpsPerSecond() <= 0 {
			return nil, fmt.Errorf("rate for %s: %w", name, ErrInvalidRate)
		}
	}
	return &Manager{
		limiters:  make(map[string]*Limiter),
		defaults:  defaults,
		overrides: overrides,
	}, nil
}

// GetLimiter returns the limiter for source, creating it on first use.
func (m *Manager) GetLimiter(source string) *Limiter {
	m.mu.Lock()
	defer m.mu.Unlock()

	if lim, ok := m.limiters[source]; ok {
		return lim
	}
	cfg, ok := m.overrides[source]
	if !ok {
		cfg = m.defaults
	}
	cfg.Name = source
	// Rates were validated in NewManager.
	lim, _ := New(cfg)
	m.limiters[source] = lim
	return lim
}
