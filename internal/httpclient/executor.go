package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/Checker-Finance/yield-aggregator/internal/metrics"
	"github.com/Checker-Finance/yield-aggregator/internal/rate"
	"github.com/Checker-Finance/yield-aggregator/pkg/utils"
)

// DefaultTimeout bounds a single request attempt.
const DefaultTimeout = 10 * time.Second

// maxBackoffExponent caps the timeout backoff at 2^5 = 32s.
const maxBackoffExponent = 5

// Backoff returns the sleep before retrying after the given number of
// consecutive timeouts: 2^min(attempt,5) seconds.
func Backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > maxBackoffExponent {
		attempt = maxBackoffExponent
	}
	return time.Duration(1<<attempt) * time.Second
}

// Option customizes an Executor.
type Option func(*Executor)

// WithTimeout sets the per-attempt timeout.
func WithTimeout(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithBackoff replaces the timeout backoff schedule.
func WithBackoff(fn func(attempt int) time.Duration) Option {
	return func(e *Executor) {
		if fn != nil {
			e.backoff = fn
		}
	}
}

// WithHeader adds a header to every request.
func WithHeader(key, value string) Option {
	return func(e *Executor) {
		e.headers.Set(key, value)
	}
}

// Executor performs rate-limited JSON GETs for one source. Timeouts are
// retried without limit; every other failure is returned as a *SourceError.
// An Executor shares its limiter's single-caller contract.
type Executor struct {
	logger  *zap.Logger
	limiter *rate.Limiter
	http    *http.Client
	source  string
	timeout time.Duration
	backoff func(attempt int) time.Duration
	headers http.Header
}

// New creates an Executor. limiter may be nil to disable pacing.
func New(logger *zap.Logger, limiter *rate.Limiter, httpClient *http.Client, source string, opts ...Option) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	e := &Executor{
		logger:  logger,
		limiter: limiter,
		http:    httpClient,
		source:  source,
		timeout: DefaultTimeout,
		backoff: Backoff,
		headers: http.Header{"Accept": []string{"application/json"}},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// GetJSON issues GET rawURL with params merged into its query and decodes the
// JSON body into out. It returns only on success, on a *SourceError, or when
// ctx is done.
func (e *Executor) GetJSON(ctx context.Context, rawURL string, params url.Values, out any) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return &SourceError{Source: e.source, URL: rawURL, Err: fmt.Errorf("invalid url: %w", err)}
	}
	if len(params) > 0 {
		q := u.Query()
		for k, vs := range params {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	target := u.String()
	logURL := utils.MaskURL(target)

	attempts := 0
	for {
		if e.limiter != nil {
			if err := e.limiter.Acquire(ctx); err != nil {
				return fmt.Errorf("%s: rate limit wait: %w", e.source, err)
			}
		}

		body, err := e.attempt(ctx, target, logURL)
		if err == nil {
			if out != nil {
				if err := json.Unmarshal(body, out); err != nil {
					e.logger.Warn(e.source+".decode_failed",
						zap.String("url", logURL),
						zap.Error(err))
					return &SourceError{Source: e.source, URL: logURL, Body: truncate(body), Err: fmt.Errorf("decode failed: %w", err)}
				}
			}
			return nil
		}

		if ctx.Err() != nil {
			return fmt.Errorf("%s: %w", e.source, ctx.Err())
		}
		if !isTimeout(err) {
			return err
		}

		attempts++
		wait := e.backoff(attempts)
		e.logger.Warn(e.source+".request_timeout",
			zap.String("url", logURL),
			zap.Int("attempt", attempts),
			zap.Duration("retry_in", wait))
		if err := sleepCtx(ctx, wait); err != nil {
			return fmt.Errorf("%s: %w", e.source, err)
		}
	}
}

// attempt runs one bounded request. A timeout is returned unwrapped so the
// caller can classify it; everything else is a *SourceError.
func (e *Executor) attempt(ctx context.Context, target, logURL string) ([]byte, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, target, nil)
	if err != nil {
		return nil, &SourceError{Source: e.source, URL: logURL, Err: err}
	}
	for k, vs := range e.headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	e.logger.Debug(e.source+".http_get", zap.String("url", logURL))

	start := time.Now()
	resp, err := e.http.Do(req)
	if err != nil {
		metrics.ObserveDuration(metrics.SourceRequestDuration, start, e.source)
		if isTimeout(err) {
			metrics.IncSourceRequest(e.source, "timeout")
			return nil, err
		}
		metrics.IncSourceRequest(e.source, "error")
		return nil, &SourceError{Source: e.source, URL: logURL, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	metrics.ObserveDuration(metrics.SourceRequestDuration, start, e.source)
	if err != nil {
		if isTimeout(err) {
			metrics.IncSourceRequest(e.source, "timeout")
			return nil, err
		}
		metrics.IncSourceRequest(e.source, "error")
		return nil, &SourceError{Source: e.source, URL: logURL, Status: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}

	metrics.IncSourceRequest(e.source, strconv.Itoa(resp.StatusCode))

	if resp.StatusCode >= 400 {
		e.logger.Warn(e.source+".http_error",
			zap.Int("status", resp.StatusCode),
			zap.String("url", logURL),
			zap.String("body", truncate(body)))
		return nil, &SourceError{
			Source: e.source,
			URL:    logURL,
			Status: resp.StatusCode,
			Body:   truncate(body),
			Err:    fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}

	e.logger.Debug(e.source+".http_success",
		zap.String("url", logURL),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	return body, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
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

func truncate(body []byte) string {
	const limit = 512
	if len(body) > limit {
		return string(body[:limit]) + "..."
	}
	return string(body)
}
