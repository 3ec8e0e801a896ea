package bancor

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Checker-Finance/yield-aggregator/internal/httpclient"
	"github.com/Checker-Finance/yield-aggregator/pkg/model"
)

// Name is the source tag used in logs, metrics and limiter keys.
const Name = "bancor"

// DefaultBaseURL is the public Bancor v2 REST API.
const DefaultBaseURL = "https://api-v2.bancor.network/"

// Config configures the Bancor source.
type Config struct {
	BaseURL         string
	MinLiquidityUSD float64
}

// Source reads pool fees and liquidity from the Bancor REST API.
type Source struct {
	logger       *zap.Logger
	exec         *httpclient.Executor
	baseURL      string
	minLiquidity decimal.Decimal
}

// New constructs the Bancor source. exec must be dedicated to this source.
func New(logger *zap.Logger, exec *httpclient.Executor, cfg Config) *Source {
	base := cfg.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	return &Source{
		logger:       logger,
		exec:         exec,
		baseURL:      strings.TrimRight(base, "/") + "/",
		minLiquidity: decimal.NewFromFloat(cfg.MinLiquidityUSD),
	}
}

func (s *Source) Name() string { return Name }

// Fetch returns one record per eligible pool.
// GET /pools
func (s *Source) Fetch(ctx context.Context) ([]model.Record, error) {
	var resp PoolsResponse
	if err := s.exec.GetJSON(ctx, s.baseURL+"pools", nil, &resp); err != nil {
		return nil, fmt.Errorf("bancor: get pools: %w", err)
	}

	records := ToRecords(resp.Data, s.minLiquidity)
	s.logger.Debug("bancor.pools_mapped",
		zap.Int("pools", len(resp.Data)),
		zap.Int("records", len(records)))
	return records, nil
}
