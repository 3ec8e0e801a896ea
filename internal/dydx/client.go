package dydx

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/Checker-Finance/yield-aggregator/internal/httpclient"
	"github.com/Checker-Finance/yield-aggregator/pkg/model"
)

const Name = "dydx"

const DefaultBaseURL = "https://api.dydx.exchange/v1/"

// Source reads lending supply rates from the dYdX markets endpoint.
type Source struct {
	logger  *zap.Logger
	exec    *httpclient.Executor
	baseURL string
}

func New(logger *zap.Logger, exec *httpclient.Executor, baseURL string) *Source {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Source{
		logger:  logger,
		exec:    exec,
		baseURL: strings.TrimRight(baseURL, "/") + "/",
	}
}

func (s *Source) Name() string { return Name }

// Fetch returns one record per market.
// GET /markets
func (s *Source) Fetch(ctx context.Context) ([]model.Record, error) {
	var resp MarketsResponse
	if err := s.exec.GetJSON(ctx, s.baseURL+"markets", nil, &resp); err != nil {
		return nil, fmt.Errorf("dydx: get markets: %w", err)
	}

	records := ToRecords(resp.Markets)
	s.logger.Debug("dydx.markets_mapped",
		zap.Int("markets", len(resp.Markets)),
		zap.Int("records", len(records)))
	return records, nil
}
