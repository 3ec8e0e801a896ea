package zapper

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Checker-Finance/yield-aggregator/internal/httpclient"
	"github.com/Checker-Finance/yield-aggregator/pkg/model"
)

const Name = "zapper"

const DefaultBaseURL = "https://api.zapper.fi/v1/"

// KeyProvider resolves the API key for a source at fetch time.
type KeyProvider interface {
	APIKey(ctx context.Context, source string) (string, error)
}

// Config configures the Zapper source. Keys, when set, takes precedence
// over the static APIKey.
type Config struct {
	BaseURL         string
	APIKey          string
	Keys            KeyProvider
	MinLiquidityUSD float64
}

// Source aggregates pool and lending stats through the Zapper API.
// All calls run sequentially on one executor.
type Source struct {
	logger       *zap.Logger
	exec         *httpclient.Executor
	baseURL      string
	apiKey       string
	keys         KeyProvider
	minLiquidity decimal.Decimal
	networks     []model.Network
}

func New(logger *zap.Logger, exec *httpclient.Executor, cfg Config) *Source {
	base := cfg.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	return &Source{
		logger:       logger,
		exec:         exec,
		baseURL:      strings.TrimRight(base, "/") + "/",
		apiKey:       cfg.APIKey,
		keys:         cfg.Keys,
		minLiquidity: decimal.NewFromFloat(cfg.MinLiquidityUSD),
		networks:     []model.Network{model.NetworkEthereum},
	}
}

func (s *Source) Name() string { return Name }

// Fetch discovers supported protocols, then reads pool and lending stats
// for each mapped protocol.
func (s *Source) Fetch(ctx context.Context) ([]model.Record, error) {
	key, err := s.resolveKey(ctx)
	if err != nil {
		return nil, err
	}

	var supportedPools, supportedVaults []SupportedEntry
	if err := s.get(ctx, key, "pool-stats/supported", &supportedPools); err != nil {
		return nil, err
	}
	if err := s.get(ctx, key, "vault-stats/supported", &supportedVaults); err != nil {
		return nil, err
	}
	poolsByNetwork := supportedByNetwork(supportedPools)
	vaultsByNetwork := supportedByNetwork(supportedVaults)

	var records []model.Record
	for _, network := range s.networks {
		pools := poolsByNetwork[string(network)]
		vaults := vaultsByNetwork[string(network)]
		lending := lendingSupported[network]

		for _, pk := range protocolKeys {
			if pools[pk.Key] {
				var stats []PoolStat
				if err := s.get(ctx, key, "pool-stats/"+pk.Key, &stats); err != nil {
					return nil, err
				}
				records = append(records, PoolRecords(network, pk.Protocol, stats, s.minLiquidity)...)
			}

			// TODO: record vault stats once their APY field is mapped.
			if vaults[pk.Key] {
				s.logger.Debug("zapper.vault_stats_skipped",
					zap.String("network", string(network)),
					zap.String("protocol", pk.Key))
			}

			if lending[pk.Key] {
				var stats []LendingStat
				if err := s.get(ctx, key, "lending-stats/"+pk.Key, &stats); err != nil {
					return nil, err
				}
				records = append(records, LendingRecords(network, pk.Protocol, stats)...)
			}
		}
	}

	s.logger.Debug("zapper.stats_mapped", zap.Int("records", len(records)))
	return records, nil
}

func (s *Source) resolveKey(ctx context.Context) (string, error) {
	if s.keys == nil {
		return s.apiKey, nil
	}
	key, err := s.keys.APIKey(ctx, Name)
	if err != nil {
		return "", fmt.Errorf("zapper: resolve api key: %w", err)
	}
	return key, nil
}

func (s *Source) get(ctx context.Context, key, path string, out any) error {
	params := url.Values{}
	if key != "" {
		params.Set("api_key", key)
	}
	if err := s.exec.GetJSON(ctx, s.baseURL+path, params, out); err != nil {
		return fmt.Errorf("zapper: get %s: %w", path, err)
	}
	return nil
}
