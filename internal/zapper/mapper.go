package zapper

import (
	"github.com/shopspring/decimal"

	"github.com/Checker-Finance/yield-aggregator/pkg/model"
)

// protocolKeys maps the protocols read from Zapper to their API keys, in
// the order they are queried. Bancor reports zero yearlyROI everywhere and
// Curve pools can hold more than two tokens, so neither is read here.
var protocolKeys = []struct {
	Protocol model.Protocol
	Key      string
}{
	{model.ProtocolOneInch, "1inch"},
	{model.ProtocolSushiSwap, "sushiswap"},
	{model.ProtocolUniSwap, "uniswap-v2"},
	{model.ProtocolYearn, "yearn"},
	{model.ProtocolAave, "aave"},
	{model.ProtocolCompound, "compound"},
}

// lendingSupported has no discovery endpoint upstream.
var lendingSupported = map[model.Network]map[string]bool{
	model.NetworkEthereum: {"aave": true, "compound": true},
}

// supportedByNetwork indexes a supported list by network.
func supportedByNetwork(entries []SupportedEntry) map[string]map[string]bool {
	out := make(map[string]map[string]bool, len(entries))
	for _, e := range entries {
		set := out[e.Network]
		if set == nil {
			set = make(map[string]bool, len(e.Protocols))
			out[e.Network] = set
		}
		for _, p := range e.Protocols {
			set[p] = true
		}
	}
	return out
}

// PoolRecords converts pool stats into pair records. Only tokens with a
// positive reserve count; a pool is dropped if any of them is unknown, if
// they are not exactly two, if liquidity is under minLiquidity, or if the
// yearly ROI is not positive.
func PoolRecords(network model.Network, protocol model.Protocol, stats []PoolStat, minLiquidity decimal.Decimal) []model.Record {
	var out []model.Record
	for _, stat := range stats {
		var assets []model.WrappedAsset
		unknown := false
		for _, tok := range stat.Tokens {
			if !tok.Reserve.IsPositive() {
				continue
			}
			w, ok := model.Wrap(tok.Symbol)
			if !ok {
				unknown = true
				continue
			}
			assets = append(assets, w)
		}
		if unknown || len(assets) != 2 {
			continue
		}

		if minLiquidity.IsPositive() {
			if !stat.Liquidity.Valid || stat.Liquidity.Decimal.LessThan(minLiquidity) {
				continue
			}
		}

		if !stat.YearlyROI.Valid {
			continue
		}
		apy, _ := stat.YearlyROI.Decimal.Float64()
		if apy <= 0 {
			continue
		}

		out = append(out, model.Record{
			Network:  network,
			Protocol: protocol,
			Assets:   assets,
			APY:      apy,
		})
	}
	return out
}

// LendingRecords converts lending stats into single-asset records.
func LendingRecords(network model.Network, protocol model.Protocol, stats []LendingStat) []model.Record {
	var out []model.Record
	for _, stat := range stats {
		w, ok := model.Wrap(stat.Symbol)
		if !ok || !stat.SupplyAPY.Valid {
			continue
		}
		apy, _ := stat.SupplyAPY.Decimal.Float64()
		if apy <= 0 {
			continue
		}
		out = append(out, model.Record{
			Network:  network,
			Protocol: protocol,
			Assets:   []model.WrappedAsset{w},
			APY:      apy,
		})
	}
	return out
}
