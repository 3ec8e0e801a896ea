package dydx

import (
	"github.com/Checker-Finance/yield-aggregator/pkg/model"
)

// ToRecords maps each market with a known asset and a positive supply APY
// to a single-asset record.
func ToRecords(markets []Market) []model.Record {
	var out []model.Record
	for _, m := range markets {
		asset, ok := model.Wrap(m.Symbol)
		if !ok || !m.TotalSupplyAPY.Valid {
			continue
		}
		apy, _ := m.TotalSupplyAPY.Decimal.Float64()
		if apy <= 0 {
			continue
		}
		out = append(out, model.Record{
			Network:  model.NetworkEthereum,
			Protocol: model.ProtocolDYDX,
			Assets:   []model.WrappedAsset{asset},
			APY:      apy,
		})
	}
	return out
}
