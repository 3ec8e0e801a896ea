package bancor

import (
	"github.com/shopspring/decimal"

	"github.com/Checker-Finance/yield-aggregator/pkg/model"
)

// DaysPerYear annualizes daily fees.
var DaysPerYear = decimal.RequireFromString("365.2425")

// AnnualizedAPY returns fees24h*365.2425/liquidity. ok is false when
// liquidity is not positive.
func AnnualizedAPY(fees24h, liquidity decimal.Decimal) (float64, bool) {
	if !liquidity.IsPositive() {
		return 0, false
	}
	apy, _ := fees24h.Mul(DaysPerYear).Div(liquidity).Float64()
	return apy, true
}

// ToRecords converts ethereum pools into records. Pools are skipped when
// they resolve to fewer than one or more than two known assets, fall under
// minLiquidity, or annualize to a non-positive APY.
func ToRecords(pools []Pool, minLiquidity decimal.Decimal) []model.Record {
	var out []model.Record
	for _, p := range pools {
		if p.DLTType != string(model.NetworkEthereum) {
			continue
		}

		var assets []model.WrappedAsset
		for _, r := range p.Reserves {
			if w, ok := model.Wrap(r.Symbol); ok {
				assets = append(assets, w)
			}
		}
		if len(assets) < 1 || len(assets) > 2 {
			continue
		}

		if p.Liquidity.USD.LessThan(minLiquidity) {
			continue
		}
		apy, ok := AnnualizedAPY(p.Fees24h.USD, p.Liquidity.USD)
		if !ok || apy <= 0 {
			continue
		}

		out = append(out, model.Record{
			Network:  model.NetworkEthereum,
			Protocol: model.ProtocolBancor,
			Assets:   assets,
			APY:      apy,
		})
	}
	return out
}
