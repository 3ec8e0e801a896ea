package zapper

import "github.com/shopspring/decimal"

// SupportedEntry is one element of the pool-stats/vault-stats "supported" lists.
type SupportedEntry struct {
	Network   string   `json:"network"`
	Protocols []string `json:"protocols"`
}

// PoolStat is one element of GET pool-stats/{protocol}.
type PoolStat struct {
	Address   string              `json:"address"`
	Label     string              `json:"label"`
	Tokens    []PoolToken         `json:"tokens"`
	YearlyROI decimal.NullDecimal `json:"yearlyROI"`
	Liquidity decimal.NullDecimal `json:"liquidity"`
}

type PoolToken struct {
	Symbol  string          `json:"symbol"`
	Reserve decimal.Decimal `json:"reserve"`
}

// LendingStat is one element of GET lending-stats/{protocol}.
type LendingStat struct {
	Symbol    string              `json:"symbol"`
	SupplyAPY decimal.NullDecimal `json:"supplyApy"`
	BorrowAPY decimal.NullDecimal `json:"borrowApy"`
}
