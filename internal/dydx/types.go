package dydx

import "github.com/shopspring/decimal"

// MarketsResponse is the body of GET /markets.
type MarketsResponse struct {
	Markets []Market `json:"markets"`
}

// Market is one dYdX lending market. Rates arrive as decimal strings.
type Market struct {
	ID              int                 `json:"id"`
	Symbol          string              `json:"symbol"`
	TotalSupplyAPY  decimal.NullDecimal `json:"totalSupplyAPY"`
	TotalBorrowAPY  decimal.NullDecimal `json:"totalBorrowAPY"`
	TotalSupplyPar  decimal.NullDecimal `json:"totalSupplyPar"`
	CurrencyAddress string              `json:"currencyAddress"`
}
