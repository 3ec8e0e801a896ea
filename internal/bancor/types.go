package bancor

import "github.com/shopspring/decimal"

// PoolsResponse is the body of GET /pools.
type PoolsResponse struct {
	Data []Pool `json:"data"`
}

// Pool is one Bancor liquidity pool. Amounts arrive as decimal strings.
type Pool struct {
	Name      string    `json:"name"`
	DLTType   string    `json:"dlt_type"`
	DLTID     string    `json:"dlt_id"`
	Reserves  []Reserve `json:"reserves"`
	Fees24h   USDAmount `json:"fees_24h"`
	Liquidity USDAmount `json:"liquidity"`
}

type Reserve struct {
	Symbol string `json:"symbol"`
	DLTID  string `json:"dlt_id"`
}

type USDAmount struct {
	USD decimal.Decimal `json:"usd"`
}
