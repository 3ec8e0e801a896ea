package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Asset is a canonical asset identifier. The set is closed and its declared
// order is the lookup order used by MapAsset.
type Asset int

const (
	BTC Asset = iota
	ETH
	DAI
	USDC
	USDT
)

// Assets lists every canonical asset in declared order.
var Assets = []Asset{BTC, ETH, DAI, USDC, USDT}

var assetSymbols = [...]string{
	BTC:  "BTC",
	ETH:  "ETH",
	DAI:  "DAI",
	USDC: "USDC",
	USDT: "USDT",
}

// Symbol returns the canonical base symbol.
func (a Asset) Symbol() string {
	if a < 0 || int(a) >= len(assetSymbols) {
		return fmt.Sprintf("Asset(%d)", int(a))
	}
	return assetSymbols[a]
}

func (a Asset) String() string { return a.Symbol() }

// IsStable reports whether the asset is a stablecoin.
func (a Asset) IsStable() bool {
	switch a {
	case DAI, USDC, USDT:
		return true
	default:
		return false
	}
}

// MapAsset resolves a free-form (possibly wrapped) token symbol to a canonical
// asset. Matching is a case-insensitive substring test of each canonical base
// symbol against the input, so "WBTC" resolves to BTC. The first asset in
// declared order wins when several symbols are contained in the input.
func MapAsset(symbol string) (Asset, bool) {
	upper := strings.ToUpper(symbol)
	if upper == "" {
		return 0, false
	}
	for _, a := range Assets {
		if strings.Contains(upper, a.Symbol()) {
			return a, true
		}
	}
	return 0, false
}

// ParseAsset is the exact (non-substring) inverse of Symbol.
func ParseAsset(symbol string) (Asset, bool) {
	upper := strings.ToUpper(strings.TrimSpace(symbol))
	for _, a := range Assets {
		if a.Symbol() == upper {
			return a, true
		}
	}
	return 0, false
}

func (a Asset) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.Symbol())
}

func (a *Asset) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, ok := ParseAsset(s)
	if !ok {
		return fmt.Errorf("unknown asset %q", s)
	}
	*a = parsed
	return nil
}

// WrappedAsset pairs a canonical asset with the literal symbol observed at a source.
type WrappedAsset struct {
	Asset         Asset  `json:"symbol"`
	WrappedSymbol string `json:"symbol_wrapped"`
}

// Wrap resolves symbol through the registry.
func Wrap(symbol string) (WrappedAsset, bool) {
	a, ok := MapAsset(symbol)
	if !ok {
		return WrappedAsset{}, false
	}
	return WrappedAsset{Asset: a, WrappedSymbol: symbol}, true
}

func (w WrappedAsset) String() string {
	return fmt.Sprintf("%s(wrapped=%s)", w.Asset.Symbol(), w.WrappedSymbol)
}
