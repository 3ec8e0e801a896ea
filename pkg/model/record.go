package model

import (
	"fmt"
	"math"
	"strings"
)

// Record is the normalized unit produced by every source.
// Assets holds one entry for a single-asset yield and two for a pair.
type Record struct {
	Network  Network        `json:"network"`
	Protocol Protocol       `json:"protocol"`
	Assets   []WrappedAsset `json:"assets"`
	APY      float64        `json:"apy"`
}

// Valid reports whether the record has one or two assets and a finite APY.
func (r Record) Valid() bool {
	if len(r.Assets) < 1 || len(r.Assets) > 2 {
		return false
	}
	return !math.IsNaN(r.APY) && !math.IsInf(r.APY, 0)
}

// IsPair reports whether the record describes an asset pair.
func (r Record) IsPair() bool { return len(r.Assets) == 2 }

// HasAsset reports whether any of the record's assets is a.
func (r Record) HasAsset(a Asset) bool {
	for _, w := range r.Assets {
		if w.Asset == a {
			return true
		}
	}
	return false
}

// IsStable reports whether every asset in the record is a stablecoin.
func (r Record) IsStable() bool {
	if len(r.Assets) == 0 {
		return false
	}
	for _, w := range r.Assets {
		if !w.Asset.IsStable() {
			return false
		}
	}
	return true
}

func (r Record) String() string {
	parts := make([]string, len(r.Assets))
	for i, a := range r.Assets {
		parts[i] = a.String()
	}
	return fmt.Sprintf("Record(network=%s,protocol=%s,assets=[%s],apy=%g)",
		r.Network, r.Protocol, strings.Join(parts, ","), r.APY)
}
