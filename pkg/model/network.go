package model

import "strings"

// Network identifies a chain.
type Network string

const (
	NetworkEthereum Network = "ethereum"
)

// Protocol identifies a DeFi protocol reported by a source.
type Protocol string

const (
	ProtocolUniSwap   Protocol = "uniswap-v2"
	ProtocolSushiSwap Protocol = "sushiswap"
	ProtocolCurve     Protocol = "curve"
	ProtocolBancor    Protocol = "bancor"
	ProtocolOneInch   Protocol = "1inch"
	ProtocolYearn     Protocol = "yearn"
	ProtocolCompound  Protocol = "compound"
	ProtocolDYDX      Protocol = "dYdX"
	ProtocolAave      Protocol = "aave"
)

// Protocols lists every protocol a source may report.
var Protocols = []Protocol{
	ProtocolUniSwap, ProtocolSushiSwap, ProtocolCurve, ProtocolBancor, ProtocolOneInch,
	ProtocolYearn, ProtocolCompound, ProtocolDYDX, ProtocolAave,
}

// ParseProtocol matches name case-insensitively against Protocols.
func ParseProtocol(name string) (Protocol, bool) {
	name = strings.TrimSpace(name)
	for _, p := range Protocols {
		if strings.EqualFold(string(p), name) {
			return p, true
		}
	}
	return "", false
}
