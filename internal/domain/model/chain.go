package model

import "fmt"

// Chain identifies an EVM network the scan engine checks. Values match the
// short ids portfolio APIs use in token entries, e.g. "eth" and "bsc".
type Chain string

const (
	ChainEthereum Chain = "eth"
	ChainBSC      Chain = "bsc"
	ChainPolygon  Chain = "polygon"
	ChainArbitrum Chain = "arbitrum"
	ChainOptimism Chain = "optimism"
	ChainBase     Chain = "base"
)

func (c Chain) String() string {
	return string(c)
}

// NativeSymbol returns the ticker of the chain's gas token.
func (c Chain) NativeSymbol() string {
	switch c {
	case ChainBSC:
		return "BNB"
	case ChainPolygon:
		return "MATIC"
	default:
		return "ETH"
	}
}

// AllChains lists every chain the engine knows how to check, in report order.
var AllChains = []Chain{
	ChainEthereum,
	ChainBSC,
	ChainPolygon,
	ChainArbitrum,
	ChainOptimism,
	ChainBase,
}

func ParseChain(s string) (Chain, error) {
	for _, c := range AllChains {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown chain %q", s)
}

// ChainNames converts a chain list to its string form for records and logs.
func ChainNames(chains []Chain) []string {
	out := make([]string, 0, len(chains))
	for _, c := range chains {
		out = append(out, string(c))
	}
	return out
}
