package model

import (
	"errors"
	"fmt"
	"strings"
)

// Symbols of the fixed asset universe.
const (
	SymbolBTC  = "BTC"
	SymbolETH  = "ETH"
	SymbolDOGE = "DOGE"
	SymbolPEPE = "PEPE"
)

// Universe lists every symbol a MarketSnapshot must quote.
var Universe = []string{SymbolBTC, SymbolETH, SymbolDOGE, SymbolPEPE}

var ErrInvalidFocus = errors.New("invalid asset focus")

// AssetFocus restricts the candidate assets an agent may buy.
type AssetFocus string

const (
	FocusLowVol  AssetFocus = "LowVol"
	FocusMidVol  AssetFocus = "MidVol"
	FocusHighVol AssetFocus = "HighVol"
)

// ParseAssetFocus accepts the canonical names and the legacy BlueChip/Layer2/Memecoin aliases.
func ParseAssetFocus(s string) (AssetFocus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "lowvol", "low", "bluechip":
		return FocusLowVol, nil
	case "midvol", "mid", "layer2":
		return FocusMidVol, nil
	case "highvol", "high", "memecoin":
		return FocusHighVol, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidFocus, s)
	}
}

func (f AssetFocus) Valid() bool {
	switch f {
	case FocusLowVol, FocusMidVol, FocusHighVol:
		return true
	default:
		return false
	}
}

// Candidates returns the symbols a BUY may pick from, in draw order.
func (f AssetFocus) Candidates() []string {
	switch f {
	case FocusLowVol:
		return []string{SymbolBTC, SymbolETH}
	case FocusMidVol:
		return []string{SymbolETH}
	case FocusHighVol:
		return []string{SymbolDOGE, SymbolPEPE}
	default:
		return nil
	}
}

// UnmarshalText lets YAML and JSON inputs use any accepted spelling.
func (f *AssetFocus) UnmarshalText(text []byte) error {
	parsed, err := ParseAssetFocus(string(text))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}
