package holdings

import "fmt"

// AssetKind classifies the instrument tracked by a position.
type AssetKind int

const (
	Equity AssetKind = iota
	Crypto
	Fund
	Metal
	FX
)

func (k AssetKind) String() string {
	switch k {
	case Equity:
		return "equity"
	case Crypto:
		return "crypto"
	case Fund:
		return "fund"
	case Metal:
		return "metal"
	case FX:
		return "fx"
	default:
		return "unknown"
	}
}

// ParseAssetKind parses a string into an AssetKind.
func ParseAssetKind(s string) (AssetKind, error) {
	switch s {
	case "equity", "stock":
		return Equity, nil
	case "crypto":
		return Crypto, nil
	case "fund":
		return Fund, nil
	case "metal", "gold":
		return Metal, nil
	case "fx", "forex":
		return FX, nil
	default:
		return 0, fmt.Errorf("unknown asset kind: %q", s)
	}
}

func (k AssetKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *AssetKind) UnmarshalText(text []byte) error {
	v, err := ParseAssetKind(string(text))
	if err != nil {
		return err
	}
	*k = v
	return nil
}
