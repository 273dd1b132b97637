package types

import "fmt"

type HoldingType uint8

const (
	HoldingTypeCoin     HoldingType = 0
	HoldingTypeAsset    HoldingType = 1
	HoldingTypeCurrency HoldingType = 2
)

func (t HoldingType) String() string {
	switch t {
	case HoldingTypeCoin:
		return "coin"
	case HoldingTypeAsset:
		return "asset"
	case HoldingTypeCurrency:
		return "currency"
	default:
		return fmt.Sprintf("holding(%d)", uint8(t))
	}
}

func (t HoldingType) Valid() bool {
	return t <= HoldingTypeCurrency
}

// Holding is an issued asset or currency.
type Holding struct {
	Type     HoldingType `json:"type"`
	ID       uint64      `json:"id,string"`
	Issuer   AccountID   `json:"issuer,string"`
	Name     string      `json:"name"`
	Decimals uint8       `json:"decimals"`
}

func (h *Holding) Clone() *Holding {
	n := *h
	return &n
}
