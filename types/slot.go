package types

import (
	"fmt"

	"github.com/holiman/uint256"
)

// AssetSlot is a position in a V2 pair's (token0, token1) ordering
type AssetSlot uint8

const (
	Slot0 AssetSlot = iota
	Slot1
)

func (s AssetSlot) String() string {
	switch s {
	case Slot0:
		return "token0"
	case Slot1:
		return "token1"
	default:
		return fmt.Sprintf("slot(%d)", uint8(s))
	}
}

// Other returns the opposite slot
func (s AssetSlot) Other() AssetSlot {
	if s == Slot0 {
		return Slot1
	}
	return Slot0
}

// Amounts places amount in this slot and zero in the other, as the pair's
// swap(amount0Out, amount1Out) expects.
func (s AssetSlot) Amounts(amount *uint256.Int) (amount0, amount1 *uint256.Int) {
	if s == Slot0 {
		return new(uint256.Int).Set(amount), uint256.NewInt(0)
	}
	return uint256.NewInt(0), new(uint256.Int).Set(amount)
}

// Pick returns the value belonging to this slot
func (s AssetSlot) Pick(v0, v1 *uint256.Int) *uint256.Int {
	if s == Slot0 {
		return v0
	}
	return v1
}
