package dex

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/michaelpento.lv/candyarb/types"
)

// ResolveSlot returns which slot of a pair holds reference
func ResolveSlot(token0, token1, reference common.Address) (types.AssetSlot, error) {
	switch reference {
	case token0:
		return types.Slot0, nil
	case token1:
		return types.Slot1, nil
	default:
		return 0, NewAdapterError(KindMisconfigured, "resolveSlot",
			fmt.Errorf("reference %s is neither token0 %s nor token1 %s", reference.Hex(), token0.Hex(), token1.Hex()))
	}
}

// ResolvePairSlot reads a pair's ordering and resolves the reference slot
func ResolvePairSlot(ctx context.Context, pair PairReader, reference common.Address) (types.AssetSlot, error) {
	token0, err := pair.Token0(ctx)
	if err != nil {
		return 0, Wrap(KindNetwork, "token0", err)
	}
	token1, err := pair.Token1(ctx)
	if err != nil {
		return 0, Wrap(KindNetwork, "token1", err)
	}
	return ResolveSlot(token0, token1, reference)
}
