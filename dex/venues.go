package dex

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/michaelpento.lv/candyarb/types"
)

// Venues reads both venues into a normalised MarketSnapshot. Pair ordering is
// immutable and resolved once; reserves are read on every call.
type Venues struct {
	V1        LegacyReserveReader
	V2        PairReader
	Reference common.Address
	Clock     Clock

	mu   sync.Mutex
	slot *types.AssetSlot
}

// NewVenues creates a snapshot reader. reference is the wrapped reference
// asset as it appears in the V2 pair.
func NewVenues(v1 LegacyReserveReader, v2 PairReader, reference common.Address, clock Clock) *Venues {
	return &Venues{
		V1:        v1,
		V2:        v2,
		Reference: reference,
		Clock:     clock,
	}
}

// ReferenceSlot returns the V2 slot holding the reference asset
func (v *Venues) ReferenceSlot(ctx context.Context) (types.AssetSlot, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.slot != nil {
		return *v.slot, nil
	}
	slot, err := ResolvePairSlot(ctx, v.V2, v.Reference)
	if err != nil {
		return 0, err
	}
	v.slot = &slot
	return slot, nil
}

// Snapshot reads fresh reserves from both venues
func (v *Venues) Snapshot(ctx context.Context) (types.MarketSnapshot, error) {
	slot, err := v.ReferenceSlot(ctx)
	if err != nil {
		return types.MarketSnapshot{}, err
	}

	reserve0, reserve1, err := v.V2.GetReserves(ctx)
	if err != nil {
		return types.MarketSnapshot{}, Wrap(KindNetwork, "v2.getReserves", err)
	}
	tokenReserve, ethReserve, err := v.V1.GetReserves(ctx)
	if err != nil {
		return types.MarketSnapshot{}, Wrap(KindNetwork, "v1.getReserves", err)
	}

	var now uint64
	if v.Clock != nil {
		if now, err = v.Clock.Now(ctx); err != nil {
			return types.MarketSnapshot{}, Wrap(KindNetwork, "clock", err)
		}
	}

	return types.MarketSnapshot{
		V1: types.NewReserveState(ethReserve, tokenReserve),
		V2: types.NewReserveState(
			slot.Pick(reserve0, reserve1),
			slot.Other().Pick(reserve0, reserve1),
		),
		V2ReferenceSlot: slot,
		Timestamp:       now,
	}, nil
}
