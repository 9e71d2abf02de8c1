package uniswap

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru"
	"github.com/holiman/uint256"

	"github.com/michaelpento.lv/candyarb/dex"
	umath "github.com/michaelpento.lv/candyarb/utils/math"
)

// NewMetadataCache creates the cache shared by readers for immutable contract
// metadata such as pair ordering. Reserves are never cached.
func NewMetadataCache(size int) (*lru.Cache, error) {
	if size <= 0 {
		size = 128
	}
	return lru.New(size)
}

type metadataKey struct {
	contract common.Address
	method   string
}

// PairReader reads a V2 pair over RPC
type PairReader struct {
	address  common.Address
	contract *bind.BoundContract
	caller   *Caller
	cache    *lru.Cache
}

// NewPairReader binds the pair at address
func NewPairReader(address common.Address, backend bind.ContractCaller, caller *Caller, cache *lru.Cache) *PairReader {
	return &PairReader{
		address:  address,
		contract: bind.NewBoundContract(address, pairABI, backend, nil, nil),
		caller:   caller,
		cache:    cache,
	}
}

func (p *PairReader) Address() common.Address {
	return p.address
}

// GetReserves returns the pair's last synced reserves
func (p *PairReader) GetReserves(ctx context.Context) (*uint256.Int, *uint256.Int, error) {
	out, err := p.caller.call(ctx, p.contract, "getReserves")
	if err != nil {
		return nil, nil, err
	}
	if len(out) < 2 {
		return nil, nil, dex.NewAdapterError(dex.KindNetwork, "getReserves", fmt.Errorf("got %d outputs", len(out)))
	}

	reserve0, err := toUint256(out[0], "getReserves")
	if err != nil {
		return nil, nil, err
	}
	reserve1, err := toUint256(out[1], "getReserves")
	if err != nil {
		return nil, nil, err
	}
	return reserve0, reserve1, nil
}

func (p *PairReader) Token0(ctx context.Context) (common.Address, error) {
	return cachedAddress(ctx, p.caller, p.cache, p.contract, p.address, "token0")
}

func (p *PairReader) Token1(ctx context.Context) (common.Address, error) {
	return cachedAddress(ctx, p.caller, p.cache, p.contract, p.address, "token1")
}

// cachedAddress reads an immutable address-valued view method once
func cachedAddress(ctx context.Context, caller *Caller, cache *lru.Cache, contract *bind.BoundContract, at common.Address, method string) (common.Address, error) {
	key := metadataKey{contract: at, method: method}
	if cache != nil {
		if v, ok := cache.Get(key); ok {
			if caller.metrics != nil {
				caller.metrics.CacheHits.Inc()
			}
			return v.(common.Address), nil
		}
		if caller.metrics != nil {
			caller.metrics.CacheMisses.Inc()
		}
	}

	out, err := caller.call(ctx, contract, method)
	if err != nil {
		return common.Address{}, err
	}
	if len(out) == 0 {
		return common.Address{}, dex.NewAdapterError(dex.KindNetwork, method, fmt.Errorf("no output"))
	}
	addr, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, dex.NewAdapterError(dex.KindNetwork, method, fmt.Errorf("failed to parse %s address", method))
	}

	if cache != nil {
		cache.Add(key, addr)
	}
	return addr, nil
}

func toUint256(v interface{}, op string) (*uint256.Int, error) {
	b, ok := v.(*big.Int)
	if !ok {
		return nil, dex.NewAdapterError(dex.KindNetwork, op, fmt.Errorf("unexpected output type %T", v))
	}
	z, err := umath.FromBig(b)
	if err != nil {
		return nil, dex.NewAdapterError(dex.KindNetwork, op, err)
	}
	return z, nil
}
