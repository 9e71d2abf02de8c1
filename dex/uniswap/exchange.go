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

// ExchangeReader reads a V1 exchange's reserves. A V1 exchange keeps no
// reserve variables: its token reserve is its token balance and its ETH
// reserve is its native balance.
type ExchangeReader struct {
	address  common.Address
	backend  Backend
	contract *bind.BoundContract
	caller   *Caller
	cache    *lru.Cache
}

// NewExchangeReader binds the V1 exchange at address
func NewExchangeReader(address common.Address, backend Backend, caller *Caller, cache *lru.Cache) *ExchangeReader {
	return &ExchangeReader{
		address:  address,
		backend:  backend,
		contract: bind.NewBoundContract(address, exchangeABI, backend, nil, nil),
		caller:   caller,
		cache:    cache,
	}
}

func (e *ExchangeReader) Address() common.Address {
	return e.address
}

// Token returns the token this exchange trades
func (e *ExchangeReader) Token(ctx context.Context) (common.Address, error) {
	return cachedAddress(ctx, e.caller, e.cache, e.contract, e.address, "tokenAddress")
}

// GetReserves returns the exchange's token and ETH balances
func (e *ExchangeReader) GetReserves(ctx context.Context) (*uint256.Int, *uint256.Int, error) {
	token, err := e.Token(ctx)
	if err != nil {
		return nil, nil, err
	}

	erc20 := bind.NewBoundContract(token, erc20ABI, e.backend, nil, nil)
	out, err := e.caller.call(ctx, erc20, "balanceOf", e.address)
	if err != nil {
		return nil, nil, err
	}
	if len(out) == 0 {
		return nil, nil, dex.NewAdapterError(dex.KindNetwork, "balanceOf", fmt.Errorf("no output"))
	}
	tokenReserve, err := toUint256(out[0], "balanceOf")
	if err != nil {
		return nil, nil, err
	}

	raw, err := e.caller.do(ctx, "eth_getBalance", func() (any, error) {
		return e.backend.BalanceAt(ctx, e.address, nil)
	})
	if err != nil {
		return nil, nil, err
	}
	ethReserve, err := umath.FromBig(raw.(*big.Int))
	if err != nil {
		return nil, nil, dex.NewAdapterError(dex.KindNetwork, "eth_getBalance", err)
	}
	return tokenReserve, ethReserve, nil
}
