package simulator

import (
	"bytes"
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/michaelpento.lv/candyarb/dex"
	"github.com/michaelpento.lv/candyarb/types"
	"github.com/michaelpento.lv/candyarb/utils/apperror"
)

// DeployPair registers a V2 pair for tokenA/tokenB. Slots are ordered by
// address the way the V2 factory orders them.
func (l *Ledger) DeployPair(pair, tokenA, tokenB common.Address, fee types.FeeSchedule) {
	l.DeployToken(tokenA)
	l.DeployToken(tokenB)

	token0, token1 := tokenA, tokenB
	if bytes.Compare(tokenB.Bytes(), tokenA.Bytes()) < 0 {
		token0, token1 = tokenB, tokenA
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.state.pairs[pair] = &pairState{
		token0:   token0,
		token1:   token1,
		reserve0: uint256.NewInt(0),
		reserve1: uint256.NewInt(0),
		fee:      fee,
	}
}

// SeedPair mints liquidity straight into a pair and syncs its reserves
func (l *Ledger) SeedPair(pair, tokenA common.Address, amountA *uint256.Int, tokenB common.Address, amountB *uint256.Int) error {
	if err := l.Mint(tokenA, pair, amountA); err != nil {
		return err
	}
	if err := l.Mint(tokenB, pair, amountB); err != nil {
		return err
	}
	return l.sync(pair)
}

// sync sets a pair's reserves to its balances
func (l *Ledger) sync(pair common.Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.state.pairs[pair]
	if !ok {
		return fmt.Errorf("pair %s not deployed", pair.Hex())
	}
	p.reserve0 = balanceOf(l.state.balances[p.token0], pair)
	p.reserve1 = balanceOf(l.state.balances[p.token1], pair)
	return nil
}

// PairView is a V2 pair seen from one account
type PairView struct {
	session *Session
	address common.Address
}

// Pair returns a view of the V2 pair at addr
func (s *Session) Pair(addr common.Address) *PairView {
	return &PairView{session: s, address: addr}
}

func (p *PairView) Address() common.Address {
	return p.address
}

func (p *PairView) load() (pairState, error) {
	l := p.session.ledger
	l.mu.RLock()
	defer l.mu.RUnlock()
	ps, ok := l.state.pairs[p.address]
	if !ok {
		return pairState{}, dex.NewAdapterError(dex.KindMisconfigured, "v2", fmt.Errorf("no pair at %s", p.address.Hex()))
	}
	copied := *ps
	copied.reserve0 = ps.reserve0.Clone()
	copied.reserve1 = ps.reserve1.Clone()
	return copied, nil
}

func (p *PairView) setLocked(locked bool) {
	l := p.session.ledger
	l.mu.Lock()
	defer l.mu.Unlock()
	if ps, ok := l.state.pairs[p.address]; ok {
		ps.locked = locked
	}
}

func (p *PairView) Token0(ctx context.Context) (common.Address, error) {
	ps, err := p.load()
	return ps.token0, err
}

func (p *PairView) Token1(ctx context.Context) (common.Address, error) {
	ps, err := p.load()
	return ps.token1, err
}

func (p *PairView) GetReserves(ctx context.Context) (*uint256.Int, *uint256.Int, error) {
	ps, err := p.load()
	if err != nil {
		return nil, nil, err
	}
	return ps.reserve0, ps.reserve1, nil
}

// Swap sends the requested outputs to `to`, optionally calls back into it,
// then requires the fee-adjusted product of balances not to shrink.
func (p *PairView) Swap(ctx context.Context, amount0Out, amount1Out *uint256.Int, to common.Address, data []byte) error {
	ps, err := p.load()
	if err != nil {
		return err
	}
	if ps.locked {
		return dex.NewAdapterError(dex.KindReverted, "v2.swap", fmt.Errorf("locked"))
	}
	if amount0Out.IsZero() && amount1Out.IsZero() {
		return apperror.New(apperror.CodeInvalidAmount, apperror.WithContext("v2.swap: insufficient output amount"))
	}
	if !amount0Out.Lt(ps.reserve0) || !amount1Out.Lt(ps.reserve1) {
		return apperror.New(apperror.CodeInsufficientLiquidity, apperror.WithContext("v2.swap"))
	}
	if to == ps.token0 || to == ps.token1 {
		return dex.NewAdapterError(dex.KindReverted, "v2.swap", fmt.Errorf("invalid to"))
	}

	l := p.session.ledger
	p.setLocked(true)
	defer p.setLocked(false)

	return l.revertible(func() error {
		if !amount0Out.IsZero() {
			if err := l.moveToken(ps.token0, p.address, to, amount0Out, "v2.swap"); err != nil {
				return err
			}
		}
		if !amount1Out.IsZero() {
			if err := l.moveToken(ps.token1, p.address, to, amount1Out, "v2.swap"); err != nil {
				return err
			}
		}

		if len(data) > 0 {
			callee := l.callee(to)
			if callee == nil {
				return dex.NewAdapterError(dex.KindReverted, "v2.swap", fmt.Errorf("no callee at %s", to.Hex()))
			}
			if err := callee.OnVenueCallback(ctx, p.address, p.session.caller, amount0Out, amount1Out, data); err != nil {
				return err
			}
		}

		balance0 := l.TokenBalance(ps.token0, p.address)
		balance1 := l.TokenBalance(ps.token1, p.address)
		amount0In := amountIn(balance0, ps.reserve0, amount0Out)
		amount1In := amountIn(balance1, ps.reserve1, amount1Out)
		if amount0In.IsZero() && amount1In.IsZero() {
			return dex.NewAdapterError(dex.KindReverted, "v2.swap", fmt.Errorf("insufficient input amount"))
		}

		if !invariantHolds(ps, balance0, balance1, amount0In, amount1In) {
			return dex.NewAdapterError(dex.KindReverted, "v2.swap", fmt.Errorf("K"))
		}
		return l.sync(p.address)
	})
}

// amountIn is what arrived on top of reserve - out
func amountIn(balance, reserve, out *uint256.Int) *uint256.Int {
	floor := new(uint256.Int).Sub(reserve, out)
	if balance.Gt(floor) {
		return new(uint256.Int).Sub(balance, floor)
	}
	return uint256.NewInt(0)
}

func invariantHolds(ps pairState, balance0, balance1, amount0In, amount1In *uint256.Int) bool {
	d := new(big.Int).SetUint64(ps.fee.Denominator)
	n := new(big.Int).SetUint64(ps.fee.Numerator)

	adjusted := func(balance, in *uint256.Int) *big.Int {
		b := new(big.Int).Mul(balance.ToBig(), d)
		return b.Sub(b, new(big.Int).Mul(in.ToBig(), n))
	}

	lhs := new(big.Int).Mul(adjusted(balance0, amount0In), adjusted(balance1, amount1In))
	rhs := new(big.Int).Mul(ps.reserve0.ToBig(), ps.reserve1.ToBig())
	rhs.Mul(rhs, d).Mul(rhs, d)
	return lhs.Cmp(rhs) >= 0
}
