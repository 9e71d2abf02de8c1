package simulator

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/michaelpento.lv/candyarb/amm"
	"github.com/michaelpento.lv/candyarb/dex"
	"github.com/michaelpento.lv/candyarb/types"
	"github.com/michaelpento.lv/candyarb/utils/apperror"
)

// DeployExchange registers a V1 exchange for token
func (l *Ledger) DeployExchange(exchange, token common.Address, fee types.FeeSchedule) {
	l.DeployToken(token)
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state.exchanges[exchange] = &exchangeState{token: token, fee: fee}
}

// SeedExchange deposits liquidity straight into a V1 exchange
func (l *Ledger) SeedExchange(exchange common.Address, eth, tokens *uint256.Int) error {
	l.mu.Lock()
	ex, ok := l.state.exchanges[exchange]
	if !ok {
		l.mu.Unlock()
		return fmt.Errorf("exchange %s not deployed", exchange.Hex())
	}
	credit(l.state.native, exchange, eth)
	l.mu.Unlock()
	return l.Mint(ex.token, exchange, tokens)
}

// ExchangeView is a V1 exchange seen from one account
type ExchangeView struct {
	session *Session
	address common.Address
}

// Exchange returns a view of the V1 exchange at addr
func (s *Session) Exchange(addr common.Address) *ExchangeView {
	return &ExchangeView{session: s, address: addr}
}

func (e *ExchangeView) Address() common.Address {
	return e.address
}

func (e *ExchangeView) state() (*exchangeState, error) {
	l := e.session.ledger
	l.mu.RLock()
	defer l.mu.RUnlock()
	ex, ok := l.state.exchanges[e.address]
	if !ok {
		return nil, dex.NewAdapterError(dex.KindMisconfigured, "v1", fmt.Errorf("no exchange at %s", e.address.Hex()))
	}
	copied := *ex
	return &copied, nil
}

// GetReserves returns the exchange's token balance and ETH balance
func (e *ExchangeView) GetReserves(ctx context.Context) (*uint256.Int, *uint256.Int, error) {
	ex, err := e.state()
	if err != nil {
		return nil, nil, err
	}
	l := e.session.ledger
	eth, _ := l.NativeBalance(ctx, e.address)
	return l.TokenBalance(ex.token, e.address), eth, nil
}

func (e *ExchangeView) checkOrder(ctx context.Context, amountIn, minOut *uint256.Int, deadline uint64) error {
	now, _ := e.session.ledger.Now(ctx)
	if deadline < now {
		return apperror.Newf(apperror.CodeDeadlineExpired, "v1 deadline %d, now %d", deadline, now)
	}
	if amountIn == nil || amountIn.IsZero() || minOut == nil || minOut.IsZero() {
		return apperror.New(apperror.CodeInvalidAmount, apperror.WithContext("v1 order needs positive input and minimum"))
	}
	return nil
}

// EthToTokenSwapInput sells ethSold of the caller's ETH for tokens
func (e *ExchangeView) EthToTokenSwapInput(ctx context.Context, ethSold, minTokens *uint256.Int, deadline uint64) (*uint256.Int, error) {
	if err := e.checkOrder(ctx, ethSold, minTokens, deadline); err != nil {
		return nil, err
	}
	ex, err := e.state()
	if err != nil {
		return nil, err
	}

	l := e.session.ledger
	var bought *uint256.Int
	err = l.revertible(func() error {
		tokenReserve, ethReserve, err := e.GetReserves(ctx)
		if err != nil {
			return err
		}
		bought, err = amm.GetAmountOut(ethReserve, tokenReserve, ethSold, ex.fee)
		if err != nil {
			return err
		}
		if bought.Lt(minTokens) {
			return apperror.Newf(apperror.CodeSlippageExceeded, "v1 tokens bought %s below min %s", bought.Dec(), minTokens.Dec())
		}
		if err := l.moveNative(e.session.caller, e.address, ethSold, "v1.ethToTokenSwapInput"); err != nil {
			return err
		}
		return l.moveToken(ex.token, e.address, e.session.caller, bought, "v1.ethToTokenSwapInput")
	})
	if err != nil {
		return nil, err
	}
	return bought, nil
}

// TokenToEthSwapInput sells tokensSold of the caller's tokens for ETH. The
// caller must have approved the exchange.
func (e *ExchangeView) TokenToEthSwapInput(ctx context.Context, tokensSold, minEth *uint256.Int, deadline uint64) (*uint256.Int, error) {
	if err := e.checkOrder(ctx, tokensSold, minEth, deadline); err != nil {
		return nil, err
	}
	ex, err := e.state()
	if err != nil {
		return nil, err
	}

	l := e.session.ledger
	var bought *uint256.Int
	err = l.revertible(func() error {
		tokenReserve, ethReserve, err := e.GetReserves(ctx)
		if err != nil {
			return err
		}
		bought, err = amm.GetAmountOut(tokenReserve, ethReserve, tokensSold, ex.fee)
		if err != nil {
			return err
		}
		if bought.Lt(minEth) {
			return apperror.Newf(apperror.CodeSlippageExceeded, "v1 eth bought %s below min %s", bought.Dec(), minEth.Dec())
		}
		if err := l.moveNative(e.address, e.session.caller, bought, "v1.tokenToEthSwapInput"); err != nil {
			return err
		}
		return l.transferFrom(ex.token, e.address, e.session.caller, e.address, tokensSold)
	})
	if err != nil {
		return nil, err
	}
	return bought, nil
}
