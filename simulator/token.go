package simulator

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/michaelpento.lv/candyarb/dex"
)

// TokenView is a plain token seen from one account
type TokenView struct {
	session *Session
	address common.Address
}

// Token returns a view of the token at addr
func (s *Session) Token(addr common.Address) *TokenView {
	return &TokenView{session: s, address: addr}
}

func (t *TokenView) Address() common.Address {
	return t.address
}

func (t *TokenView) BalanceOf(ctx context.Context, owner common.Address) (*uint256.Int, error) {
	return t.session.ledger.TokenBalance(t.address, owner), nil
}

func (t *TokenView) Transfer(ctx context.Context, to common.Address, amount *uint256.Int) error {
	return t.session.ledger.moveToken(t.address, t.session.caller, to, amount, "transfer")
}

func (t *TokenView) Approve(ctx context.Context, spender common.Address, amount *uint256.Int) error {
	l := t.session.ledger
	l.mu.Lock()
	defer l.mu.Unlock()
	allowances, ok := l.state.allowances[t.address]
	if !ok {
		return dex.NewAdapterError(dex.KindMisconfigured, "approve", fmt.Errorf("token %s not deployed", t.address.Hex()))
	}
	allowances[allowanceKey{owner: t.session.caller, spender: spender}] = amount.Clone()
	return nil
}

// transferFrom moves tokens from owner to the spender's chosen recipient
func (l *Ledger) transferFrom(token, spender, owner, to common.Address, amount *uint256.Int) error {
	l.mu.Lock()
	allowances := l.state.allowances[token]
	key := allowanceKey{owner: owner, spender: spender}
	allowed, ok := allowances[key]
	if !ok || allowed.Lt(amount) {
		l.mu.Unlock()
		return dex.NewAdapterError(dex.KindReverted, "transferFrom",
			fmt.Errorf("allowance of %s for %s below %s", owner.Hex(), spender.Hex(), amount.Dec()))
	}
	allowed.Sub(allowed, amount)
	l.mu.Unlock()

	return l.moveToken(token, owner, to, amount, "transferFrom")
}

// WETHView is the wrapped native asset seen from one account
type WETHView struct {
	TokenView
}

// WETH returns a view of the wrapper at addr
func (s *Session) WETH(addr common.Address) *WETHView {
	return &WETHView{TokenView{session: s, address: addr}}
}

// Deposit wraps amount of the caller's ETH
func (w *WETHView) Deposit(ctx context.Context, amount *uint256.Int) error {
	l := w.session.ledger
	return l.revertible(func() error {
		if err := l.moveNative(w.session.caller, w.address, amount, "weth.deposit"); err != nil {
			return err
		}
		return l.Mint(w.address, w.session.caller, amount)
	})
}

// Withdraw unwraps amount back to the caller's ETH
func (w *WETHView) Withdraw(ctx context.Context, amount *uint256.Int) error {
	l := w.session.ledger
	return l.revertible(func() error {
		l.mu.Lock()
		err := debit(l.state.balances[w.address], w.session.caller, amount, "weth.withdraw")
		l.mu.Unlock()
		if err != nil {
			return err
		}
		return l.moveNative(w.address, w.session.caller, amount, "weth.withdraw")
	})
}
