// Package simulator is an in-memory ledger hosting a V1 exchange, a V2 pair,
// a wrapped native asset and plain tokens. It gives the engine the same
// all-or-nothing transaction semantics a chain would.
package simulator

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/candyarb/dex"
	"github.com/michaelpento.lv/candyarb/types"
)

// DefaultBlockTime is the number of seconds each transaction advances the clock.
const DefaultBlockTime = 12

// Hook runs as a separate transaction ordered ahead of the next Atomic body.
type Hook func(ctx context.Context, l *Ledger) error

type allowanceKey struct {
	owner   common.Address
	spender common.Address
}

type exchangeState struct {
	token common.Address
	fee   types.FeeSchedule
}

type pairState struct {
	token0   common.Address
	token1   common.Address
	reserve0 *uint256.Int
	reserve1 *uint256.Int
	fee      types.FeeSchedule
	locked   bool
}

type state struct {
	block      uint64
	timestamp  uint64
	native     map[common.Address]*uint256.Int
	balances   map[common.Address]map[common.Address]*uint256.Int
	allowances map[common.Address]map[allowanceKey]*uint256.Int
	exchanges  map[common.Address]*exchangeState
	pairs      map[common.Address]*pairState
	weth       map[common.Address]bool
}

func newState(timestamp uint64) *state {
	return &state{
		timestamp:  timestamp,
		native:     make(map[common.Address]*uint256.Int),
		balances:   make(map[common.Address]map[common.Address]*uint256.Int),
		allowances: make(map[common.Address]map[allowanceKey]*uint256.Int),
		exchanges:  make(map[common.Address]*exchangeState),
		pairs:      make(map[common.Address]*pairState),
		weth:       make(map[common.Address]bool),
	}
}

func (s *state) clone() *state {
	c := newState(s.timestamp)
	c.block = s.block
	for k, v := range s.native {
		c.native[k] = v.Clone()
	}
	for token, holders := range s.balances {
		m := make(map[common.Address]*uint256.Int, len(holders))
		for k, v := range holders {
			m[k] = v.Clone()
		}
		c.balances[token] = m
	}
	for token, allowances := range s.allowances {
		m := make(map[allowanceKey]*uint256.Int, len(allowances))
		for k, v := range allowances {
			m[k] = v.Clone()
		}
		c.allowances[token] = m
	}
	for k, v := range s.exchanges {
		e := *v
		c.exchanges[k] = &e
	}
	for k, v := range s.pairs {
		p := *v
		p.reserve0 = v.reserve0.Clone()
		p.reserve1 = v.reserve1.Clone()
		c.pairs[k] = &p
	}
	for k, v := range s.weth {
		c.weth[k] = v
	}
	return c
}

// Ledger is the simulated chain. Mutating operations are meant to run inside
// Atomic; concurrent Atomic calls are serialised in arrival order.
type Ledger struct {
	txMu sync.Mutex

	mu        sync.RWMutex
	state     *state
	callees   map[common.Address]dex.FlashSwapCallee
	hooks     []Hook
	blockTime uint64
	logger    *zap.Logger
}

// Option configures a Ledger
type Option func(*Ledger)

// WithBlockTime sets the clock advance per transaction
func WithBlockTime(seconds uint64) Option {
	return func(l *Ledger) {
		l.blockTime = seconds
	}
}

// WithLogger sets the ledger logger
func WithLogger(logger *zap.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
	}
}

// NewLedger creates an empty ledger whose clock starts at genesis
func NewLedger(genesis uint64, opts ...Option) *Ledger {
	l := &Ledger{
		state:     newState(genesis),
		callees:   make(map[common.Address]dex.FlashSwapCallee),
		blockTime: DefaultBlockTime,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Now returns the timestamp of the current block
func (l *Ledger) Now(ctx context.Context) (uint64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.timestamp, nil
}

// Block returns the current block number
func (l *Ledger) Block() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.block
}

// Atomic mines a new block containing any queued hooks followed by fn. If fn
// fails, everything fn did is rolled back; hooks stay applied.
func (l *Ledger) Atomic(ctx context.Context, fn func(ctx context.Context) error) error {
	l.txMu.Lock()
	defer l.txMu.Unlock()

	if err := ctx.Err(); err != nil {
		return dex.NewAdapterError(dex.KindNetwork, "atomic", err)
	}

	l.mu.Lock()
	l.state.block++
	l.state.timestamp += l.blockTime
	hooks := l.hooks
	l.hooks = nil
	l.mu.Unlock()

	for i, hook := range hooks {
		if err := l.revertible(func() error { return hook(ctx, l) }); err != nil {
			l.logger.Warn("Queued transaction reverted", zap.Int("index", i), zap.Error(err))
		}
	}

	err := l.revertible(func() error { return fn(ctx) })
	if err != nil {
		l.logger.Debug("Transaction reverted", zap.Uint64("block", l.Block()), zap.Error(err))
	}
	return err
}

// BeforeNextTx queues hook to run ahead of the next Atomic body, the way a
// competing transaction lands first in a block.
func (l *Ledger) BeforeNextTx(hook Hook) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.hooks = append(l.hooks, hook)
}

// revertible restores the pre-call state if fn fails
func (l *Ledger) revertible(fn func() error) error {
	l.mu.RLock()
	snapshot := l.state.clone()
	l.mu.RUnlock()

	if err := fn(); err != nil {
		l.mu.Lock()
		l.state = snapshot
		l.mu.Unlock()
		return err
	}
	return nil
}

// RegisterCallee routes flash-swap callbacks addressed to addr
func (l *Ledger) RegisterCallee(addr common.Address, callee dex.FlashSwapCallee) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.callees[addr] = callee
}

func (l *Ledger) callee(addr common.Address) dex.FlashSwapCallee {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.callees[addr]
}

// NativeBalance returns the ETH balance of owner
func (l *Ledger) NativeBalance(ctx context.Context, owner common.Address) (*uint256.Int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return balanceOf(l.state.native, owner), nil
}

// TokenBalance returns owner's balance of token
func (l *Ledger) TokenBalance(token, owner common.Address) *uint256.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return balanceOf(l.state.balances[token], owner)
}

// SetNativeBalance overwrites the ETH balance of owner
func (l *Ledger) SetNativeBalance(owner common.Address, amount *uint256.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state.native[owner] = amount.Clone()
}

// DeployToken registers a plain token contract
func (l *Ledger) DeployToken(token common.Address) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.state.balances[token]; !ok {
		l.state.balances[token] = make(map[common.Address]*uint256.Int)
		l.state.allowances[token] = make(map[allowanceKey]*uint256.Int)
	}
}

// DeployWETH registers a wrapped native asset contract
func (l *Ledger) DeployWETH(weth common.Address) {
	l.DeployToken(weth)
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state.weth[weth] = true
}

// Mint credits amount of token to owner
func (l *Ledger) Mint(token, owner common.Address, amount *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	holders, ok := l.state.balances[token]
	if !ok {
		return fmt.Errorf("token %s not deployed", token.Hex())
	}
	credit(holders, owner, amount)
	return nil
}

func balanceOf(m map[common.Address]*uint256.Int, owner common.Address) *uint256.Int {
	if b, ok := m[owner]; ok {
		return b.Clone()
	}
	return uint256.NewInt(0)
}

func credit(m map[common.Address]*uint256.Int, owner common.Address, amount *uint256.Int) {
	b, ok := m[owner]
	if !ok {
		b = uint256.NewInt(0)
		m[owner] = b
	}
	b.Add(b, amount)
}

func debit(m map[common.Address]*uint256.Int, owner common.Address, amount *uint256.Int, op string) error {
	b, ok := m[owner]
	if !ok {
		b = uint256.NewInt(0)
	}
	if b.Lt(amount) {
		return dex.NewAdapterError(dex.KindInsufficientBalance, op,
			fmt.Errorf("%s has %s, needs %s", owner.Hex(), b.Dec(), amount.Dec()))
	}
	if !ok {
		m[owner] = b
	}
	b.Sub(b, amount)
	return nil
}

func (l *Ledger) moveToken(token, from, to common.Address, amount *uint256.Int, op string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	holders, ok := l.state.balances[token]
	if !ok {
		return dex.NewAdapterError(dex.KindMisconfigured, op, fmt.Errorf("token %s not deployed", token.Hex()))
	}
	if err := debit(holders, from, amount, op); err != nil {
		return err
	}
	credit(holders, to, amount)
	return nil
}

func (l *Ledger) moveNative(from, to common.Address, amount *uint256.Int, op string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := debit(l.state.native, from, amount, op); err != nil {
		return err
	}
	credit(l.state.native, to, amount)
	return nil
}

// Session returns views of every contract that act on behalf of account
func (l *Ledger) Session(account common.Address) *Session {
	return &Session{ledger: l, caller: account}
}

// Session is an account's handle on the ledger
type Session struct {
	ledger *Ledger
	caller common.Address
}

// Account returns the acting address
func (s *Session) Account() common.Address {
	return s.caller
}

// InvokeCallback calls target's flash-swap callback directly from this
// account, as an arbitrary contract could.
func (s *Session) InvokeCallback(ctx context.Context, target common.Address, amount0, amount1 *uint256.Int, data []byte) error {
	callee := s.ledger.callee(target)
	if callee == nil {
		return dex.NewAdapterError(dex.KindReverted, "callback", fmt.Errorf("no callee at %s", target.Hex()))
	}
	return s.ledger.revertible(func() error {
		return callee.OnVenueCallback(ctx, s.caller, s.caller, amount0, amount1, data)
	})
}
