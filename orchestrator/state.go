package orchestrator

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/michaelpento.lv/candyarb/types"
	"github.com/michaelpento.lv/candyarb/utils/apperror"
	"github.com/michaelpento.lv/candyarb/utils/metrics"
)

// State is a step of one arbitrage attempt
type State uint8

const (
	Idle State = iota
	Sizing
	ExecutingLeg1
	AwaitingCallback
	ExecutingLeg2
	Settled
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Sizing:
		return "sizing"
	case ExecutingLeg1:
		return "executing_leg1"
	case AwaitingCallback:
		return "awaiting_callback"
	case ExecutingLeg2:
		return "executing_leg2"
	case Settled:
		return "settled"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// Terminal reports whether no further transition is possible
func (s State) Terminal() bool {
	return s == Settled || s == Failed
}

// transitions lists every allowed move. Failed is reachable from any
// non-terminal state and is handled separately.
var transitions = map[State][]State{
	Idle:             {Sizing},
	Sizing:           {ExecutingLeg1},
	ExecutingLeg1:    {AwaitingCallback, ExecutingLeg2},
	AwaitingCallback: {ExecutingLeg2},
	ExecutingLeg2:    {Settled},
}

// CanTransition reports whether from -> to is allowed
func CanTransition(from, to State) bool {
	if from.Terminal() {
		return false
	}
	if to == Failed {
		return true
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// attempt is the state machine of a single Run
type attempt struct {
	mu      sync.Mutex
	id      uint64
	state   State
	history []State
	plan    *types.ExecutionPlan

	logger  *zap.Logger
	metrics *metrics.ArbitrageMetrics
}

func newAttempt(id uint64, logger *zap.Logger, m *metrics.ArbitrageMetrics) *attempt {
	return &attempt{
		id:      id,
		state:   Idle,
		history: []State{Idle},
		logger:  logger.With(zap.Uint64("attempt", id)),
		metrics: m,
	}
}

func (a *attempt) to(next State) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !CanTransition(a.state, next) {
		return apperror.Newf(apperror.CodeInvalidState, "%s -> %s", a.state, next)
	}
	a.logger.Debug("State transition", zap.Stringer("from", a.state), zap.Stringer("to", next))
	a.state = next
	a.history = append(a.history, next)
	if a.metrics != nil {
		a.metrics.Transitions.WithLabelValues(next.String()).Inc()
	}
	return nil
}

func (a *attempt) current() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *attempt) transitions() []State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]State(nil), a.history...)
}

func (a *attempt) setPlan(plan *types.ExecutionPlan) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.plan = plan
}

func (a *attempt) currentPlan() *types.ExecutionPlan {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.plan
}
