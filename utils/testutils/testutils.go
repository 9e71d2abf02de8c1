// Package testutils builds simulated markets and orchestrators for tests.
package testutils

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/michaelpento.lv/candyarb/orchestrator"
	"github.com/michaelpento.lv/candyarb/simulator"
	"github.com/michaelpento.lv/candyarb/utils/apperror"
)

// Simulation is a scenario with an orchestrator trading as its arber
type Simulation struct {
	Scenario     *simulator.Scenario
	Orchestrator *orchestrator.Orchestrator
}

// NewSimulation deploys cfg and wires an orchestrator registered as the
// arber's flash-swap callee.
func NewSimulation(t *testing.T, cfg simulator.ScenarioConfig, settings orchestrator.Settings, opts ...orchestrator.Option) *Simulation {
	t.Helper()
	logger := zaptest.NewLogger(t)

	s, err := simulator.NewScenario(cfg, simulator.WithLogger(logger))
	require.NoError(t, err)

	session := s.Ledger.Session(s.Arber)
	opts = append([]orchestrator.Option{orchestrator.WithLogger(logger)}, opts...)
	o, err := orchestrator.New(context.Background(), orchestrator.Deps{
		Account: s.Arber,
		Ledger:  s.Ledger,
		V1:      session.Exchange(s.Exchange),
		V2:      session.Pair(s.Pair),
		WETH:    session.WETH(s.WETH),
		Token:   session.Token(s.Token),
	}, settings, opts...)
	require.NoError(t, err)
	s.Ledger.RegisterCallee(s.Arber, o)

	return &Simulation{Scenario: s, Orchestrator: o}
}

// AssertCode asserts that err carries code
func AssertCode(t *testing.T, err error, code apperror.Code) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, code, apperror.GetCode(err), "error: %v", err)
}
