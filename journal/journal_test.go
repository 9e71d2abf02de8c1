package journal

import (
	"context"
	"math/big"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/michaelpento.lv/candyarb/orchestrator"
	"github.com/michaelpento.lv/candyarb/simulator"
	"github.com/michaelpento.lv/candyarb/types"
	"github.com/michaelpento.lv/candyarb/utils/apperror"
	umath "github.com/michaelpento.lv/candyarb/utils/math"
	"github.com/michaelpento.lv/candyarb/utils/testutils"
)

func openMemory(t *testing.T) *Store {
	t.Helper()
	store, err := Open(":memory:", zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRecordAndList(t *testing.T) {
	store := openMemory(t)
	store.now = func() time.Time { return time.Unix(1_700_000_000, 0) }
	ctx := context.Background()

	settled := &orchestrator.Result{
		Attempt: 1,
		State:   orchestrator.Settled,
		Opportunity: &types.ArbitrageOpportunity{
			Direction:      types.Direction{BuyVenue: types.VenueV1, SellVenue: types.VenueV2},
			InputAmount:    umath.MustFromDecimal("1373428641589349758"),
			ExpectedProfit: big.NewInt(563065806062303385),
		},
		Plan:           &types.ExecutionPlan{Shape: types.ShapeBorrow},
		RealizedProfit: big.NewInt(563065806062303385),
		Transitions: []orchestrator.State{
			orchestrator.Idle, orchestrator.Sizing, orchestrator.ExecutingLeg1,
			orchestrator.AwaitingCallback, orchestrator.ExecutingLeg2, orchestrator.Settled,
		},
	}
	failed := &orchestrator.Result{
		Attempt:     2,
		State:       orchestrator.Failed,
		Reason:      apperror.CodeNoOpportunity,
		Transitions: []orchestrator.State{orchestrator.Idle, orchestrator.Sizing, orchestrator.Failed},
	}
	require.NoError(t, store.Record(ctx, settled))
	require.NoError(t, store.Record(ctx, failed))
	assert.Error(t, store.Record(ctx, nil))

	entries, err := store.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	// newest first
	assert.Equal(t, uint64(2), entries[0].Attempt)
	assert.Equal(t, "failed", entries[0].State)
	assert.Equal(t, string(apperror.CodeNoOpportunity), entries[0].Reason)
	assert.Equal(t, "0", entries[0].RealizedWei.String())
	assert.Equal(t, []string{"idle", "sizing", "failed"}, entries[0].Transitions)

	e := entries[1]
	assert.Equal(t, "settled", e.State)
	assert.Equal(t, "borrow", e.Shape)
	assert.Equal(t, "buy@v1/sell@v2", e.Direction)
	assert.Equal(t, "1373428641589349758", e.InputWei.String())
	assert.Equal(t, "563065806062303385", e.ExpectedWei.String())
	assert.Equal(t, "563065806062303385", e.RealizedWei.String())
	assert.Len(t, e.Transitions, 6)
	assert.Equal(t, int64(1_700_000_000), e.RecordedAt.Unix())

	limited, err := store.List(ctx, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, uint64(2), limited[0].Attempt)

	sum, err := store.Summarize(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.ByState["settled"])
	assert.Equal(t, 1, sum.ByState["failed"])
	assert.Equal(t, "563065806062303385", sum.RealizedWei.String())
}

func TestFileJournalPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "journal.db")
	ctx := context.Background()

	store, err := Open(path, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NoError(t, store.Record(ctx, &orchestrator.Result{Attempt: 7, State: orchestrator.Failed}))
	require.NoError(t, store.Close())

	reopened, err := Open(path, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer reopened.Close()

	entries, err := reopened.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, uint64(7), entries[0].Attempt)
}

func TestJournalsOrchestratorRuns(t *testing.T) {
	ctx := context.Background()
	store := openMemory(t)
	sim := testutils.NewSimulation(t, simulator.DefaultScenarioConfig(), orchestrator.DefaultSettings(),
		orchestrator.WithRecorder(store))

	first, err := sim.Orchestrator.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, orchestrator.Settled, first.State)

	// the market is balanced now
	_, err = sim.Orchestrator.Run(ctx)
	testutils.AssertCode(t, err, apperror.CodeNoOpportunity)

	entries, err := store.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "failed", entries[0].State)
	assert.Equal(t, string(apperror.CodeNoOpportunity), entries[0].Reason)
	assert.Equal(t, "settled", entries[1].State)
	assert.Equal(t, "563065806062303385", entries[1].RealizedWei.String())
}

func TestRecordQuote(t *testing.T) {
	store := openMemory(t)
	ctx := context.Background()

	opp := &types.ArbitrageOpportunity{
		Direction:      types.Direction{BuyVenue: types.VenueV1, SellVenue: types.VenueV2},
		InputAmount:    umath.MustFromDecimal("1373428641589349758"),
		ExpectedProfit: big.NewInt(563065806062303385),
	}
	require.NoError(t, store.RecordQuote(ctx, opp, types.ShapeBorrow))
	assert.Error(t, store.RecordQuote(ctx, &types.ArbitrageOpportunity{}, types.ShapeBorrow))

	entries, err := store.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, StateQuoted, entries[0].State)
	assert.Equal(t, "borrow", entries[0].Shape)
	assert.Equal(t, "563065806062303385", entries[0].ExpectedWei.String())
	assert.Equal(t, "0", entries[0].RealizedWei.String())
	assert.Empty(t, entries[0].Transitions)

	sum, err := store.Summarize(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.ByState[StateQuoted])
	assert.Equal(t, "0", sum.RealizedWei.String())
}
