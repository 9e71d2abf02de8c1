package cmd

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/michaelpento.lv/candyarb/cmd/bot"
	"github.com/michaelpento.lv/candyarb/config"
	"github.com/michaelpento.lv/candyarb/gas"
	"github.com/michaelpento.lv/candyarb/journal"
	"github.com/michaelpento.lv/candyarb/simulator"
	"github.com/michaelpento.lv/candyarb/utils/metrics"
)

func TestWatchLoopJournalsOpportunity(t *testing.T) {
	logger := zaptest.NewLogger(t)
	s, err := simulator.NewScenario(simulator.DefaultScenarioConfig(), simulator.WithLogger(logger))
	require.NoError(t, err)

	conf := config.DefaultConfig()
	conf.Contracts.Account = s.Arber.Hex()
	session := s.Ledger.Session(s.Arber)
	b, err := bot.New(conf, bot.Sources{
		V1:    session.Exchange(s.Exchange),
		V2:    session.Pair(s.Pair),
		Clock: s.Ledger,
	}, gas.NewEstimator(nil, logger), logger, metrics.NewArbitrageMetrics("test_watch", prometheus.NewRegistry()))
	require.NoError(t, err)

	store, err := journal.Open(filepath.Join(t.TempDir(), "watch.db"), logger)
	require.NoError(t, err)
	defer store.Close()
	b.SetRecorder(store)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- watchLoop(ctx, b, time.Hour) }()

	// the first tick runs immediately
	var entries []journal.Entry
	require.Eventually(t, func() bool {
		entries, err = store.List(context.Background(), 0)
		return err == nil && len(entries) == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watch loop did not stop")
	}

	e := entries[0]
	assert.Equal(t, journal.StateQuoted, e.State)
	assert.Equal(t, "borrow", e.Shape)
	assert.Equal(t, "buy@v1/sell@v2", e.Direction)
	assert.Equal(t, "1373428641589349758", e.InputWei.String())
	assert.Equal(t, "563065806062303385", e.ExpectedWei.String())
}

func TestWatchLoopRejectsBadInterval(t *testing.T) {
	s, err := simulator.NewScenario(simulator.DefaultScenarioConfig())
	require.NoError(t, err)
	session := s.Ledger.Session(s.Arber)
	b, err := bot.New(config.DefaultConfig(), bot.Sources{
		V1:    session.Exchange(s.Exchange),
		V2:    session.Pair(s.Pair),
		Clock: s.Ledger,
	}, gas.NewEstimator(nil, nil), nil, nil)
	require.NoError(t, err)

	assert.Error(t, watchLoop(context.Background(), b, 0))
}
