package arbitrage

import (
	"time"

	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/candyarb/types"
	"github.com/michaelpento.lv/candyarb/utils/metrics"
)

// Sizer applies FindOptimalArbitrage to fresh snapshots with per-venue fees and
// a minimum profit threshold.
type Sizer struct {
	feeV1     types.FeeSchedule
	feeV2     types.FeeSchedule
	minProfit *uint256.Int
	logger    *zap.Logger
	metrics   *metrics.ArbitrageMetrics
}

// NewSizer creates a sizer. A nil minProfit accepts any positive profit.
func NewSizer(feeV1, feeV2 types.FeeSchedule, minProfit *uint256.Int, logger *zap.Logger, m *metrics.ArbitrageMetrics) *Sizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if minProfit == nil {
		minProfit = uint256.NewInt(0)
	}
	return &Sizer{
		feeV1:     feeV1,
		feeV2:     feeV2,
		minProfit: minProfit,
		logger:    logger,
		metrics:   m,
	}
}

// Size returns the opportunity for snapshot, or nil when there is none worth taking
func (s *Sizer) Size(snapshot types.MarketSnapshot) (*types.ArbitrageOpportunity, error) {
	start := time.Now()
	opp, err := FindOptimalArbitrage(snapshot.V1, snapshot.V2, s.feeV1, s.feeV2)
	if s.metrics != nil {
		s.metrics.SizingLatency.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		return nil, err
	}

	if opp == nil || opp.ExpectedProfit.Cmp(s.minProfit.ToBig()) < 0 {
		if s.metrics != nil {
			s.metrics.NoOpportunity.Inc()
		}
		s.logger.Debug("No opportunity",
			zap.Stringer("v1", snapshot.V1),
			zap.Stringer("v2", snapshot.V2),
			zap.Bool("below_min_profit", opp != nil),
		)
		return nil, nil
	}

	if s.metrics != nil {
		s.metrics.OpportunitiesSeen.Inc()
	}
	s.logger.Info("Opportunity sized",
		zap.Stringer("direction", opp.Direction),
		zap.String("input", opp.InputAmount.Dec()),
		zap.String("expected_output", opp.ExpectedOutput.Dec()),
		zap.String("expected_profit", opp.ExpectedProfit.String()),
		zap.Uint64("fingerprint", opp.Fingerprint),
	)
	return opp, nil
}
