package cmd

import (
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/candyarb/journal"
	"github.com/michaelpento.lv/candyarb/orchestrator"
	"github.com/michaelpento.lv/candyarb/simulator"
	"github.com/michaelpento.lv/candyarb/types"
	"github.com/michaelpento.lv/candyarb/utils"
	"github.com/michaelpento.lv/candyarb/utils/metrics"
)

var frontRunner = common.HexToAddress("0x000000000000000000000000000000000000f00d")

var (
	simShape        string
	simBorrowTokens string
	simJournal      string
	simRetries      int
	simV1Tokens     string
	simV2Tokens     string
	simFrontRun     string
	simMetrics      bool
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run one arbitrage attempt against a simulated two-venue market",
	Long: `simulate deploys a V1 exchange holding 10 ETH and a V2 pair holding 10 WETH,
seeds them with tokens and runs the orchestrator once as a funded trader.

With --borrow-tokens it instead flash-borrows exactly that many tokens from
the pair, sells them on V1 and repays the pair in WETH.`,
	RunE: runSimulate,
}

func init() {
	f := simulateCmd.Flags()
	f.StringVar(&simShape, "shape", "", "execution shape: auto, direct or borrow (default from config)")
	f.StringVar(&simBorrowTokens, "borrow-tokens", "", "flash-borrow exactly this many tokens instead of sizing")
	f.StringVar(&simJournal, "journal", "", "record the attempt in this sqlite journal")
	f.IntVar(&simRetries, "retries", -1, "re-run after slippage or deadline failures (default from config)")
	f.StringVar(&simV1Tokens, "v1-tokens", "1000", "tokens held by the V1 exchange")
	f.StringVar(&simV2Tokens, "v2-tokens", "2000", "tokens held by the V2 pair")
	f.StringVar(&simFrontRun, "front-run", "", "ETH another trader sells on the V2 pair just before execution")
	f.BoolVar(&simMetrics, "metrics", false, "print counters and gauges after the attempt")
}

func runSimulate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	log := utils.GetLogger()

	if simShape != "" {
		cfg.Shape = simShape
	}
	settings, err := cfg.Settings()
	if err != nil {
		return err
	}

	scenario := simulator.DefaultScenarioConfig()
	scenario.FeeV1, scenario.FeeV2 = settings.FeeV1, settings.FeeV2
	if scenario.V1Tokens, err = utils.ParseEther(simV1Tokens); err != nil {
		return err
	}
	if scenario.V2Tokens, err = utils.ParseEther(simV2Tokens); err != nil {
		return err
	}

	s, err := simulator.NewScenario(scenario, simulator.WithLogger(log))
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	opts := []orchestrator.Option{
		orchestrator.WithLogger(log),
		orchestrator.WithMetrics(metrics.NewArbitrageMetrics("candyarb", reg)),
	}
	if simJournal != "" {
		store, err := journal.Open(simJournal, log)
		if err != nil {
			return err
		}
		defer store.Close()
		opts = append(opts, orchestrator.WithRecorder(store))
	}

	session := s.Ledger.Session(s.Arber)
	o, err := orchestrator.New(ctx, orchestrator.Deps{
		Account: s.Arber,
		Ledger:  s.Ledger,
		V1:      session.Exchange(s.Exchange),
		V2:      session.Pair(s.Pair),
		WETH:    session.WETH(s.WETH),
		Token:   session.Token(s.Token),
	}, settings, opts...)
	if err != nil {
		return err
	}
	s.Ledger.RegisterCallee(s.Arber, o)
	reg.MustRegister(o.Guard().Collectors()...)

	if simFrontRun != "" {
		amount, err := utils.ParseEther(simFrontRun)
		if err != nil {
			return err
		}
		s.Ledger.SetNativeBalance(frontRunner, amount)
		s.FrontRun(frontRunner, types.VenueV2, true, amount)
	}

	var res *orchestrator.Result
	switch {
	case simBorrowTokens != "":
		tokens, perr := utils.ParseEther(simBorrowTokens)
		if perr != nil {
			return perr
		}
		res, err = o.ExecuteBorrow(ctx, tokens)
	default:
		retries := simRetries
		if retries < 0 {
			retries = cfg.MaxRetries
		}
		res, err = o.RunWithRetry(ctx, retries)
	}

	printResult(cmd.OutOrStdout(), res)
	if simMetrics {
		if merr := printMetrics(cmd.OutOrStdout(), reg); merr != nil {
			log.Warn("Failed to gather metrics", zap.Error(merr))
		}
	}
	if err != nil {
		log.Debug("Simulated attempt failed", zap.Error(err))
		return err
	}
	return nil
}

func printResult(w io.Writer, res *orchestrator.Result) {
	if res == nil {
		return
	}
	fmt.Fprintf(w, "attempt:     %d\n", res.Attempt)
	fmt.Fprintf(w, "state:       %s\n", res.State)
	if res.Reason != "" {
		fmt.Fprintf(w, "reason:      %s\n", res.Reason)
	}
	if opp := res.Opportunity; opp != nil {
		fmt.Fprintf(w, "direction:   %s\n", opp.Direction)
		fmt.Fprintf(w, "input:       %s ETH (%s wei)\n", utils.FormatEtherU256(opp.InputAmount), opp.InputAmount.Dec())
		fmt.Fprintf(w, "expected:    %s ETH (%s wei)\n", utils.FormatEther(opp.ExpectedProfit), opp.ExpectedProfit)
	}
	if res.Plan != nil {
		fmt.Fprintf(w, "shape:       %s\n", res.Plan.Shape)
	}
	if res.RealizedProfit != nil {
		fmt.Fprintf(w, "realized:    %s ETH (%s wei)\n", utils.FormatEther(res.RealizedProfit), res.RealizedProfit)
	}
	fmt.Fprintf(w, "transitions: %v\n", res.Transitions)
}

// printMetrics writes every counter and gauge sample in reg
func printMetrics(w io.Writer, reg *prometheus.Registry) error {
	families, err := reg.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			var value float64
			switch {
			case m.GetCounter() != nil:
				value = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				value = m.GetGauge().GetValue()
			default:
				continue
			}
			labels := make([]string, 0, len(m.GetLabel()))
			for _, l := range m.GetLabel() {
				labels = append(labels, l.GetName()+"="+l.GetValue())
			}
			fmt.Fprintf(w, "%s%v %g\n", mf.GetName(), labels, value)
		}
	}
	return nil
}
