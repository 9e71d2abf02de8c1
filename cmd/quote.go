package cmd

import (
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"

	"github.com/michaelpento.lv/candyarb/cmd/bot"
	"github.com/michaelpento.lv/candyarb/utils"
	"github.com/michaelpento.lv/candyarb/utils/metrics"
)

var quoteCalldata bool

var quoteCmd = &cobra.Command{
	Use:   "quote",
	Short: "Price the current opportunity between the configured live venues",
	Long: `quote reads both venues' reserves over JSON-RPC, sizes the optimal trade
and prints its expected profit net of gas. Nothing is signed or sent.`,
	RunE: runQuote,
}

func init() {
	quoteCmd.Flags().BoolVar(&quoteCalldata, "calldata", false, "print the unsigned calls that would execute the plan")
}

func runQuote(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	log := utils.GetLogger()

	b, closeClient, err := bot.Dial(ctx, cfg, log,
		metrics.NewArbitrageMetrics("candyarb", nil), metrics.NewRPCMetrics("candyarb", nil))
	if err != nil {
		return err
	}
	defer closeClient()

	q, err := b.Quote(ctx)
	if err != nil {
		return err
	}
	printQuote(cmd.OutOrStdout(), q, quoteCalldata)
	return nil
}

func printQuote(w io.Writer, q *bot.Quote, calldata bool) {
	opp := q.Opportunity
	fmt.Fprintf(w, "v1 reserves:  %s ETH / %s tokens\n", utils.FormatEtherU256(q.Snapshot.V1.Reference), utils.FormatEtherU256(q.Snapshot.V1.Token))
	fmt.Fprintf(w, "v2 reserves:  %s WETH / %s tokens\n", utils.FormatEtherU256(q.Snapshot.V2.Reference), utils.FormatEtherU256(q.Snapshot.V2.Token))
	fmt.Fprintf(w, "direction:    %s\n", opp.Direction)
	fmt.Fprintf(w, "shape:        %s\n", q.Plan.Shape)
	fmt.Fprintf(w, "input:        %s ETH (%s wei)\n", utils.FormatEtherU256(opp.InputAmount), opp.InputAmount.Dec())
	fmt.Fprintf(w, "gross profit: %s ETH\n", utils.FormatEther(opp.ExpectedProfit))
	fmt.Fprintf(w, "gas:          %d units, %s ETH\n", q.Net.GasUsed, utils.FormatEther(q.Net.GasCost.BigInt()))
	fmt.Fprintf(w, "net profit:   %s ETH\n", utils.FormatEther(q.Net.Net.BigInt()))

	if !calldata {
		return
	}
	for i, c := range q.Calls {
		fmt.Fprintf(w, "call %d: %s\n  to:    %s\n  value: %s\n  data:  %s\n",
			i, c.Description, c.To.Hex(), c.Value.Dec(), hexutil.Encode(c.Data))
	}
}
