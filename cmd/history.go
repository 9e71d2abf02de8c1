package cmd

import (
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/michaelpento.lv/candyarb/journal"
	"github.com/michaelpento.lv/candyarb/utils"
)

var (
	historyJournal string
	historyLimit   int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List journaled attempts",
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().StringVar(&historyJournal, "journal", "", "sqlite journal (default from config)")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "number of attempts to show, 0 for all")
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	path := historyJournal
	if path == "" {
		path = cfg.JournalPath
	}

	store, err := journal.Open(path, utils.GetLogger())
	if err != nil {
		return err
	}
	defer store.Close()

	entries, err := store.List(ctx, historyLimit)
	if err != nil {
		return err
	}
	sum, err := store.Summarize(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ATTEMPT\tSTATE\tREASON\tSHAPE\tDIRECTION\tEXPECTED (ETH)\tREALIZED (ETH)\tRECORDED")
	for _, e := range entries {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			e.Attempt, e.State, e.Reason, e.Shape, e.Direction,
			utils.FormatEther(e.ExpectedWei), utils.FormatEther(e.RealizedWei),
			e.RecordedAt.UTC().Format("2006-01-02 15:04:05"))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	states := make([]string, 0, len(sum.ByState))
	for st := range sum.ByState {
		states = append(states, st)
	}
	sort.Strings(states)
	fmt.Fprintln(cmd.OutOrStdout())
	for _, st := range states {
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d\n", st, sum.ByState[st])
	}
	fmt.Fprintf(cmd.OutOrStdout(), "total realized: %s ETH\n", utils.FormatEther(sum.RealizedWei))
	return nil
}
