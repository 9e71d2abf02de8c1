package cmd

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/candyarb/cmd/bot"
	"github.com/michaelpento.lv/candyarb/journal"
	"github.com/michaelpento.lv/candyarb/utils"
	"github.com/michaelpento.lv/candyarb/utils/metrics"
	"github.com/michaelpento.lv/candyarb/utils/monitor"
)

var (
	watchInterval   time.Duration
	watchListenAddr string
	watchJournal    string
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Poll the configured live venues and log new opportunities",
	RunE:  runWatch,
}

func init() {
	watchCmd.Flags().DurationVar(&watchInterval, "interval", 12*time.Second, "poll interval")
	watchCmd.Flags().StringVar(&watchListenAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")
	watchCmd.Flags().StringVar(&watchJournal, "journal", "", "journal each new opportunity to this sqlite file")
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	log := utils.GetLogger()

	b, closeClient, err := bot.Dial(ctx, cfg, log,
		metrics.NewArbitrageMetrics("candyarb", nil), metrics.NewRPCMetrics("candyarb", nil))
	if err != nil {
		return err
	}
	defer closeClient()

	if watchJournal != "" {
		store, err := journal.Open(watchJournal, log)
		if err != nil {
			return err
		}
		defer store.Close()
		b.SetRecorder(store)
	}

	if watchListenAddr != "" {
		srv := &http.Server{
			Addr:              watchListenAddr,
			Handler:           promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("Metrics server failed", zap.Error(err))
			}
		}()
		defer srv.Close()
	}

	mon := monitor.NewSystemMonitor(ctx, "candyarb", metrics.Registry(), watchInterval, log)
	defer mon.Cleanup()

	return watchLoop(ctx, b, watchInterval)
}

// watchLoop runs the bot's quote loop until ctx is done
func watchLoop(ctx context.Context, b *bot.Bot, interval time.Duration) error {
	if err := b.Start(ctx, interval); err != nil {
		return err
	}
	<-ctx.Done()
	b.Stop()
	return nil
}
