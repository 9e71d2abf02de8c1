package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/candyarb/config"
	"github.com/michaelpento.lv/candyarb/utils"
)

var (
	cfgFile string
	envFile string
	debug   bool

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "candyarb",
	Short: "Two-venue AMM arbitrage engine",
	Long: `candyarb sizes and executes arbitrage between a V1 single-token exchange
and a V2 constant-product pair trading the same token against ETH.

It runs trades against an in-process simulated ledger and quotes live
opportunities over JSON-RPC without signing anything.`,
	SilenceUsage:      true,
	PersistentPreRunE: initConfig,
}

func Execute() error {
	return rootCmd.Execute()
}

func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file, JSON or YAML (default is $HOME/.candyarb.json)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file with CANDYARB_* overrides")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(simulateCmd, quoteCmd, watchCmd, historyCmd)
}

func initConfig(cmd *cobra.Command, args []string) error {
	if err := config.LoadEnv(envFile); err != nil {
		utils.GetLogger().Warn("Failed to load env file", zap.String("path", envFile), zap.Error(err))
	}

	loaded, err := config.LoadConfig(cfgFile)
	if err != nil {
		return err
	}

	log, err := utils.InitLogger(loaded.Log.Options(debug || loaded.Debug))
	if err != nil {
		return err
	}
	loaded.Logger = log
	cfg = loaded
	return nil
}
