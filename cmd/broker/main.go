package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/relaymesh/aibroker/cmd/broker/commands"
	"github.com/relaymesh/aibroker/internal/config"
	"github.com/relaymesh/aibroker/internal/logger"
)

var (
	cfgPath    string
	outputJSON bool
)

func main() {
	defer logger.Sync()

	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "broker",
		Short: "Cost-aware AI request broker",
		Long: `broker routes generation requests to the cheapest capable model,
caches responses, and enforces per-tier monthly budgets.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
	}

	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "directory containing config.yaml")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "output in JSON format")

	rootCmd.AddCommand(commands.NewTestProvidersCommand())
	rootCmd.AddCommand(commands.NewBudgetCommand())
	rootCmd.AddCommand(commands.NewCacheCommand())
	rootCmd.AddCommand(commands.NewVersionCommand())

	return rootCmd
}

func initConfig() error {
	// .env is optional; real deployments use environment variables.
	_ = godotenv.Load()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.Initialize(cfg.Logging)
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}

	commands.SetConfig(cfg)
	commands.SetLogger(log)
	commands.SetOutputJSON(outputJSON)
	return nil
}
