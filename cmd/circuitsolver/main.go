package main

import (
	"log"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/edp1096/circuitsolver/internal/config"
)

var (
	configPath string
	formatFlag string
	logLevel   string
	dbPath     string
	seed       uint64

	cfg    config.Config
	logger *slog.Logger

	rootCmd = &cobra.Command{
		Use:   "circuitsolver",
		Short: "Find the DC operating point of circuits with ideal and real diodes",
		Long: `circuitsolver reads a circuit as a SPICE netlist, JSON, YAML or the
binary graph format, solves every node voltage and branch current, and
writes the solved circuit back out.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load(configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("log-level") {
				cfg.Log.Level = logLevel
			}
			if cmd.Flags().Changed("db") {
				cfg.Store.Path = dbPath
			}
			if cmd.Flags().Changed("seed") {
				cfg.Analysis.Seed = seed
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			logger = cfg.NewLogger(os.Stderr)
			slog.SetDefault(logger)
			return nil
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (YAML or JSON)")
	rootCmd.PersistentFlags().StringVar(&formatFlag, "format", "",
		"Input format: spice, json, yaml, binary (default: from file extension)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite file to record solves in")
	rootCmd.PersistentFlags().Uint64Var(&seed, "seed", 0, "Seed for the initial guesses")

	rootCmd.AddCommand(solveCmd, sweepCmd, convertCmd, serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error: %v", err)
	}
}
