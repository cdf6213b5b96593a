package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cognicore/graphmind/internal/logging"
	"github.com/cognicore/graphmind/pkg/graphmind"
	"github.com/cognicore/graphmind/pkg/graphmind/config"
)

var (
	// Global flags
	configPath     string
	knowledgePaths []string
	verbose        bool
	timeout        time.Duration

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "graphmind",
	Short: "Query a knowledge graph with rule-based inference",
	Long: `graphmind loads a typed knowledge graph and its inference rules from YAML
documents and answers patterns over it, folding in every fact the rules derive.

Example:
  graphmind query --knowledge examples/geo/knowledge.yaml --pattern examples/geo/query.yaml --materialize`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Default()
		if configPath != "" {
			loaded, err := config.Load(configPath)
			if err != nil {
				return err
			}
			cfg = *loaded
		}
		if verbose {
			cfg.Logging.Level = "debug"
		}
		var err error
		logger, err = logging.New(cfg.Logging)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Configuration file (YAML)")
	rootCmd.PersistentFlags().StringSliceVarP(&knowledgePaths, "knowledge", "k", nil, "Knowledge document to load (repeatable)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", time.Minute, "Operation timeout")

	rootCmd.AddCommand(queryCmd, pathCmd, rulesCmd, aggregateCmd)
}

// open loads configuration and knowledge into a ready facade.
func open(ctx context.Context) (*graphmind.Graphmind, error) {
	l := &config.Loader{ConfigPath: configPath, KnowledgePaths: knowledgePaths}
	return graphmind.Open(ctx, l, logger)
}

// commandContext bounds a command by the timeout flag and interrupts.
func commandContext() (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	return ctx, func() {
		cancel()
		stop()
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
