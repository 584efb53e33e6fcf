// Package cmd implements the command-line driver.
package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/stelzch/allreduce/pkg/config"
	apperrors "github.com/stelzch/allreduce/pkg/errors"
	"github.com/stelzch/allreduce/pkg/telemetry"
	"github.com/stelzch/allreduce/pkg/utils"
)

var (
	// Global flags
	verbose    bool
	configPath string
	logger     utils.Logger

	// Reduction flags
	inputFile    string
	useTree      bool
	useAllreduce bool
	useBaseline  bool
	useReproblas bool
	useKahan     bool
	repetitions  int
	distMode     string
	maxSummands  uint64
	maxRanks     int
	debugRank    int
	storeRun     bool

	cfg               *config.Config
	telemetryShutdown telemetry.ShutdownFunc
)

// rootCmd carries the reduction itself; subcommands cover planning and
// run history.
var rootCmd = &cobra.Command{
	Use:   "allreduce -f FILE (--tree|--allreduce|--baseline|--reproblas|--kahan)",
	Short: "Reproducible distributed summation",
	Long: `allreduce sums a vector of doubles across a set of ranks.

The tree strategy binds the summation to a fixed binary accumulation tree
over the input indices, which makes the result bit-for-bit reproducible and
independent of how many ranks participate. The remaining strategies are
baselines for comparison runs.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}

		logLevel := utils.ParseLogLevel(cfg.Log.Level)
		if verbose {
			logLevel = utils.LevelDebug
		}
		logger = utils.NewDefaultLogger(logLevel, os.Stderr)
		utils.SetGlobalLogger(logger)

		telemetryShutdown, err = telemetry.Init(cmd.Context())
		return err
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if telemetryShutdown != nil {
			return telemetryShutdown(cmd.Context())
		}
		return nil
	},
	RunE: runReduction,
}

// Execute runs the driver. Configuration and usage failures exit with -1.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(-1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Configuration file path")

	rootCmd.Flags().StringVarP(&inputFile, "file", "f", "", "Input summand file, .psllh or .binpsllh (cos://KEY fetches from object storage)")

	rootCmd.Flags().BoolVar(&useTree, "tree", false, "Use the reproducible tree reduction")
	rootCmd.Flags().BoolVar(&useAllreduce, "allreduce", false, "Use local sums combined by one allreduce")
	rootCmd.Flags().BoolVar(&useBaseline, "baseline", false, "Gather everything on rank 0 and sum naively")
	rootCmd.Flags().BoolVar(&useReproblas, "reproblas", false, "Use the reproducible wide-accumulator baseline")
	rootCmd.Flags().BoolVar(&useKahan, "kahan", false, "Use compensated local summation")

	rootCmd.Flags().IntVarP(&repetitions, "repeat", "r", 1, "Repeat the reduction N times")
	rootCmd.Flags().StringVarP(&distMode, "distribution", "c", "even",
		"Distribution mode: even, even_last, optimal, optimized,<variance>, manual,n0,n1,…")
	rootCmd.Flags().Uint64VarP(&maxSummands, "summands", "n", 0, "Cap the number of summands (0 = all)")
	rootCmd.Flags().IntVarP(&maxRanks, "ranks", "m", 0, "Cap the number of ranks (0 = GOMAXPROCS)")
	rootCmd.Flags().IntVarP(&debugRank, "debug", "d", -1, "Wait for a debugger on the given rank")
	rootCmd.Flags().BoolVar(&storeRun, "store", false, "Persist the run record to the results database")

	binName := BinName()
	rootCmd.Example = `  # Reproducible tree reduction over all cores
  ` + binName + ` -f data/fusob.psllh --tree

  # Compare against the naive baseline, 10 repetitions on 4 ranks
  ` + binName + ` -f data/fusob.psllh --baseline -r 10 -m 4

  # Planner-optimised partition with explicit variance
  ` + binName + ` -f data/fusob.binpsllh --tree -c optimized,0.2

  # Inspect partitions without running a reduction
  ` + binName + ` plan 21410970 256 0.5`
}

// GetLogger returns the logger configured for this invocation.
func GetLogger() utils.Logger {
	if logger == nil {
		return utils.GetGlobalLogger()
	}
	return logger
}

// BinName returns the name this binary was invoked as.
func BinName() string {
	return filepath.Base(os.Args[0])
}

// selectedKindName maps the strategy flags onto a single name, rejecting
// anything but exactly one selection.
func selectedKindName() (string, error) {
	selected := make([]string, 0, 5)
	for name, flag := range map[string]bool{
		"tree":      useTree,
		"allreduce": useAllreduce,
		"baseline":  useBaseline,
		"reproblas": useReproblas,
		"kahan":     useKahan,
	} {
		if flag {
			selected = append(selected, name)
		}
	}

	switch len(selected) {
	case 1:
		return selected[0], nil
	case 0:
		return "", apperrors.New(apperrors.CodeUsageError,
			"select a strategy: --tree, --allreduce, --baseline, --reproblas or --kahan")
	default:
		return "", apperrors.Newf(apperrors.CodeUsageError,
			"strategies are mutually exclusive, got %d", len(selected))
	}
}

func runContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
