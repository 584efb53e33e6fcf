package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/stelzch/allreduce/internal/distribution"
	apperrors "github.com/stelzch/allreduce/pkg/errors"
)

// planCmd compares partition strategies without running a reduction.
var planCmd = &cobra.Command{
	Use:   "plan <summands> <ranks> [variance]",
	Short: "Compare distribution strategies for a given problem size",
	Long: `plan evaluates the even split, the subtree-aligned split and the
planner's optimum for the given problem size, printing the cost-model
score, the rank intersection count and the critical-path estimate of each.`,
	Args: cobra.RangeArgs(2, 3),
	RunE: runPlan,
}

func init() {
	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
	n, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeUsageError, "summand count", err)
	}
	ranks, err := strconv.Atoi(args[1])
	if err != nil {
		return apperrors.Wrap(apperrors.CodeUsageError, "rank count", err)
	}

	variance := 1.0
	if len(args) == 3 {
		variance, err = strconv.ParseFloat(args[2], 64)
		if err != nil {
			return apperrors.Wrap(apperrors.CodeUsageError, "variance", err)
		}
	}

	cost := costModel()

	even, err := distribution.Even(n, ranks)
	if err != nil {
		return err
	}
	printPlan("even", even, cost)

	aligned, err := distribution.LsbCleared(n, ranks, variance)
	if err != nil {
		return err
	}
	printPlan(fmt.Sprintf("lsb_cleared(%g)", variance), aligned, cost)

	optimal, err := distribution.Optimal(n, ranks, cost, cfg.Planner.VarianceStep)
	if err != nil {
		return err
	}
	printPlan("optimal", optimal, cost)

	return nil
}

func printPlan(name string, d *distribution.Distribution, cost distribution.CostModel) {
	fmt.Printf("%s: score=%.1f ns (%d messages), critical path %.1f ns\n",
		name, d.Score(cost), d.RankIntersectionCount(),
		distribution.NewCriticalPath(d, cost).Time())

	if d.Ranks <= 16 {
		fmt.Printf("  %s\n", d)
	}
}
