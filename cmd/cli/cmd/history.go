package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stelzch/allreduce/internal/repository"
)

var (
	historyLimit int
	historyFile  string
)

// historyCmd lists persisted run records.
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List persisted reduction runs",
	RunE:  runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum number of runs to list")
	historyCmd.Flags().StringVarP(&historyFile, "file", "f", "", "Only list runs of this input file")
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx := runContext(cmd)

	db, err := repository.NewGormDB(&cfg.Database)
	if err != nil {
		return err
	}
	repo := repository.NewGormRunRepository(db)

	var records []*repository.RunRecord
	if historyFile != "" {
		records, err = repo.RunsForFile(ctx, historyFile, historyLimit)
	} else {
		records, err = repo.RecentRuns(ctx, historyLimit)
	}
	if err != nil {
		return err
	}

	if len(records) == 0 {
		fmt.Println("no runs recorded")
		return nil
	}

	for _, r := range records {
		fmt.Printf("%s  %-9s n=%-10d m=%-4d sum=%.17g avg=%.1fµs (%s, %s)\n",
			r.CreateTime.Format("2006-01-02 15:04:05"),
			r.Strategy, r.NSummands, r.Ranks, r.Sum, r.AvgMicros, r.Mode, r.InputFile)
	}
	return nil
}
