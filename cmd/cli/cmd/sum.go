package cmd

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/stelzch/allreduce/internal/cluster"
	"github.com/stelzch/allreduce/internal/distribution"
	"github.com/stelzch/allreduce/internal/parser/psllh"
	"github.com/stelzch/allreduce/internal/repository"
	"github.com/stelzch/allreduce/internal/statistics"
	"github.com/stelzch/allreduce/internal/storage"
	"github.com/stelzch/allreduce/internal/summation"
	"github.com/stelzch/allreduce/internal/transport"
	apperrors "github.com/stelzch/allreduce/pkg/errors"
	"github.com/stelzch/allreduce/pkg/telemetry"
	"github.com/stelzch/allreduce/pkg/utils"
)

func runReduction(cmd *cobra.Command, args []string) error {
	log := GetLogger()
	ctx := runContext(cmd)

	if inputFile == "" {
		return apperrors.New(apperrors.CodeUsageError, "input file is required (-f)")
	}

	kindName, err := selectedKindName()
	if err != nil {
		return err
	}
	kind, err := summation.ParseKind(kindName)
	if err != nil {
		return err
	}
	if repetitions < 1 {
		return apperrors.Newf(apperrors.CodeUsageError, "repetitions must be positive, got %d", repetitions)
	}

	values, err := loadInput(ctx, log)
	if err != nil {
		return err
	}
	log.Info("Loaded %d summands from %s", len(values), inputFile)

	if maxSummands > 0 && maxSummands < uint64(len(values)) {
		values = values[:maxSummands]
		log.Debug("Capped input to %d summands", maxSummands)
	}
	n := uint64(len(values))

	ranks := maxRanks
	if ranks <= 0 {
		ranks = runtime.GOMAXPROCS(0)
	}
	if uint64(ranks) > n {
		ranks = int(n)
	}

	dist, err := buildDistribution(n, ranks)
	if err != nil {
		return err
	}
	log.Debug("Distribution %s with %d rank intersections, score %.1f ns",
		dist, dist.RankIntersectionCount(), dist.Score(costModel()))

	ctx, span := telemetry.StartRun(ctx, kindName, n, ranks)
	defer span.End()

	result, summary, stats, err := execute(ctx, kind, dist, values)
	if err != nil {
		return err
	}

	fmt.Printf("sum=%.64f\n", result)
	for _, line := range summary.Lines() {
		fmt.Println(line)
	}

	if verbose {
		for rank, s := range stats {
			log.Info("rank %d: sentMessages=%d awaitedMessages=%d sentSummands=%d",
				rank, s.SentMessages, s.AwaitedMessages, s.SentSummands)
		}
	}

	if storeRun {
		if err := persistRun(ctx, dist, kindName, result, summary); err != nil {
			return err
		}
		log.Info("Run record stored")
	}

	return nil
}

// loadInput reads the summand file, fetching it from object storage first
// when the path carries the cos:// prefix.
func loadInput(ctx context.Context, log utils.Logger) ([]float64, error) {
	path := inputFile

	if key, ok := strings.CutPrefix(inputFile, "cos://"); ok {
		store, err := storage.New(&cfg.Storage)
		if err != nil {
			return nil, err
		}

		path = filepath.Join(os.TempDir(), filepath.Base(key))
		log.Info("Fetching cos://%s to %s", key, path)
		if err := store.FetchFile(ctx, key, path); err != nil {
			return nil, err
		}
	}

	return psllh.Read(path)
}

func costModel() distribution.CostModel {
	return distribution.CostModel{
		TSend: cfg.Planner.TSendNs,
		TAdd:  cfg.Planner.TAddNs,
	}
}

// buildDistribution parses the -c mode into a partition of n over ranks.
func buildDistribution(n uint64, ranks int) (*distribution.Distribution, error) {
	mode, arg, _ := strings.Cut(distMode, ",")

	switch mode {
	case "even":
		return distribution.Even(n, ranks)
	case "even_last":
		return distribution.EvenRemainderOnLast(n, ranks)
	case "optimal":
		return distribution.Optimal(n, ranks, costModel(), cfg.Planner.VarianceStep)
	case "optimized":
		variance, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CodeUsageError, "optimized variance", err)
		}
		return distribution.LsbCleared(n, ranks, variance)
	case "manual":
		return distribution.Manual(n, ranks, arg)
	default:
		return nil, apperrors.Newf(apperrors.CodeUsageError, "unknown distribution mode: %s", distMode)
	}
}

// execute runs the collective reduction and returns rank 0's view.
func execute(ctx context.Context, kind summation.Kind, dist *distribution.Distribution, values []float64) (float64, statistics.Summary, []summation.Stats, error) {
	var (
		mu     sync.Mutex
		result float64
		stats  = make([]summation.Stats, dist.Ranks)
		watch  *utils.Stopwatch
	)

	err := cluster.Run(ctx, dist.Ranks, func(ctx context.Context, tp transport.Transport) error {
		utils.AttachDebugger(tp.Rank() == debugRank, GetLogger())

		s, err := summation.New(kind, dist, tp, summation.Options{
			FlushThreshold: cfg.Reduction.FlushThreshold,
			Logger:         GetLogger(),
		})
		if err != nil {
			return err
		}

		var input []float64
		if tp.Rank() == 0 {
			input = values
		}
		if err := s.Distribute(input); err != nil {
			return err
		}

		// Rank 0 times the collective; the broadcast at the end of every
		// accumulation keeps the other ranks in step.
		var sw *utils.Stopwatch
		if tp.Rank() == 0 {
			sw = utils.NewStopwatch()
		}

		var sum float64
		for rep := 0; rep < repetitions; rep++ {
			if sw != nil {
				sw.Start()
			}
			sum, err = s.Accumulate()
			if err != nil {
				return err
			}
			if sw != nil {
				sw.Stop()
			}
		}

		mu.Lock()
		defer mu.Unlock()
		stats[tp.Rank()] = s.Stats()
		if tp.Rank() == 0 {
			result = sum
			watch = sw
		}
		return nil
	})
	if err != nil {
		return 0, statistics.Summary{}, nil, err
	}

	return result, statistics.Summarize(watch.Durations()), stats, nil
}

func persistRun(ctx context.Context, dist *distribution.Distribution, kindName string, result float64, summary statistics.Summary) error {
	db, err := repository.NewGormDB(&cfg.Database)
	if err != nil {
		return err
	}

	record := &repository.RunRecord{
		InputFile:    inputFile,
		Strategy:     kindName,
		Mode:         distMode,
		NSummands:    dist.N,
		Ranks:        dist.Ranks,
		Sum:          result,
		SumBits:      fmt.Sprintf("%#016x", math.Float64bits(result)),
		Repetitions:  repetitions,
		AvgMicros:    summary.Avg,
		StddevMicros: summary.StdDev,
	}

	micros := make([]float64, len(summary.Durations))
	for i, d := range summary.Durations {
		micros[i] = float64(d.Nanoseconds()) / 1e3
	}
	if err := record.SetDurations(micros); err != nil {
		return apperrors.Wrap(apperrors.CodeDatabaseError, "encode durations", err)
	}

	return repository.NewGormRunRepository(db).SaveRun(ctx, record)
}
