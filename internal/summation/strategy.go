// Package summation implements the distributed summation strategies.
//
// All strategies share the same lifecycle: construct with a distribution
// and a transport endpoint, scatter the input with Distribute, then run one
// or more Accumulate rounds. The tree strategy is the reproducible core;
// the others are baselines sharing the scatter step.
package summation

import (
	"github.com/stelzch/allreduce/internal/distribution"
	"github.com/stelzch/allreduce/internal/transport"
	apperrors "github.com/stelzch/allreduce/pkg/errors"
	"github.com/stelzch/allreduce/pkg/utils"
)

// Kind selects one of the fixed set of summation strategies.
type Kind int

const (
	// KindTree is the reproducible distributed tree reduction.
	KindTree Kind = iota
	// KindBaseline gathers everything on rank 0 and sums left to right.
	KindBaseline
	// KindAllreduce sums locally and combines with one allreduce.
	KindAllreduce
	// KindKahan sums locally with Kahan compensation.
	KindKahan
	// KindReproducible folds into exact wide accumulators before combining.
	KindReproducible
)

// String returns the strategy name as used on the command line.
func (k Kind) String() string {
	switch k {
	case KindTree:
		return "tree"
	case KindBaseline:
		return "baseline"
	case KindAllreduce:
		return "allreduce"
	case KindKahan:
		return "kahan"
	case KindReproducible:
		return "reproblas"
	default:
		return "unknown"
	}
}

// ParseKind maps a strategy name back to its Kind.
func ParseKind(name string) (Kind, error) {
	switch name {
	case "tree":
		return KindTree, nil
	case "baseline":
		return KindBaseline, nil
	case "allreduce":
		return KindAllreduce, nil
	case "kahan":
		return KindKahan, nil
	case "reproblas":
		return KindReproducible, nil
	default:
		return 0, apperrors.Newf(apperrors.CodeUsageError, "unknown strategy: %s", name)
	}
}

// Stats holds per-rank message accounting of one strategy instance.
type Stats struct {
	SentMessages    uint64
	AwaitedMessages uint64
	SentSummands    uint64
}

// Strategy is the contract shared by all summation back ends.
type Strategy interface {
	// Distribute scatters the input vector, which only needs to be valid
	// on rank 0, so every rank ends up with its slice.
	Distribute(values []float64) error

	// Accumulate runs one reduction and returns the global sum on every
	// rank.
	Accumulate() (float64, error)

	// Stats returns the message accounting of this rank.
	Stats() Stats
}

// Options carries the tunables shared by the strategy constructors.
type Options struct {
	// FlushThreshold is the subtree size above which the tree engine
	// flushes its outbox before reducing locally. Zero selects the
	// default of 32.
	FlushThreshold uint64

	// Logger receives per-rank diagnostics. Nil silences them.
	Logger utils.Logger
}

func (o Options) withDefaults() Options {
	if o.FlushThreshold == 0 {
		o.FlushThreshold = 32
	}
	if o.Logger == nil {
		o.Logger = &utils.NullLogger{}
	}
	return o
}

// New constructs the strategy of the given kind. The set is closed: the
// driver dispatches over exactly these five.
func New(kind Kind, d *distribution.Distribution, tp transport.Transport, opts Options) (Strategy, error) {
	base, err := newBase(d, tp)
	if err != nil {
		return nil, err
	}
	opts = opts.withDefaults()

	switch kind {
	case KindTree:
		return newTreeSummation(base, opts), nil
	case KindBaseline:
		return &baselineSummation{baseStrategy: base}, nil
	case KindAllreduce:
		return &allreduceSummation{baseStrategy: base}, nil
	case KindKahan:
		return &kahanSummation{baseStrategy: base}, nil
	case KindReproducible:
		return &reproducibleSummation{baseStrategy: base}, nil
	default:
		return nil, apperrors.Newf(apperrors.CodeUsageError, "unknown strategy kind %d", kind)
	}
}

// baseStrategy carries the state every strategy shares: the partition, the
// transport endpoint and the local summand slice.
type baseStrategy struct {
	rank   int
	dist   *distribution.Distribution
	tp     transport.Transport
	counts []int

	summands []float64
}

func newBase(d *distribution.Distribution, tp transport.Transport) (baseStrategy, error) {
	if d.Ranks != tp.Size() {
		return baseStrategy{}, apperrors.Newf(apperrors.CodeBadDistribution,
			"distribution spans %d ranks, cluster has %d", d.Ranks, tp.Size())
	}

	counts := make([]int, d.Ranks)
	for i, n := range d.NSummands {
		counts[i] = int(n)
	}

	return baseStrategy{
		rank:   tp.Rank(),
		dist:   d,
		tp:     tp,
		counts: counts,
	}, nil
}

// Distribute implements the shared scatter step. With a single rank the
// call degenerates to an in-process copy.
func (b *baseStrategy) Distribute(values []float64) error {
	if b.rank == 0 && uint64(len(values)) < b.dist.N {
		return apperrors.Newf(apperrors.CodeBadDistribution,
			"distribution covers %d summands, input has %d", b.dist.N, len(values))
	}

	if b.dist.Ranks == 1 {
		b.summands = append(b.summands[:0], values[:b.dist.N]...)
		return nil
	}

	local, err := b.tp.Scatterv(0, values, b.counts)
	if err != nil {
		return err
	}
	b.summands = local
	return nil
}

// Stats is zero for strategies without message accounting.
func (b *baseStrategy) Stats() Stats {
	return Stats{}
}

func naiveSum(values []float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum
}
