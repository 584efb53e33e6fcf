// Package distribution partitions the global summand vector across ranks.
//
// A Distribution assigns every rank a contiguous index range. Besides the
// two even splits it implements the lsb_cleared strategy, which aligns rank
// boundaries to large power-of-two subtrees so that fewer partial results
// cross rank boundaries, and an optimal search over its variance parameter.
package distribution

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/stelzch/allreduce/internal/tree"
	apperrors "github.com/stelzch/allreduce/pkg/errors"
)

// CostModel holds the engineering constants of the planner's score
// function, both in nanoseconds.
type CostModel struct {
	TSend float64
	TAdd  float64
}

// DefaultCostModel matches the calibration shipped in the default config.
var DefaultCostModel = CostModel{TSend: 110.0, TAdd: 2.44}

// Distribution maps ranks to contiguous index ranges of the summand vector.
// It is immutable after construction and safe for concurrent readers.
type Distribution struct {
	N            uint64
	Ranks        int
	NSummands    []uint64
	StartIndices []uint64

	ricOnce sync.Once
	ric     uint64
}

func newDistribution(n uint64, ranks int) *Distribution {
	return &Distribution{
		N:            n,
		Ranks:        ranks,
		NSummands:    make([]uint64, ranks),
		StartIndices: make([]uint64, ranks),
	}
}

func checkArgs(n uint64, ranks int) error {
	if ranks <= 0 {
		return apperrors.Newf(apperrors.CodeBadDistribution, "cluster size must be positive, got %d", ranks)
	}
	if n == 0 {
		return apperrors.New(apperrors.CodeBadDistribution, "cannot distribute zero summands")
	}
	return nil
}

// Even spreads the summands evenly, with the remainder put one each on the
// first few ranks.
func Even(n uint64, ranks int) (*Distribution, error) {
	if err := checkArgs(n, ranks); err != nil {
		return nil, err
	}

	d := newDistribution(n, ranks)
	perRank := n / uint64(ranks)
	remainder := n % uint64(ranks)

	index := uint64(0)
	for i := 0; i < ranks; i++ {
		d.StartIndices[i] = index

		count := perRank
		if uint64(i) < remainder {
			count++
		}
		d.NSummands[i] = count
		index += count
	}

	return d, nil
}

// EvenRemainderOnLast spreads the summands evenly, with the remainder put
// one each on the last few ranks.
func EvenRemainderOnLast(n uint64, ranks int) (*Distribution, error) {
	if err := checkArgs(n, ranks); err != nil {
		return nil, err
	}
	if n < uint64(ranks) {
		// Trailing the remainder would leave rank 0, the broadcaster,
		// empty; spread from the front instead.
		return Even(n, ranks)
	}

	d := newDistribution(n, ranks)
	perRank := n / uint64(ranks)
	remainder := n % uint64(ranks)

	index := uint64(0)
	for i := 0; i < ranks; i++ {
		d.StartIndices[i] = index

		count := perRank
		if uint64(ranks-i) <= remainder {
			count++
		}
		d.NSummands[i] = count
		index += count
	}

	return d, nil
}

// LsbCleared produces a distribution whose start indices are aligned to
// power-of-two subtree boundaries. Starting from the fair share, each rank
// boundary is moved while the share assigned to the previous rank stays
// within the variance bound: odd ranks clear the lowest set bit of the
// candidate (shrinking the share, growing the subtree alignment), even
// ranks round up to the next zero bit. The remainder lands on the last
// rank, clamped so no start index passes n.
func LsbCleared(n uint64, ranks int, variance float64) (*Distribution, error) {
	if err := checkArgs(n, ranks); err != nil {
		return nil, err
	}
	if variance <= 0 || variance > 1 {
		return nil, apperrors.Newf(apperrors.CodeBadDistribution, "variance must be in (0, 1], got %g", variance)
	}
	if n < uint64(ranks) {
		// Alignment has nothing to work with; fall back to the even split.
		return Even(n, ranks)
	}

	d := newDistribution(n, ranks)
	fairShare := n / uint64(ranks)

	d.StartIndices[0] = 0
	for i := 1; i < ranks; i++ {
		last := d.StartIndices[i-1]
		fair := last + fairShare

		var index uint64
		if i%2 == 1 {
			index = clearLsbPass(last, fair, fairShare, variance)
		} else {
			index = roundUpPass(last, fair, fairShare, variance, n)
		}
		if index > n {
			index = n
		}

		d.StartIndices[i] = index
		d.NSummands[i-1] = index - last
	}
	d.NSummands[ranks-1] = n - d.StartIndices[ranks-1]

	return d, nil
}

// clearLsbPass replaces the candidate with its tree parent while the share
// left to the previous rank stays at least variance * fairShare.
func clearLsbPass(last, fair, fairShare uint64, variance float64) uint64 {
	index := fair
	proposed := fair
	for last < proposed && variance*float64(fairShare) <= float64(proposed-last) {
		index = proposed
		proposed &= proposed - 1
	}
	return index
}

// roundUpPass moves the candidate to the next zero-bit boundary while the
// share given to the previous rank stays at most fairShare / variance.
func roundUpPass(last, fair, fairShare uint64, variance float64, n uint64) uint64 {
	index := fair
	proposed := fair
	for proposed <= n && float64(proposed-last) <= float64(fairShare)/variance {
		index = proposed
		proposed = tree.RoundUp(proposed)
	}
	return index
}

// Optimal sweeps the variance parameter of LsbCleared downward from 1 in
// the given step and returns the first strict local minimum of the score.
func Optimal(n uint64, ranks int, cost CostModel, step float64) (*Distribution, error) {
	if err := checkArgs(n, ranks); err != nil {
		return nil, err
	}
	if step <= 0 || step >= 1 {
		return nil, apperrors.Newf(apperrors.CodeBadDistribution, "variance step must be in (0, 1), got %g", step)
	}

	var best *Distribution
	bestScore := math.Inf(1)
	prevScore := math.Inf(1)
	decreased := false

	for v := 1.0; v > 0; v -= step {
		d, err := LsbCleared(n, ranks, v)
		if err != nil {
			return nil, err
		}

		score := d.Score(cost)
		if score < bestScore {
			best, bestScore = d, score
		}

		if score < prevScore {
			decreased = true
		} else if score > prevScore && decreased {
			break
		}
		prevScore = score
	}

	return best, nil
}

// Manual parses a comma-separated list of per-rank counts. The list is only
// accepted if it has exactly ranks entries summing to n.
func Manual(n uint64, ranks int, text string) (*Distribution, error) {
	if err := checkArgs(n, ranks); err != nil {
		return nil, err
	}

	parts := strings.Split(text, ",")
	if len(parts) != ranks {
		return nil, apperrors.Newf(apperrors.CodeBadDistribution,
			"manual distribution has %d entries, cluster size is %d", len(parts), ranks)
	}

	d := newDistribution(n, ranks)
	index := uint64(0)
	for i, part := range parts {
		count, err := strconv.ParseUint(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CodeBadDistribution,
				fmt.Sprintf("manual distribution entry %d", i), err)
		}
		d.StartIndices[i] = index
		d.NSummands[i] = count
		index += count
	}
	if index != n {
		return nil, apperrors.Newf(apperrors.CodeBadDistribution,
			"manual distribution sums to %d, expected %d", index, n)
	}
	if d.NSummands[0] == 0 {
		return nil, apperrors.New(apperrors.CodeBadDistribution, "rank 0 must hold at least one summand")
	}

	return d, nil
}

// RankFromIndex determines which rank holds the summand with the given
// global index by a linear scan over the counts.
func (d *Distribution) RankFromIndex(index uint64) (int, error) {
	remaining := index
	for rank := 0; rank < d.Ranks; rank++ {
		if remaining < d.NSummands[rank] {
			return rank, nil
		}
		remaining -= d.NSummands[rank]
	}
	return 0, apperrors.Newf(apperrors.CodeInvalidIndex, "index %d is on no rank", index)
}

// RankFromIndexMap determines the owning rank by binary search over the
// start indices. Equivalent to RankFromIndex, preferred in hot loops.
func (d *Distribution) RankFromIndexMap(index uint64) (int, error) {
	if index >= d.N {
		return 0, apperrors.Newf(apperrors.CodeInvalidIndex, "index %d is on no rank", index)
	}

	// First start index strictly greater than index; its predecessor owns it.
	next := sort.Search(d.Ranks, func(i int) bool {
		return d.StartIndices[i] > index
	})
	return next - 1, nil
}

// RankIntersectingIndices enumerates the indices in the given rank's range
// whose tree parent lies below the range, in ascending order, by jumping
// whole subtrees. Rank 0 has none.
func (d *Distribution) RankIntersectingIndices(rank int) []uint64 {
	if rank == 0 {
		return nil
	}

	begin := d.StartIndices[rank]
	end := begin + d.NSummands[rank]
	if begin == 0 {
		// Only possible when every earlier rank is empty, which the
		// constructors exclude for rank 0.
		return nil
	}

	var result []uint64
	for idx := begin; idx < end; idx += tree.SubtreeSize(idx) {
		result = append(result, idx)
	}
	return result
}

// RankIntersectionCount returns the total number of rank-intersecting
// summands across all ranks. The value is computed once and cached.
func (d *Distribution) RankIntersectionCount() uint64 {
	d.ricOnce.Do(func() {
		var total uint64
		for rank := 1; rank < d.Ranks; rank++ {
			total += uint64(len(d.RankIntersectingIndices(rank)))
		}
		d.ric = total
	})
	return d.ric
}

// Score ranks the distribution under the planner cost model: every rank
// intersection costs one send, and the busiest rank bounds the local
// summation time.
func (d *Distribution) Score(cost CostModel) float64 {
	var maxSummands uint64
	for _, n := range d.NSummands {
		if n > maxSummands {
			maxSummands = n
		}
	}
	return cost.TSend*float64(d.RankIntersectionCount()) + cost.TAdd*float64(maxSummands)
}

// String renders the per-rank counts, e.g. "[256, 256, 256, 256]".
func (d *Distribution) String() string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, n := range d.NSummands {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%d", n)
	}
	sb.WriteByte(']')
	return sb.String()
}
