package distribution

import (
	"math"
	"sort"
)

// CriticalPath estimates the completion time of a distributed tree
// reduction by walking the accumulation tree and charging t_add for every
// addition plus t_send whenever the two operands live on different ranks.
// Inner nodes whose right operand falls off the vector pass their time
// through unchanged.
type CriticalPath struct {
	n            uint64
	startIndices []uint64
	cost         CostModel
}

// NewCriticalPath builds the estimator for the given distribution.
func NewCriticalPath(d *Distribution, cost CostModel) *CriticalPath {
	starts := make([]uint64, 0, d.Ranks+1)
	starts = append(starts, d.StartIndices...)
	// guardian element
	starts = append(starts, d.N)

	return &CriticalPath{
		n:            d.N,
		startIndices: starts,
		cost:         cost,
	}
}

// Time returns the estimated critical path length in nanoseconds.
func (c *CriticalPath) Time() float64 {
	if c.n <= 1 {
		return 0
	}
	maxY := uint(math.Ceil(math.Log2(float64(c.n))))
	return c.tree(0, maxY)
}

func (c *CriticalPath) tree(x uint64, y uint) float64 {
	if y == 0 {
		// Leaf
		return 0
	}

	xa, ya := x, y-1
	xb, yb := x+(1<<(y-1)), y-1

	if xb >= c.n {
		// Inner node without a right operand: completion time passes through.
		return c.tree(xa, ya)
	}

	t1 := c.tree(xa, ya)
	t2 := c.tree(xb, yb)

	if c.rankOf(xa) != c.rankOf(xb) {
		// Rank intersection
		return c.cost.TAdd + c.cost.TSend + math.Max(t1, t2)
	}
	return c.cost.TAdd + t1 + t2
}

func (c *CriticalPath) rankOf(index uint64) int {
	next := sort.Search(len(c.startIndices), func(i int) bool {
		return c.startIndices[i] > index
	})
	return next - 1
}
