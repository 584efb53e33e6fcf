package summation

import (
	"math/bits"

	"github.com/stelzch/allreduce/internal/tree"
)

// fetchFunc resolves the partial sum published for a global index that lies
// outside the local slice. In the engine this is the message buffer; tests
// substitute a direct lookup.
type fetchFunc func(index uint64) (float64, error)

// reduceSubtree reduces the subtree rooted at root in the canonical
// pairwise order and returns its sum.
//
// run holds the locally available leaves, covering [root, root+len(run)) of
// the global vector; globalEnd is the exclusive end of the subtree, already
// clamped to the vector length. scratch must have capacity for len(run)+8
// entries. The pass is bottom-up with one scratch slot per partial: at each
// level adjacent pairs collapse, and an odd trailing entry either pairs
// with a fetched remote partial or, past the ragged edge of the vector,
// carries over unchanged.
func reduceSubtree(root, globalEnd uint64, run []float64, scratch []float64, fetch fetchFunc) (float64, error) {
	span := globalEnd - root
	if span == 1 {
		return run[0], nil
	}

	scratch = scratch[:len(run)]
	copy(scratch, run)
	k := len(scratch)

	maxY := bits.Len64(span - 1)
	for y := 1; y <= maxY; {
		if k%8 == 0 && y+2 <= maxY {
			// Three levels fused into one pass, eight slots per step.
			// Only taken when the level is dangler-free throughout, so
			// the association matches the scalar path exactly.
			for j := 0; j < k/8; j++ {
				b := scratch[8*j : 8*j+8]
				scratch[j] = ((b[0] + b[1]) + (b[2] + b[3])) + ((b[4] + b[5]) + (b[6] + b[7]))
			}
			k /= 8
			y += 3
			continue
		}

		pairs := k / 2
		for j := 0; j < pairs; j++ {
			scratch[j] = scratch[2*j] + scratch[2*j+1]
		}
		written := pairs

		if k%2 == 1 {
			// The dangling entry at position k-1 stands for the partial
			// at global index root + (k-1)*2^(y-1). Its partner is the
			// next 2^(y-1)-leaf block: beyond the subtree the tree
			// terminates and the partial carries over, beyond the local
			// slice it is fetched from the owning rank.
			partner := root + uint64(k)<<(y-1)
			if partner >= globalEnd {
				scratch[written] = scratch[k-1]
			} else {
				value, err := fetch(partner)
				if err != nil {
					return 0, err
				}
				scratch[written] = scratch[k-1] + value
			}
			written++
		}

		k = written
		y++
	}

	return scratch[0], nil
}

// recursiveReduce is the plain recursive definition of the subtree sum: the
// node's own leaf plus its children in ascending order, each reduced
// recursively. It exists as the oracle for equivalence tests and stays off
// the hot path.
func recursiveReduce(index, n uint64, leaf func(uint64) float64) float64 {
	acc := leaf(index)
	for _, child := range tree.Children(index, n) {
		acc += recursiveReduce(child, n, leaf)
	}
	return acc
}
