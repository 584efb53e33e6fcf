// Package tree implements the index algebra of the binary accumulation tree.
//
// Inner nodes are identified by the smallest leaf index they cover, so the
// whole topology follows from bit operations on the index: clearing the
// lowest set bit yields the parent, setting all bits below it yields the
// largest child. Index 0 is the global root and has no parent.
package tree

import (
	"math/bits"

	"github.com/stelzch/allreduce/pkg/errors"
)

// Parent returns the parent node of index i by clearing its least
// significant set bit. The root (i = 0) has no parent.
func Parent(i uint64) (uint64, error) {
	if i == 0 {
		return 0, errors.Wrap(errors.CodeInvalidIndex, "node 0 has no parent", nil)
	}
	return i & (i - 1), nil
}

// MustParent is Parent for callers that have already excluded the root.
func MustParent(i uint64) uint64 {
	if i == 0 {
		panic("tree: parent of root")
	}
	return i & (i - 1)
}

// LargestChild returns the largest index covered by the subtree rooted at i.
// Defined for i > 0.
func LargestChild(i uint64) uint64 {
	return i | (i - 1)
}

// SubtreeSize returns the number of leaves covered by the subtree rooted at
// i, which equals the largest power of two dividing i. Defined for i > 0;
// the subtree of the root covers the whole vector and is handled by callers.
func SubtreeSize(i uint64) uint64 {
	return LargestChild(i) + 1 - i
}

// RoundUp returns the next index after i whose subtree is strictly larger,
// i.e. the start of the subtree following i's: RoundUp(23) = 24,
// RoundUp(24) = 32.
func RoundUp(i uint64) uint64 {
	return (i | (i - 1)) + 1
}

// IsPower2 reports whether x is a power of two. Zero is not.
func IsPower2(x uint64) bool {
	return x != 0 && x&(x-1) == 0
}

// Children returns the direct children of node i in a tree over n leaves,
// smallest first. The children of i are i with one of its trailing zero
// bits set, capped at n.
func Children(i, n uint64) []uint64 {
	height := bits.TrailingZeros64(i)
	if i == 0 {
		height = 64 - bits.LeadingZeros64(n-1)
		if n <= 1 {
			return nil
		}
	}

	result := make([]uint64, 0, height)
	for j := 0; j < height; j++ {
		child := i | (1 << uint(j))
		if child < n {
			result = append(result, child)
		}
	}
	return result
}
