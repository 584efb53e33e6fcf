package summation

import (
	"math/rand"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// reduceAll runs the iterative kernel over the full vector on one rank.
func reduceAll(t *testing.T, data []float64) float64 {
	t.Helper()

	scratch := make([]float64, len(data)+8)
	noFetch := func(index uint64) (float64, error) {
		t.Fatalf("unexpected fetch of index %d", index)
		return 0, nil
	}

	sum, err := reduceSubtree(0, uint64(len(data)), data, scratch, noFetch)
	require.NoError(t, err)
	return sum
}

func TestReduceSubtree_SmallVectors(t *testing.T) {
	tests := []struct {
		name     string
		data     []float64
		expected float64
	}{
		{"single", []float64{42}, 42},
		{"pair", []float64{1, 2}, 3},
		{"triple", []float64{1, 2, 3}, 6},
		{"eight", []float64{1, 2, 3, 4, 5, 6, 7, 8}, 36},
		{"ragged", []float64{1, 2, 3, 4, 5}, 15},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, reduceAll(t, tt.data))
		})
	}
}

// The iterative kernel and the recursive definition must agree bit for bit,
// for any vector length. Random values make the association observable:
// a different order would round differently.
func TestReduceSubtree_MatchesRecursive(t *testing.T) {
	rng := rand.New(rand.NewSource(3))

	lengths := []int{1, 2, 3, 5, 7, 8, 9, 15, 16, 17, 24, 64, 100, 1000, 4096, 100003}
	for i := 0; i < 10; i++ {
		lengths = append(lengths, rng.Intn(160000)+1)
	}

	for _, n := range lengths {
		data := make([]float64, n)
		for i := range data {
			data[i] = rng.NormFloat64() * 1e6
		}

		iterative := reduceAll(t, data)
		recursive := recursiveReduce(0, uint64(n), func(i uint64) float64 { return data[i] })

		assert.Equal(t, recursive, iterative, "n = %d", n)
	}
}

// Powers of two sum without rounding, so both kernels must produce the
// exact value.
func TestReduceSubtree_ExactPowers(t *testing.T) {
	data := make([]float64, 30)
	value := 1.0
	for i := range data {
		data[i] = value
		value *= 2
	}

	expected := float64(1<<30 - 1)
	assert.Equal(t, expected, reduceAll(t, data))
	assert.Equal(t, expected,
		recursiveReduce(0, 30, func(i uint64) float64 { return data[i] }))
}

// A partial local run must fetch exactly the missing subtree partials, in
// ascending order, and reproduce the full-vector result.
func TestReduceSubtree_FetchesRemotePartials(t *testing.T) {
	const n = 16
	data := make([]float64, n)
	rng := rand.New(rand.NewSource(4))
	for i := range data {
		data[i] = rng.Float64()
	}

	full := reduceAll(t, data)

	for localLen := 1; localLen <= n; localLen++ {
		var fetched []uint64
		fetch := func(index uint64) (float64, error) {
			fetched = append(fetched, index)
			return recursiveReduce(index, n, func(i uint64) float64 { return data[i] }), nil
		}

		scratch := make([]float64, localLen+8)
		sum, err := reduceSubtree(0, n, data[:localLen], scratch, fetch)
		require.NoError(t, err)
		assert.Equal(t, full, sum, "local run of %d", localLen)

		assert.IsNonDecreasing(t, fetched, "local run of %d", localLen)
		if localLen == n {
			assert.Empty(t, fetched)
		}
	}
}

func TestReduceSubtree_NonRootSubtree(t *testing.T) {
	// Subtree at 4 covers [4, 8); with only [4, 6) local the partial at 6
	// comes from the callback.
	data := []float64{0, 0, 0, 0, 5, 6, 7, 8}

	fetch := func(index uint64) (float64, error) {
		assert.Equal(t, uint64(6), index)
		return 7 + 8, nil
	}

	scratch := make([]float64, 10)
	sum, err := reduceSubtree(4, 8, data[4:6], scratch, fetch)
	require.NoError(t, err)
	assert.Equal(t, float64(5+6+7+8), sum)
}

func TestReduceSubtree_RaggedRightEdge(t *testing.T) {
	// Subtree at 8 would cover [8, 16) but the vector ends at 13; the
	// dangling partials carry through to the top.
	data := []float64{1, 2, 3, 4, 5}

	scratch := make([]float64, 16)
	sum, err := reduceSubtree(8, 13, data, scratch, func(uint64) (float64, error) {
		t.Fatal("nothing to fetch, subtree is fully local")
		return 0, nil
	})
	require.NoError(t, err)
	assert.Equal(t, float64(15), sum)
}

func TestRecursiveReduce_Order(t *testing.T) {
	// 0.1 + 0.2 + 0.3 associates differently left-to-right than any other
	// order; pin the canonical one.
	data := []float64{0.1, 0.2, 0.3, 0.4}
	expected := (0.1 + 0.2) + (0.3 + 0.4)

	assert.Equal(t, expected,
		recursiveReduce(0, 4, func(i uint64) float64 { return data[i] }))
	assert.Equal(t, expected, reduceAll(t, data))
}

func BenchmarkReduceSubtree(b *testing.B) {
	sizes := []int{8, 64, 4096, 1 << 20}
	for _, n := range sizes {
		data := make([]float64, n)
		for i := range data {
			data[i] = float64(i)
		}
		scratch := make([]float64, n+8)
		fetch := func(uint64) (float64, error) { return 0, nil }

		b.Run(formatSize(n), func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				_, _ = reduceSubtree(0, uint64(n), data, scratch, fetch)
			}
		})
	}
}

func BenchmarkRecursiveReduce(b *testing.B) {
	sizes := []int{8, 64, 4096}
	for _, n := range sizes {
		data := make([]float64, n)
		for i := range data {
			data[i] = float64(i)
		}
		leaf := func(i uint64) float64 { return data[i] }

		b.Run(formatSize(n), func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				_ = recursiveReduce(0, uint64(n), leaf)
			}
		})
	}
}

func formatSize(n int) string {
	switch {
	case n >= 1<<20:
		return "1M"
	case n >= 4096:
		return "4k"
	default:
		return strconv.Itoa(n)
	}
}
