package transport

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/stelzch/allreduce/pkg/errors"
)

// runRanks executes fn once per rank, each on its own goroutine, and fails
// the test on the first returned error.
func runRanks(t *testing.T, size int, fn func(tp Transport) error) {
	t.Helper()

	cluster, err := NewCluster(size)
	require.NoError(t, err)

	errs := make([]error, size)
	var wg sync.WaitGroup
	for rank := 0; rank < size; rank++ {
		wg.Add(1)
		go func(rank int) {
			defer wg.Done()
			errs[rank] = fn(cluster.Endpoint(rank))
		}(rank)
	}
	wg.Wait()

	for rank, err := range errs {
		require.NoError(t, err, "rank %d", rank)
	}
}

func TestNewCluster_BadSize(t *testing.T) {
	_, err := NewCluster(0)
	assert.True(t, apperrors.IsTransportFailure(err))
}

func TestSendRecv_FIFO(t *testing.T) {
	runRanks(t, 2, func(tp Transport) error {
		if tp.Rank() == 0 {
			for i := byte(0); i < 10; i++ {
				req, err := tp.Isend(1, MessageBufferTag, []byte{i})
				if err != nil {
					return err
				}
				if err := req.Wait(); err != nil {
					return err
				}
			}
			return nil
		}

		for i := byte(0); i < 10; i++ {
			payload, err := tp.Recv(0, MessageBufferTag)
			if err != nil {
				return err
			}
			assert.Equal(t, []byte{i}, payload)
		}
		return nil
	})
}

func TestIsend_BufferReuse(t *testing.T) {
	runRanks(t, 2, func(tp Transport) error {
		if tp.Rank() == 0 {
			buf := []byte{1, 2, 3}
			req, err := tp.Isend(1, MessageBufferTag, buf)
			if err != nil {
				return err
			}
			// Scribbling over the buffer must not affect the message.
			buf[0], buf[1], buf[2] = 9, 9, 9
			return req.Wait()
		}

		payload, err := tp.Recv(0, MessageBufferTag)
		if err != nil {
			return err
		}
		assert.Equal(t, []byte{1, 2, 3}, payload)
		return nil
	})
}

func TestRecv_TagMatching(t *testing.T) {
	runRanks(t, 2, func(tp Transport) error {
		if tp.Rank() == 0 {
			if err := send(tp, 1, 7, []byte("seven")); err != nil {
				return err
			}
			return send(tp, 1, MessageBufferTag, []byte("one"))
		}

		// Ask for the later tag first; the mismatch is queued and
		// handed out by the second Recv.
		payload, err := tp.Recv(0, MessageBufferTag)
		if err != nil {
			return err
		}
		assert.Equal(t, []byte("one"), payload)

		payload, err = tp.Recv(0, 7)
		if err != nil {
			return err
		}
		assert.Equal(t, []byte("seven"), payload)
		return nil
	})
}

func send(tp Transport, dest, tag int, payload []byte) error {
	req, err := tp.Isend(dest, tag, payload)
	if err != nil {
		return err
	}
	return req.Wait()
}

func TestIsend_InvalidDest(t *testing.T) {
	cluster, err := NewCluster(2)
	require.NoError(t, err)

	_, err = cluster.Endpoint(0).Isend(5, MessageBufferTag, nil)
	assert.True(t, apperrors.IsTransportFailure(err))

	_, err = cluster.Endpoint(0).Recv(-1, MessageBufferTag)
	assert.True(t, apperrors.IsTransportFailure(err))
}

func TestBcast(t *testing.T) {
	for _, size := range []int{1, 2, 3, 4, 7, 8} {
		runRanks(t, size, func(tp Transport) error {
			value := 0.0
			if tp.Rank() == 2%size {
				value = 42.5
			}
			got, err := tp.Bcast(2%size, value)
			if err != nil {
				return err
			}
			assert.Equal(t, 42.5, got, "size %d rank %d", size, tp.Rank())
			return nil
		})
	}
}

func TestScattervGatherv(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5, 6, 7, 8}
	counts := []int{3, 2, 3}

	runRanks(t, 3, func(tp Transport) error {
		var input []float64
		if tp.Rank() == 0 {
			input = values
		}

		local, err := tp.Scatterv(0, input, counts)
		if err != nil {
			return err
		}
		assert.Len(t, local, counts[tp.Rank()])

		gathered, err := tp.Gatherv(0, local, counts)
		if err != nil {
			return err
		}
		if tp.Rank() == 0 {
			assert.Equal(t, values, gathered)
		} else {
			assert.Nil(t, gathered)
		}
		return nil
	})
}

func TestScatterv_CountMismatch(t *testing.T) {
	runRanks(t, 2, func(tp Transport) error {
		_, err := tp.Scatterv(0, []float64{1}, []int{1})
		assert.True(t, apperrors.IsTransportFailure(err))
		return nil
	})
}

func TestAllreduce(t *testing.T) {
	runRanks(t, 4, func(tp Transport) error {
		local := []float64{float64(tp.Rank()), 1.0}
		sums, err := tp.Allreduce(local)
		if err != nil {
			return err
		}
		assert.Equal(t, []float64{6.0, 4.0}, sums, "rank %d", tp.Rank())
		return nil
	})
}

func TestBarrier(t *testing.T) {
	var mu sync.Mutex
	arrived := 0

	runRanks(t, 5, func(tp Transport) error {
		mu.Lock()
		arrived++
		mu.Unlock()

		if err := tp.Barrier(); err != nil {
			return err
		}

		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, 5, arrived)
		return nil
	})
}

func TestEncodeDecodeFloat64s(t *testing.T) {
	values := []float64{0, 1.5, -2.25, 1e300}
	payload := EncodeFloat64s(nil, values)
	assert.Len(t, payload, 32)
	assert.Equal(t, values, DecodeFloat64s(payload))
}

func BenchmarkSendRecvRoundtrip(b *testing.B) {
	cluster, err := NewCluster(2)
	if err != nil {
		b.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		tp := cluster.Endpoint(1)
		for i := 0; i < b.N; i++ {
			payload, _ := tp.Recv(0, MessageBufferTag)
			req, _ := tp.Isend(0, MessageBufferTag, payload)
			req.Wait()
		}
	}()

	tp := cluster.Endpoint(0)
	payload := EncodeFloat64s(nil, []float64{1, 2, 3, 4})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		req, _ := tp.Isend(1, MessageBufferTag, payload)
		req.Wait()
		payload, _ = tp.Recv(1, MessageBufferTag)
	}
	<-done
}
