package transport

import (
	"fmt"

	apperrors "github.com/stelzch/allreduce/pkg/errors"
)

// Internal tags, kept away from the application tag space.
const (
	tagBcast = -2 - iota
	tagScatter
	tagGather
	tagReduce
	tagBarrier
)

const pairChannelDepth = 64

type message struct {
	tag     int
	payload []byte
}

// Cluster is an in-process transport: every rank runs as a goroutine and
// rank pairs exchange messages over buffered channels, which gives the
// per-pair FIFO ordering the protocol relies on.
type Cluster struct {
	size  int
	chans [][]chan message // [source][dest]
}

// NewCluster creates a cluster of the given size.
func NewCluster(size int) (*Cluster, error) {
	if size <= 0 {
		return nil, apperrors.Newf(apperrors.CodeTransportFailure, "cluster size must be positive, got %d", size)
	}

	chans := make([][]chan message, size)
	for src := 0; src < size; src++ {
		chans[src] = make([]chan message, size)
		for dst := 0; dst < size; dst++ {
			chans[src][dst] = make(chan message, pairChannelDepth)
		}
	}

	return &Cluster{size: size, chans: chans}, nil
}

// Size returns the cluster size.
func (c *Cluster) Size() int {
	return c.size
}

// Endpoint returns the transport endpoint of the given rank. Each endpoint
// is owned by exactly one goroutine.
func (c *Cluster) Endpoint(rank int) Transport {
	if rank < 0 || rank >= c.size {
		panic(fmt.Sprintf("transport: rank %d out of range [0, %d)", rank, c.size))
	}
	return &endpoint{
		cluster: c,
		rank:    rank,
		pending: make([][]message, c.size),
	}
}

type endpoint struct {
	cluster *Cluster
	rank    int
	// Messages received while waiting for a different tag, per source.
	pending [][]message
}

type sendRequest struct {
	done chan struct{}
}

func (r *sendRequest) Wait() error {
	<-r.done
	return nil
}

func (e *endpoint) Rank() int {
	return e.rank
}

func (e *endpoint) Size() int {
	return e.cluster.size
}

func (e *endpoint) checkRank(role string, rank int) error {
	if rank < 0 || rank >= e.cluster.size {
		return apperrors.Newf(apperrors.CodeTransportFailure,
			"%s rank %d out of range [0, %d)", role, rank, e.cluster.size)
	}
	return nil
}

func (e *endpoint) Isend(dest int, tag int, payload []byte) (Request, error) {
	if err := e.checkRank("destination", dest); err != nil {
		return nil, err
	}

	// The channel owns a copy, so callers may reuse their buffer as soon
	// as Isend returns.
	owned := make([]byte, len(payload))
	copy(owned, payload)

	req := &sendRequest{done: make(chan struct{})}
	ch := e.cluster.chans[e.rank][dest]
	go func() {
		ch <- message{tag: tag, payload: owned}
		close(req.done)
	}()
	return req, nil
}

func (e *endpoint) Recv(source int, tag int) ([]byte, error) {
	if err := e.checkRank("source", source); err != nil {
		return nil, err
	}

	// Drain a match queued by an earlier Recv with a different tag first;
	// FIFO order within the pair is preserved.
	queue := e.pending[source]
	for i, m := range queue {
		if m.tag == tag {
			e.pending[source] = append(queue[:i], queue[i+1:]...)
			return m.payload, nil
		}
	}

	ch := e.cluster.chans[source][e.rank]
	for {
		m := <-ch
		if m.tag == tag {
			return m.payload, nil
		}
		e.pending[source] = append(e.pending[source], m)
	}
}

func (e *endpoint) send(dest int, tag int, payload []byte) error {
	req, err := e.Isend(dest, tag, payload)
	if err != nil {
		return err
	}
	return req.Wait()
}

// bcastPayload runs a binomial-tree broadcast of an opaque payload.
func (e *endpoint) bcastPayload(root int, payload []byte) ([]byte, error) {
	if err := e.checkRank("root", root); err != nil {
		return nil, err
	}

	size := e.cluster.size
	relative := (e.rank - root + size) % size

	mask := 1
	for mask < size {
		if relative&mask != 0 {
			source := (relative - mask + root) % size
			received, err := e.Recv(source, tagBcast)
			if err != nil {
				return nil, err
			}
			payload = received
			break
		}
		mask <<= 1
	}

	mask >>= 1
	for mask > 0 {
		if relative+mask < size {
			dest := (relative + mask + root) % size
			if err := e.send(dest, tagBcast, payload); err != nil {
				return nil, err
			}
		}
		mask >>= 1
	}

	return payload, nil
}

func (e *endpoint) Bcast(root int, value float64) (float64, error) {
	var payload []byte
	if e.rank == root {
		payload = EncodeFloat64s(nil, []float64{value})
	}

	payload, err := e.bcastPayload(root, payload)
	if err != nil {
		return 0, err
	}
	return DecodeFloat64s(payload)[0], nil
}

func (e *endpoint) Scatterv(root int, values []float64, counts []int) ([]float64, error) {
	if err := e.checkRank("root", root); err != nil {
		return nil, err
	}
	if len(counts) != e.cluster.size {
		return nil, apperrors.Newf(apperrors.CodeTransportFailure,
			"scatterv got %d counts for %d ranks", len(counts), e.cluster.size)
	}

	if e.rank != root {
		payload, err := e.Recv(root, tagScatter)
		if err != nil {
			return nil, err
		}
		return DecodeFloat64s(payload), nil
	}

	total := 0
	for _, c := range counts {
		total += c
	}
	if len(values) < total {
		return nil, apperrors.Newf(apperrors.CodeTransportFailure,
			"scatterv got %d values, counts require %d", len(values), total)
	}

	var local []float64
	offset := 0
	for rank, count := range counts {
		slice := values[offset : offset+count]
		offset += count

		if rank == root {
			local = append([]float64(nil), slice...)
			continue
		}
		if err := e.send(rank, tagScatter, EncodeFloat64s(nil, slice)); err != nil {
			return nil, err
		}
	}
	return local, nil
}

func (e *endpoint) Gatherv(root int, local []float64, counts []int) ([]float64, error) {
	if err := e.checkRank("root", root); err != nil {
		return nil, err
	}
	if len(counts) != e.cluster.size {
		return nil, apperrors.Newf(apperrors.CodeTransportFailure,
			"gatherv got %d counts for %d ranks", len(counts), e.cluster.size)
	}

	if e.rank != root {
		return nil, e.send(root, tagGather, EncodeFloat64s(nil, local))
	}

	total := 0
	for _, c := range counts {
		total += c
	}

	result := make([]float64, 0, total)
	for rank, count := range counts {
		if rank == root {
			result = append(result, local...)
			continue
		}

		payload, err := e.Recv(rank, tagGather)
		if err != nil {
			return nil, err
		}
		values := DecodeFloat64s(payload)
		if len(values) != count {
			return nil, apperrors.Newf(apperrors.CodeTransportFailure,
				"gatherv expected %d values from rank %d, got %d", count, rank, len(values))
		}
		result = append(result, values...)
	}
	return result, nil
}

func (e *endpoint) Allreduce(values []float64) ([]float64, error) {
	const root = 0

	if e.rank != root {
		if err := e.send(root, tagReduce, EncodeFloat64s(nil, values)); err != nil {
			return nil, err
		}
	} else {
		sums := append([]float64(nil), values...)
		for rank := 1; rank < e.cluster.size; rank++ {
			payload, err := e.Recv(rank, tagReduce)
			if err != nil {
				return nil, err
			}
			contribution := DecodeFloat64s(payload)
			if len(contribution) != len(sums) {
				return nil, apperrors.Newf(apperrors.CodeTransportFailure,
					"allreduce length mismatch: rank %d sent %d values, expected %d",
					rank, len(contribution), len(sums))
			}
			for i, v := range contribution {
				sums[i] += v
			}
		}
		values = sums
	}

	payload, err := e.bcastPayload(root, EncodeFloat64s(nil, values))
	if err != nil {
		return nil, err
	}
	return DecodeFloat64s(payload), nil
}

func (e *endpoint) Barrier() error {
	const root = 0

	if e.rank != root {
		if err := e.send(root, tagBarrier, nil); err != nil {
			return err
		}
	} else {
		for rank := 1; rank < e.cluster.size; rank++ {
			if _, err := e.Recv(rank, tagBarrier); err != nil {
				return err
			}
		}
	}

	_, err := e.bcastPayload(root, nil)
	return err
}
