// Package cluster launches the rank goroutines of a reduction session.
package cluster

import (
	"context"
	"sync"

	"github.com/stelzch/allreduce/internal/transport"
	apperrors "github.com/stelzch/allreduce/pkg/errors"
)

// RankFunc is the body one rank executes. It receives its endpoint into
// the cluster transport and runs the same program as every other rank.
type RankFunc func(ctx context.Context, tp transport.Transport) error

// Run executes fn on size rank goroutines over a fresh in-memory cluster
// and waits for all of them. The first error wins and cancels the context
// handed to the remaining ranks; a failed rank means the whole reduction
// failed and no partial result is reported.
func Run(ctx context.Context, size int, fn RankFunc) error {
	cluster, err := transport.NewCluster(size)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)

	for rank := 0; rank < size; rank++ {
		wg.Add(1)
		go func(rank int) {
			defer wg.Done()

			if err := runRank(ctx, cluster.Endpoint(rank), fn); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
					cancel()
				}
				mu.Unlock()
			}
		}(rank)
	}
	wg.Wait()

	return firstErr
}

func runRank(ctx context.Context, tp transport.Transport, fn RankFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = apperrors.Newf(apperrors.CodeTransportFailure, "rank %d panicked: %v", tp.Rank(), r)
		}
	}()
	return fn(ctx, tp)
}
