package cluster

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stelzch/allreduce/internal/transport"
	apperrors "github.com/stelzch/allreduce/pkg/errors"
)

func TestRun_AllRanksExecute(t *testing.T) {
	var executed int64

	err := Run(context.Background(), 4, func(ctx context.Context, tp transport.Transport) error {
		atomic.AddInt64(&executed, 1)
		assert.Equal(t, 4, tp.Size())
		return tp.Barrier()
	})

	require.NoError(t, err)
	assert.Equal(t, int64(4), executed)
}

func TestRun_PropagatesFirstError(t *testing.T) {
	wantErr := apperrors.New(apperrors.CodeBadDistribution, "boom")

	err := Run(context.Background(), 3, func(ctx context.Context, tp transport.Transport) error {
		// SPMD: every rank hits the same validation failure.
		return wantErr
	})

	assert.True(t, apperrors.IsBadDistribution(err))
}

func TestRun_RecoversPanics(t *testing.T) {
	err := Run(context.Background(), 2, func(ctx context.Context, tp transport.Transport) error {
		panic("kaboom")
	})

	require.Error(t, err)
	assert.True(t, apperrors.IsTransportFailure(err))
	assert.Contains(t, err.Error(), "kaboom")
}

func TestRun_CancelsPeersOnError(t *testing.T) {
	err := Run(context.Background(), 2, func(ctx context.Context, tp transport.Transport) error {
		if tp.Rank() == 0 {
			return apperrors.ErrTransportFailure
		}
		<-ctx.Done()
		return nil
	})

	assert.True(t, apperrors.IsTransportFailure(err))
}

func TestRun_BadSize(t *testing.T) {
	err := Run(context.Background(), 0, func(ctx context.Context, tp transport.Transport) error {
		return nil
	})
	assert.True(t, apperrors.IsTransportFailure(err))
}
