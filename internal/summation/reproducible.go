package summation

import (
	"math/big"

	apperrors "github.com/stelzch/allreduce/pkg/errors"
)

// accumulatorPrecision is wide enough that adding float64 values into the
// accumulator is exact across the whole double exponent range, so the
// result does not depend on summation order.
const accumulatorPrecision = 4096

// reproducibleTag carries the serialized accumulators; tag 1 belongs to the
// message buffer.
const reproducibleTag = 2

// reproducibleSummation folds each slice into an exact wide accumulator,
// combines the accumulators on rank 0 and rounds once. Like the tree
// strategy the result is independent of the partition, trading speed for a
// correctly rounded sum.
type reproducibleSummation struct {
	baseStrategy
}

func (s *reproducibleSummation) Accumulate() (float64, error) {
	local := localAccumulator(s.summands)

	if s.dist.Ranks == 1 {
		result, _ := local.Float64()
		return result, nil
	}

	if s.rank != 0 {
		payload, err := local.GobEncode()
		if err != nil {
			return 0, apperrors.Wrap(apperrors.CodeTransportFailure, "accumulator encoding", err)
		}
		req, err := s.tp.Isend(0, reproducibleTag, payload)
		if err != nil {
			return 0, err
		}
		if err := req.Wait(); err != nil {
			return 0, err
		}
		return s.tp.Bcast(0, 0)
	}

	for rank := 1; rank < s.dist.Ranks; rank++ {
		payload, err := s.tp.Recv(rank, reproducibleTag)
		if err != nil {
			return 0, err
		}

		contribution := new(big.Float)
		if err := contribution.GobDecode(payload); err != nil {
			return 0, apperrors.Wrap(apperrors.CodeTransportFailure, "accumulator decoding", err)
		}
		local.Add(local, contribution)
	}

	result, _ := local.Float64()
	return s.tp.Bcast(0, result)
}

func localAccumulator(values []float64) *big.Float {
	acc := new(big.Float).SetPrec(accumulatorPrecision)
	term := new(big.Float).SetPrec(accumulatorPrecision)
	for _, v := range values {
		acc.Add(acc, term.SetFloat64(v))
	}
	return acc
}
