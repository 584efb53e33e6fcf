package summation

import (
	"github.com/stelzch/allreduce/internal/tree"
	apperrors "github.com/stelzch/allreduce/pkg/errors"
	"github.com/stelzch/allreduce/pkg/utils"
)

// treeSummation is the reproducible distributed tree reduction. Every rank
// reduces the subtrees rooted at its rank-intersecting indices and
// publishes each result to the owner of the subtree's parent; rank 0
// finishes with the root subtree and broadcasts the sum.
type treeSummation struct {
	baseStrategy

	begin uint64
	end   uint64

	rankIntersecting []uint64
	scratch          []float64
	buf              *MessageBuffer
	flushThreshold   uint64
	logger           utils.Logger
}

func newTreeSummation(base baseStrategy, opts Options) *treeSummation {
	begin := base.dist.StartIndices[base.rank]
	size := base.dist.NSummands[base.rank]

	s := &treeSummation{
		baseStrategy:     base,
		begin:            begin,
		end:              begin + size,
		rankIntersecting: base.dist.RankIntersectingIndices(base.rank),
		scratch:          make([]float64, size+8),
		buf:              NewMessageBuffer(base.tp),
		flushThreshold:   opts.FlushThreshold,
		logger:           opts.Logger.WithField("rank", base.rank),
	}

	s.logger.Debug("holding %d summands [%d, %d), %d rank-intersecting",
		size, s.begin, s.end, len(s.rankIntersecting))
	return s
}

func (s *treeSummation) isLocal(index uint64) bool {
	return index >= s.begin && index < s.end
}

// fetch resolves a summand or partial outside the local slice through the
// message buffer.
func (s *treeSummation) fetch(index uint64) (float64, error) {
	if s.isLocal(index) {
		return s.summands[index-s.begin], nil
	}

	source, err := s.dist.RankFromIndexMap(index)
	if err != nil {
		return 0, err
	}
	return s.buf.Get(source, index)
}

// accumulate reduces the subtree rooted at index, which must be local.
func (s *treeSummation) accumulate(index uint64) (float64, error) {
	if index > 0 {
		size := tree.SubtreeSize(index)
		if size == 8 && s.isLocal(tree.LargestChild(index)) {
			return s.accumulateLocal8Subtree(index), nil
		}
	}

	globalEnd := s.dist.N
	if index > 0 {
		if end := index + tree.SubtreeSize(index); end < globalEnd {
			globalEnd = end
		}
	}

	runEnd := s.end
	if globalEnd < runEnd {
		runEnd = globalEnd
	}
	run := s.summands[index-s.begin : runEnd-s.begin]

	return reduceSubtree(index, globalEnd, run, s.scratch, s.fetch)
}

// accumulateLocal8Subtree reduces a fully local 8-leaf subtree with the
// fixed expression tree of the canonical order.
func (s *treeSummation) accumulateLocal8Subtree(index uint64) float64 {
	b := s.summands[index-s.begin : index-s.begin+8]

	level1a := b[0] + b[1]
	level1b := b[2] + b[3]
	level1c := b[4] + b[5]
	level1d := b[6] + b[7]

	return (level1a + level1b) + (level1c + level1d)
}

// Accumulate runs one reduction pass, see the treeSummation type comment for
// the protocol.
func (s *treeSummation) Accumulate() (float64, error) {
	if uint64(len(s.summands)) != s.end-s.begin {
		return 0, apperrors.New(apperrors.CodeBadDistribution, "accumulate called before distribute")
	}

	for _, index := range s.rankIntersecting {
		if tree.SubtreeSize(index) > s.flushThreshold {
			// A large local reduction follows; push pending entries out
			// so the parent's owner is not stuck behind them.
			if err := s.buf.Flush(); err != nil {
				return 0, err
			}
		}

		value, err := s.accumulate(index)
		if err != nil {
			return 0, err
		}

		target, err := s.dist.RankFromIndexMap(tree.MustParent(index))
		if err != nil {
			return 0, err
		}
		if err := s.buf.Put(target, index, value); err != nil {
			return 0, err
		}
	}

	if err := s.buf.Flush(); err != nil {
		return 0, err
	}
	if err := s.buf.Wait(); err != nil {
		return 0, err
	}

	var result float64
	if s.rank == 0 {
		var err error
		result, err = s.accumulate(0)
		if err != nil {
			return 0, err
		}
	}

	return s.tp.Bcast(0, result)
}

// Stats returns the message-buffer accounting of this rank.
func (s *treeSummation) Stats() Stats {
	return s.buf.Stats()
}
