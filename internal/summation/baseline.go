package summation

// baselineSummation gathers every summand on rank 0 and sums left to right.
type baselineSummation struct {
	baseStrategy
}

func (s *baselineSummation) Accumulate() (float64, error) {
	all, err := s.tp.Gatherv(0, s.summands, s.counts)
	if err != nil {
		return 0, err
	}

	var sum float64
	if s.rank == 0 {
		sum = naiveSum(all)
	}
	return s.tp.Bcast(0, sum)
}
