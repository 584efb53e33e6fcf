package summation

// allreduceSummation sums the local slice naively and combines the per-rank
// sums with a single allreduce.
type allreduceSummation struct {
	baseStrategy
}

func (s *allreduceSummation) Accumulate() (float64, error) {
	global, err := s.tp.Allreduce([]float64{naiveSum(s.summands)})
	if err != nil {
		return 0, err
	}
	return global[0], nil
}
