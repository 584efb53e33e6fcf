package summation

// kahanSummation runs a compensated local sum and allreduces the
// (sum, correction) pair.
//
// Robey et al.: In search of numerical consistency in parallel programming
// (2011), listing 4.
type kahanSummation struct {
	baseStrategy
}

func (s *kahanSummation) Accumulate() (float64, error) {
	var sum, correction float64
	for _, v := range s.summands {
		correctedNextTerm := v + correction
		newSum := sum + correctedNextTerm
		correction = correctedNextTerm - (newSum - sum)
		sum = newSum
	}

	global, err := s.tp.Allreduce([]float64{sum, correction})
	if err != nil {
		return 0, err
	}
	return global[0], nil
}
