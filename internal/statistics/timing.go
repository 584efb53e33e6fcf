// Package statistics computes summary statistics of reduction timings.
package statistics

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Average returns the arithmetic mean of v. Empty input yields NaN.
func Average(v []float64) float64 {
	if len(v) == 0 {
		return math.NaN()
	}

	sum := 0.0
	for _, x := range v {
		sum += x
	}
	return sum / float64(len(v))
}

// StdDev returns the population standard deviation of v.
func StdDev(v []float64) float64 {
	avg := Average(v)

	acc := 0.0
	for _, x := range v {
		acc += math.Pow(x-avg, 2.0)
	}
	return math.Sqrt(acc / float64(len(v)))
}

// Summary condenses a series of run durations for reporting.
type Summary struct {
	Durations []time.Duration
	Avg       float64 // microseconds
	StdDev    float64 // microseconds
}

// Summarize builds a Summary from raw durations.
func Summarize(durations []time.Duration) Summary {
	micros := make([]float64, len(durations))
	for i, d := range durations {
		micros[i] = float64(d.Nanoseconds()) / 1e3
	}

	return Summary{
		Durations: durations,
		Avg:       Average(micros),
		StdDev:    StdDev(micros),
	}
}

// Lines renders the three timing output lines of a run.
func (s Summary) Lines() []string {
	rendered := make([]string, len(s.Durations))
	for i, d := range s.Durations {
		rendered[i] = fmt.Sprintf("%.3f", float64(d.Nanoseconds())/1e3)
	}

	return []string{
		fmt.Sprintf("durations=%s", strings.Join(rendered, ",")),
		fmt.Sprintf("avg=%.3f", s.Avg),
		fmt.Sprintf("stddev=%.3f", s.StdDev),
	}
}
