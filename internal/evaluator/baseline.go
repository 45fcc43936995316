package evaluator

import "math"

// Baseline mean and population standard deviation of the prior samples, and the current one.
type Baseline struct {
	Mean    float64
	StdDev  float64
	Prior   int
	Current float64
}

// ComputeBaseline treats series[n-1] as current and series[0..n-2] as the baseline.
// Returns false when n < 2.
func ComputeBaseline(series []float64) (Baseline, bool) {
	n := len(series)
	if n < 2 {
		return Baseline{}, false
	}
	mean, std := Stats(series[:n-1])
	return Baseline{
		Mean:    mean,
		StdDev:  std,
		Prior:   n - 1,
		Current: series[n-1],
	}, true
}

// Stats mean and population standard deviation over all values.
func Stats(values []float64) (mean, std float64) {
	if len(values) == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean = sum / float64(len(values))

	var sq float64
	for _, v := range values {
		d := v - mean
		sq += d * d
	}
	std = math.Sqrt(sq / float64(len(values)))
	return mean, std
}
