package enrich

import "math"

// HypergeometricSF returns P(X >= k) for X counting successes in n draws
// without replacement from a population of size total holding successes
// successes. Terms are summed in log space so large populations do not
// overflow.
func HypergeometricSF(k, total, successes, n int) float64 {
	if total <= 0 || successes < 0 || n < 0 || successes > total || n > total {
		return math.NaN()
	}
	lo := max(0, n+successes-total)
	hi := min(n, successes)
	if k <= lo {
		return 1
	}
	if k > hi {
		return 0
	}

	denom := logChoose(total, n)
	var sum float64
	for i := k; i <= hi; i++ {
		sum += math.Exp(logChoose(successes, i) + logChoose(total-successes, n-i) - denom)
	}
	return min(1, sum)
}

func logChoose(n, k int) float64 {
	return lgamma(n+1) - lgamma(k+1) - lgamma(n-k+1)
}

func lgamma(x int) float64 {
	v, _ := math.Lgamma(float64(x))
	return v
}

func round(x float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(x*p) / p
}
