// Package stats compares per-group similarity distributions against their
// complement with a one-sided Mann–Whitney U test and summarises them.
package stats

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/turtacn/famsim/pkg/errors"
)

// ExactLimit is the largest sample size for which the exact permutation
// distribution is used. Both samples must be at or below it and tie-free.
const ExactLimit = 8

// Method names how a p-value was obtained.
type Method string

const (
	MethodExact      Method = "exact"
	MethodAsymptotic Method = "asymptotic"
)

// UTest is the outcome of MannWhitneyGreater.
type UTest struct {
	U1     float64
	U2     float64
	P      float64
	Method Method
}

// MannWhitneyGreater tests whether x is stochastically greater than y. U1 is
// the statistic for x; U2 = len(x)·len(y) − U1. Both samples must be
// non-empty. The inputs are not modified.
func MannWhitneyGreater(x, y []float64) (UTest, error) {
	return mannWhitneySorted(sortedCopy(x), sortedCopy(y))
}

// mannWhitneySorted is MannWhitneyGreater over samples already in ascending
// order.
func mannWhitneySorted(xs, ys []float64) (UTest, error) {
	n1, n2 := len(xs), len(ys)
	if n1 == 0 || n2 == 0 {
		return UTest{}, errors.New(errors.ErrCodeInsufficientSample, "rank-sum test needs two non-empty samples").
			WithDetailf("n1=%d n2=%d", n1, n2)
	}

	r1, tieTerm, ties := rankSum(xs, ys)

	u1 := r1 - float64(n1)*float64(n1+1)/2
	res := UTest{U1: u1, U2: float64(n1)*float64(n2) - u1}

	if !ties && n1 <= ExactLimit && n2 <= ExactLimit {
		res.P = exactGreater(int(math.Round(u1)), n1, n2)
		res.Method = MethodExact
		return res, nil
	}

	fn1, fn2 := float64(n1), float64(n2)
	n := fn1 + fn2
	mu := fn1 * fn2 / 2
	variance := fn1 * fn2 / 12 * ((n + 1) - tieTerm/(n*(n-1)))
	res.Method = MethodAsymptotic
	if variance <= 0 {
		// Every value is tied; the samples are indistinguishable.
		res.P = 1
		return res, nil
	}
	z := (u1 - mu - 0.5) / math.Sqrt(variance)
	res.P = clamp01(distuv.UnitNormal.Survival(z))
	return res, nil
}

// rankSum merges two sorted samples and returns the rank sum of xs using
// mid-ranks for ties, Σ(t³−t) over tie groups, and whether any tie occurred.
func rankSum(xs, ys []float64) (r1, tieTerm float64, ties bool) {
	i, j := 0, 0
	seen := 0
	for i < len(xs) || j < len(ys) {
		var v float64
		switch {
		case j >= len(ys):
			v = xs[i]
		case i >= len(xs):
			v = ys[j]
		default:
			v = math.Min(xs[i], ys[j])
		}
		cx := 0
		for i < len(xs) && xs[i] == v {
			cx++
			i++
		}
		cy := 0
		for j < len(ys) && ys[j] == v {
			cy++
			j++
		}
		t := float64(cx + cy)
		mid := float64(seen) + (t+1)/2
		r1 += float64(cx) * mid
		if t > 1 {
			ties = true
			tieTerm += t*t*t - t
		}
		seen += cx + cy
	}
	return r1, tieTerm, ties
}

// exactGreater returns P(U >= u) under the null hypothesis for samples of
// size n1 and n2, counting arrangements with the usual recurrence
// f(a, b, u) = f(a−1, b, u−b) + f(a, b−1, u).
func exactGreater(u, n1, n2 int) float64 {
	maxU := n1 * n2
	if u <= 0 {
		return 1
	}
	if u > maxU {
		return 0
	}
	// prev[b][k] holds f(a−1, b, k); cur[b][k] holds f(a, b, k).
	prev := make([][]float64, n2+1)
	for b := range prev {
		prev[b] = make([]float64, maxU+1)
		prev[b][0] = 1
	}
	for a := 1; a <= n1; a++ {
		cur := make([][]float64, n2+1)
		for b := range cur {
			cur[b] = make([]float64, maxU+1)
		}
		cur[0][0] = 1
		for b := 1; b <= n2; b++ {
			for k := 0; k <= a*b; k++ {
				c := cur[b-1][k]
				if k >= b {
					c += prev[b][k-b]
				}
				cur[b][k] = c
			}
		}
		prev = cur
	}
	counts := prev[n2]
	var total, tail float64
	for k, c := range counts {
		total += c
		if k >= u {
			tail += c
		}
	}
	return tail / total
}

// Median returns the middle value of x, averaging the two central values for
// even lengths. The input is not modified. It is NaN for an empty sample.
func Median(x []float64) float64 {
	if len(x) == 0 {
		return math.NaN()
	}
	return medianSorted(sortedCopy(x))
}

func medianSorted(s []float64) float64 {
	if len(s) == 0 {
		return math.NaN()
	}
	mid := len(s) / 2
	if len(s)%2 == 1 {
		return s[mid]
	}
	return (s[mid-1] + s[mid]) / 2
}

// Bonferroni scales p by the number of tests, capped at 1.
func Bonferroni(p float64, tests int) float64 {
	if math.IsNaN(p) {
		return p
	}
	return math.Min(p*float64(tests), 1)
}

func sortedCopy(x []float64) []float64 {
	s := make([]float64, len(x))
	copy(s, x)
	sort.Float64s(s)
	return s
}

func clamp01(p float64) float64 {
	switch {
	case p < 0:
		return 0
	case p > 1:
		return 1
	}
	return p
}
