package ope

import (
	"fmt"
	"math"
	"strings"

	"github.com/montanaflynn/stats"
)

// Method names an off-policy estimator
type Method string

const (
	MethodIPS   Method = "ips"
	MethodSNIPS Method = "snips"
	MethodDR    Method = "dr"
)

// Methods lists every supported estimator in report order
var Methods = []Method{MethodIPS, MethodSNIPS, MethodDR}

// weightFloor keeps denominators away from zero
const weightFloor = 1e-10

// ParseMethod resolves an estimator name, case-insensitively
func ParseMethod(s string) (Method, error) {
	switch m := Method(strings.ToLower(strings.TrimSpace(s))); m {
	case MethodIPS, MethodSNIPS, MethodDR:
		return m, nil
	default:
		return "", fmt.Errorf("unknown OPE method %q (want ips, snips or dr)", s)
	}
}

// Inputs are the aligned per-unit vectors an estimator consumes
type Inputs struct {
	Logged     []int
	NewPolicy  []int
	Propensity []float64
	Profit     []float64
	Weights    []float64
}

// Estimate is a raw point estimate before interval construction
type Estimate struct {
	Value      float64
	StdErr     float64
	Degenerate bool
}

// Estimator computes an off-policy value for one assignment vector
type Estimator interface {
	Method() Method
	Estimate(in Inputs) Estimate
}

// ForMethod is the single dispatch point from method name to estimator
func ForMethod(m Method) (Estimator, error) {
	switch m {
	case MethodIPS:
		return ipsEstimator{}, nil
	case MethodSNIPS:
		return snipsEstimator{}, nil
	case MethodDR:
		return drEstimator{}, nil
	default:
		return nil, fmt.Errorf("unknown OPE method %q", m)
	}
}

// ImportanceWeights returns 1/propensity where the new policy agrees with the
// logged treatment and 0 elsewhere.
func ImportanceWeights(logged, newPolicy []int, propensity []float64) []float64 {
	w := make([]float64, len(logged))
	for i := range logged {
		if logged[i] == newPolicy[i] {
			w[i] = 1 / math.Max(propensity[i], weightFloor)
		}
	}
	return w
}

// EffectiveSampleSize is (Σw)² / Σw², zero when every weight is zero
func EffectiveSampleSize(w []float64) float64 {
	var sum, sumSq float64
	for _, v := range w {
		sum += v
		sumSq += v * v
	}
	if sumSq < weightFloor {
		return 0
	}
	return sum * sum / sumSq
}

func sum(xs []float64) float64 {
	s, _ := stats.Sum(xs)
	return s
}

func sampleVariance(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	v, err := stats.SampleVariance(xs)
	if err != nil {
		return 0
	}
	return v
}

type ipsEstimator struct{}

func (ipsEstimator) Method() Method { return MethodIPS }

func (ipsEstimator) Estimate(in Inputs) Estimate {
	n := len(in.Profit)
	if n == 0 || sum(in.Weights) < weightFloor {
		return Estimate{Degenerate: true}
	}
	wp := make([]float64, n)
	for i := range wp {
		wp[i] = in.Weights[i] * in.Profit[i]
	}
	mean, _ := stats.Mean(wp)
	return Estimate{
		Value:  mean,
		StdErr: math.Sqrt(sampleVariance(wp) / float64(n)),
	}
}

type snipsEstimator struct{}

func (snipsEstimator) Method() Method { return MethodSNIPS }

func (snipsEstimator) Estimate(in Inputs) Estimate {
	sumW := sum(in.Weights)
	if len(in.Profit) == 0 || sumW < weightFloor {
		return Estimate{Degenerate: true}
	}
	denom := math.Max(sumW, weightFloor)
	var num float64
	for i, w := range in.Weights {
		num += w * in.Profit[i]
	}
	value := num / denom

	// delta method on the residuals w(p - V)
	var ss float64
	for i, w := range in.Weights {
		r := w * (in.Profit[i] - value)
		ss += r * r
	}
	return Estimate{
		Value:  value,
		StdErr: math.Sqrt(ss) / denom,
	}
}

type drEstimator struct{}

func (drEstimator) Method() Method { return MethodDR }

// Estimate uses a per-arm mean outcome model. It is degenerate when the new
// policy needs an arm that was never logged.
func (drEstimator) Estimate(in Inputs) Estimate {
	n := len(in.Profit)
	if n == 0 {
		return Estimate{Degenerate: true}
	}
	mu, seen := ArmMeans(in.Logged, in.Profit)
	for _, a := range in.NewPolicy {
		if !seen[a] {
			return Estimate{Degenerate: true}
		}
	}

	terms := make([]float64, n)
	for i := range terms {
		terms[i] = mu[in.NewPolicy[i]] + in.Weights[i]*(in.Profit[i]-mu[in.Logged[i]])
	}
	mean, _ := stats.Mean(terms)
	return Estimate{
		Value:  mean,
		StdErr: math.Sqrt(sampleVariance(terms)) / math.Sqrt(float64(n)),
	}
}

// ArmMeans returns mean profit per logged arm and whether each arm was observed
func ArmMeans(logged []int, profit []float64) (mu [2]float64, seen [2]bool) {
	var sums [2]float64
	var counts [2]int
	for i, a := range logged {
		sums[a] += profit[i]
		counts[a]++
	}
	for a := 0; a < 2; a++ {
		if counts[a] > 0 {
			mu[a] = sums[a] / float64(counts[a])
			seen[a] = true
		}
	}
	return mu, seen
}
