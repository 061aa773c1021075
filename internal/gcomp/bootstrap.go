package gcomp

import (
	"context"
	"fmt"
	"math/rand"
	"runtime"
	"sort"

	"github.com/montanaflynn/stats"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"
)

// Interval is a bootstrap summary of a mean
type Interval struct {
	Lower  float64
	Upper  float64
	StdErr float64
	Means  []float64
}

// BootstrapMean resamples values with replacement b times and returns the
// percentile interval at level 1-alpha. Resample k draws from seed+k, so the
// result does not depend on goroutine scheduling.
func BootstrapMean(ctx context.Context, values []float64, b int, seed int64, alpha float64, workers int) (Interval, error) {
	n := len(values)
	if n == 0 {
		return Interval{}, fmt.Errorf("bootstrap over empty sample")
	}
	if b < 2 {
		return Interval{}, fmt.Errorf("bootstrap needs at least 2 resamples, got %d", b)
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	means := make([]float64, b)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for k := 0; k < b; k++ {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rng := rand.New(rand.NewSource(seed + int64(k)))
			var s float64
			for i := 0; i < n; i++ {
				s += values[rng.Intn(n)]
			}
			means[k] = s / float64(n)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Interval{}, err
	}

	sorted := append([]float64(nil), means...)
	sort.Float64s(sorted)
	sd, err := stats.StandardDeviationSample(means)
	if err != nil {
		return Interval{}, err
	}
	return Interval{
		Lower:  stat.Quantile(alpha/2, stat.Empirical, sorted, nil),
		Upper:  stat.Quantile(1-alpha/2, stat.Empirical, sorted, nil),
		StdErr: sd,
		Means:  means,
	}, nil
}
