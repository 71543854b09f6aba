package stats

import (
	"math/rand"
	"sort"
	"sync"

	"FinSim/internal/domain/models"
)

// DefaultSeed makes resampling reproducible unless a caller asks otherwise.
const DefaultSeed int64 = 42

type bootstrapOptions struct {
	seed        int64
	workers     int
	keepSamples bool
}

type BootstrapOption func(*bootstrapOptions)

func WithSeed(seed int64) BootstrapOption {
	return func(o *bootstrapOptions) { o.seed = seed }
}

// WithWorkers spreads iterations over n goroutines. Results do not depend on
// n's scheduling, but a different n draws different random streams.
func WithWorkers(n int) BootstrapOption {
	return func(o *bootstrapOptions) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithSamples keeps the full resampled distributions on the result.
func WithSamples() BootstrapOption {
	return func(o *bootstrapOptions) { o.keepSamples = true }
}

// Bootstrap resamples pnl with replacement iterations times and reports the
// 95% interval of net profit and of max drawdown (percent). An empty series or
// zero iterations returns a zero-width interval without sampling.
func Bootstrap(pnl []float64, initialEquity float64, iterations int, opts ...BootstrapOption) models.BootstrapResult {
	o := bootstrapOptions{seed: DefaultSeed, workers: 1}
	for _, opt := range opts {
		opt(&o)
	}

	n := len(pnl)
	if n == 0 || iterations <= 0 {
		return models.BootstrapResult{Iterations: max(iterations, 0), SampleSize: n}
	}

	profits := make([]float64, iterations)
	drawdowns := make([]float64, iterations)

	workers := min(o.workers, iterations)
	chunk := (iterations + workers - 1) / workers

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		lo := w * chunk
		hi := min(lo+chunk, iterations)
		if lo >= hi {
			break
		}
		wg.Add(1)
		go func(w, lo, hi int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(o.seed + int64(w)))
			for it := lo; it < hi; it++ {
				profits[it], drawdowns[it] = resampleOnce(rng, pnl, initialEquity)
			}
		}(w, lo, hi)
	}
	wg.Wait()

	res := models.BootstrapResult{Iterations: iterations, SampleSize: n}
	if o.keepSamples {
		res.NetProfitSamples = append([]float64(nil), profits...)
		res.MaxDrawdownSamples = append([]float64(nil), drawdowns...)
	}

	sort.Float64s(profits)
	sort.Float64s(drawdowns)
	lo, hi := percentileIndices(iterations)
	res.NetProfitCI = [2]float64{models.Round(profits[lo], 2), models.Round(profits[hi], 2)}
	res.MaxDrawdownCI = [2]float64{models.Round(drawdowns[lo], 2), models.Round(drawdowns[hi], 2)}
	return res
}

// resampleOnce draws len(pnl) trades and returns the path's net profit and its
// max peak-to-trough drawdown in percent.
func resampleOnce(rng *rand.Rand, pnl []float64, initialEquity float64) (float64, float64) {
	equity := initialEquity
	peak := initialEquity
	maxDD := 0.0
	for range pnl {
		equity += pnl[rng.Intn(len(pnl))]
		if equity > peak {
			peak = equity
		}
		if peak > 0 {
			if dd := (peak - equity) / peak; dd > maxDD {
				maxDD = dd
			}
		}
	}
	return equity - initialEquity, maxDD * 100
}

func percentileIndices(iterations int) (int, int) {
	lo := int(float64(iterations) * 0.025)
	hi := int(float64(iterations) * 0.975)
	if hi > iterations-1 {
		hi = iterations - 1
	}
	if lo > hi {
		lo = hi
	}
	return lo, hi
}
