package usecase

import (
	"sync"
	"time"

	"FinSim/internal/domain/models"
	domrepo "FinSim/internal/domain/repository"
	mid "FinSim/internal/middleware"
)

type bucketKey struct {
	symbol string
	tf     domrepo.Timeframe
}

type bucket struct {
	bar   models.Bar
	ticks int
}

// BarAggregator folds trade prints into 1m and 5m bars keyed by the New York
// wall-clock bucket start. A bucket closes when the first tick of a later
// bucket arrives for the same symbol or when Flush sees its period elapse.
// Ticks for a bucket that is no longer open are counted late and dropped.
type BarAggregator struct {
	mu         sync.Mutex
	timeframes []domrepo.Timeframe
	open       map[bucketKey]*bucket
	closedUpTo map[bucketKey]time.Time
	late       int64
}

func NewBarAggregator(tfs ...domrepo.Timeframe) *BarAggregator {
	if len(tfs) == 0 {
		tfs = []domrepo.Timeframe{domrepo.TF1m, domrepo.TF5m}
	}
	return &BarAggregator{
		timeframes: tfs,
		open:       make(map[bucketKey]*bucket),
		closedUpTo: make(map[bucketKey]time.Time),
	}
}

// Add applies one tick and returns the bars it closed.
func (a *BarAggregator) Add(t *models.Tick) []mid.ClosedBar {
	if t == nil || t.Symbol == "" || t.Price <= 0 || t.Timestamp.IsZero() {
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	var closed []mid.ClosedBar
	for _, tf := range a.timeframes {
		key := bucketKey{symbol: t.Symbol, tf: tf}
		start := t.Timestamp.Truncate(tf.Duration())
		b, ok := a.open[key]

		switch {
		case a.emitted(key, start):
			a.late++
		case !ok:
			a.open[key] = newBucket(start, t)
		case start.Before(b.bar.Timestamp):
			a.late++
		case start.After(b.bar.Timestamp):
			closed = append(closed, a.close(key, b))
			a.open[key] = newBucket(start, t)
		default:
			b.apply(t)
		}
	}
	return closed
}

// Flush closes every open bucket whose period has fully elapsed at now (NY
// wall clock). Quiet symbols thereby still emit their last bar.
func (a *BarAggregator) Flush(now time.Time) []mid.ClosedBar {
	a.mu.Lock()
	defer a.mu.Unlock()

	var closed []mid.ClosedBar
	for key, b := range a.open {
		if !now.Before(b.bar.Timestamp.Add(key.tf.Duration())) {
			closed = append(closed, a.close(key, b))
			delete(a.open, key)
		}
	}
	return closed
}

// emitted reports whether the bucket starting at start was already closed.
func (a *BarAggregator) emitted(key bucketKey, start time.Time) bool {
	last, ok := a.closedUpTo[key]
	return ok && !start.After(last)
}

func (a *BarAggregator) close(key bucketKey, b *bucket) mid.ClosedBar {
	a.closedUpTo[key] = b.bar.Timestamp
	return mid.ClosedBar{Symbol: key.symbol, Timeframe: key.tf, Bar: b.bar}
}

// Late returns how many ticks arrived after their bucket closed.
func (a *BarAggregator) Late() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.late
}

func newBucket(start time.Time, t *models.Tick) *bucket {
	return &bucket{
		bar: models.Bar{
			Timestamp: start,
			Open:      t.Price,
			High:      t.Price,
			Low:       t.Price,
			Close:     t.Price,
			Volume:    t.Volume,
		},
		ticks: 1,
	}
}

func (b *bucket) apply(t *models.Tick) {
	if t.Price > b.bar.High {
		b.bar.High = t.Price
	}
	if t.Price < b.bar.Low {
		b.bar.Low = t.Price
	}
	b.bar.Close = t.Price
	b.bar.Volume += t.Volume
	b.ticks++
}
