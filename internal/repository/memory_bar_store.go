package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"FinSim/internal/domain/models"
	domrepo "FinSim/internal/domain/repository"
)

type seriesKey struct {
	symbol string
	tf     domrepo.Timeframe
}

// MemoryBarStore keeps bars in process. The offline CLI loads CSV files into
// it, and tests use it in place of ClickHouse.
type MemoryBarStore struct {
	mu     sync.RWMutex
	series map[seriesKey][]models.Bar
}

func NewMemoryBarStore() *MemoryBarStore {
	return &MemoryBarStore{series: make(map[seriesKey][]models.Bar)}
}

// Save upserts by timestamp and keeps each series sorted.
func (s *MemoryBarStore) Save(_ context.Context, symbol string, tf domrepo.Timeframe, bars []models.Bar, _ string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := seriesKey{symbol, tf}
	byTime := make(map[time.Time]models.Bar, len(s.series[key])+len(bars))
	for _, b := range s.series[key] {
		byTime[b.Timestamp] = b
	}
	n := 0
	for _, b := range bars {
		if !b.Valid() {
			continue
		}
		byTime[b.Timestamp] = b
		n++
	}

	merged := make([]models.Bar, 0, len(byTime))
	for _, b := range byTime {
		merged = append(merged, b)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].Timestamp.Before(merged[j].Timestamp) })
	s.series[key] = merged
	return n, nil
}

func (s *MemoryBarStore) Get(_ context.Context, symbol string, tf domrepo.Timeframe, from, to time.Time, limit int) ([]models.Bar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.series[seriesKey{symbol, tf}]
	lo := sort.Search(len(all), func(i int) bool { return !all[i].Timestamp.Before(from) })
	hi := sort.Search(len(all), func(i int) bool { return !all[i].Timestamp.Before(to) })
	if limit > 0 && hi-lo > limit {
		hi = lo + limit
	}
	out := make([]models.Bar, hi-lo)
	copy(out, all[lo:hi])
	return out, nil
}

func (s *MemoryBarStore) HasData(ctx context.Context, symbol string, tf domrepo.Timeframe, from, to time.Time) (bool, error) {
	bars, err := s.Get(ctx, symbol, tf, from, to, minStoredBars)
	if err != nil {
		return false, err
	}
	return len(bars) >= minStoredBars, nil
}

func (s *MemoryBarStore) Latest(_ context.Context, symbol string, tf domrepo.Timeframe, n int) ([]models.Bar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.series[seriesKey{symbol, tf}]
	if n <= 0 || n > len(all) {
		n = len(all)
	}
	out := make([]models.Bar, n)
	copy(out, all[len(all)-n:])
	return out, nil
}
