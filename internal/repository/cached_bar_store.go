package repository

import (
	"context"
	"errors"
	"time"

	"FinSim/internal/domain/models"
	domrepo "FinSim/internal/domain/repository"
	"FinSim/pkg/cache"
	applogger "FinSim/pkg/logger"
)

const barKeyPrefix = "bars"

// CachedBarStore is a read-through cache in front of a BarRepository. Only
// Get is cached; Save drops every cached range of the symbol.
type CachedBarStore struct {
	next  domrepo.BarRepository
	cache cache.Service
	ttl   time.Duration
	l     *applogger.Logger
}

func NewCachedBarStore(next domrepo.BarRepository, c cache.Service, ttl time.Duration, l *applogger.Logger) *CachedBarStore {
	if l == nil {
		l = applogger.Nop()
	}
	return &CachedBarStore{next: next, cache: c, ttl: ttl, l: l}
}

func barKey(symbol string, tf domrepo.Timeframe, from, to time.Time) string {
	return cache.GenerateKeyWithParams(barKeyPrefix, symbol, string(tf), from.Format("20060102T1504"), to.Format("20060102T1504"))
}

func (s *CachedBarStore) Get(ctx context.Context, symbol string, tf domrepo.Timeframe, from, to time.Time, limit int) ([]models.Bar, error) {
	key := barKey(symbol, tf, from, to)
	if limit <= 0 {
		var bars []models.Bar
		err := s.cache.Get(ctx, key, &bars)
		if err == nil {
			return bars, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.l.Warn("bar cache read failed", applogger.String("key", key), applogger.Error(err))
		}
	}

	bars, err := s.next.Get(ctx, symbol, tf, from, to, limit)
	if err != nil {
		return nil, err
	}
	if limit <= 0 && len(bars) > 0 {
		if err := s.cache.Set(ctx, key, bars, s.ttl); err != nil {
			s.l.Warn("bar cache write failed", applogger.String("key", key), applogger.Error(err))
		}
	}
	return bars, nil
}

func (s *CachedBarStore) Save(ctx context.Context, symbol string, tf domrepo.Timeframe, bars []models.Bar, source string) (int, error) {
	n, err := s.next.Save(ctx, symbol, tf, bars, source)
	if n > 0 {
		pattern := cache.BuildPattern(cache.GenerateKeyWithParams(barKeyPrefix, symbol, string(tf)) + ":")
		if derr := s.cache.DeleteByPattern(ctx, pattern); derr != nil {
			s.l.Warn("bar cache invalidation failed", applogger.String("pattern", pattern), applogger.Error(derr))
		}
	}
	return n, err
}

func (s *CachedBarStore) HasData(ctx context.Context, symbol string, tf domrepo.Timeframe, from, to time.Time) (bool, error) {
	ok, err := s.cache.Exists(ctx, barKey(symbol, tf, from, to))
	if err == nil && ok {
		return true, nil
	}
	return s.next.HasData(ctx, symbol, tf, from, to)
}

func (s *CachedBarStore) Latest(ctx context.Context, symbol string, tf domrepo.Timeframe, n int) ([]models.Bar, error) {
	return s.next.Latest(ctx, symbol, tf, n)
}
