package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"FinSim/internal/domain/models"
	"FinSim/pkg/cache"
)

const (
	resultKeyPrefix = "sim"
	resultIndexKey  = "sim:index"
	resultIndexLock = "sim:index:lock"
)

// CacheResultStore keeps simulation results as JSON in a cache.Service.
// Records expire after ttl; the id index lists them in creation order.
type CacheResultStore struct {
	cache cache.Service
	ttl   time.Duration
}

func NewCacheResultStore(c cache.Service, ttl time.Duration) *CacheResultStore {
	return &CacheResultStore{cache: c, ttl: ttl}
}

func resultKey(id string) string { return cache.GenerateKey(resultKeyPrefix, id) }

// Save writes the record and registers its id. Saving an existing id
// replaces the record in place.
func (s *CacheResultStore) Save(ctx context.Context, res *models.SimulationResult) error {
	if res == nil || res.ID == "" {
		return fmt.Errorf("save result: empty sim id")
	}
	if err := s.cache.Set(ctx, resultKey(res.ID), res, s.ttl); err != nil {
		return fmt.Errorf("save result %s: %w", res.ID, err)
	}

	return cache.WithLock(ctx, s.cache, resultIndexLock, 5*time.Second, func() error {
		ids, err := s.index(ctx)
		if err != nil {
			return err
		}
		for _, id := range ids {
			if id == res.ID {
				return nil
			}
		}
		ids = append(ids, res.ID)
		if err := s.cache.Set(ctx, resultIndexKey, ids, 0); err != nil {
			return fmt.Errorf("update result index: %w", err)
		}
		return nil
	})
}

func (s *CacheResultStore) Get(ctx context.Context, id string) (*models.SimulationResult, error) {
	var res models.SimulationResult
	if err := s.cache.Get(ctx, resultKey(id), &res); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, fmt.Errorf("%w: %s", models.ErrSimulationNotFound, id)
		}
		return nil, fmt.Errorf("get result %s: %w", id, err)
	}
	return &res, nil
}

// List returns every live record in creation order. Expired ids are skipped.
func (s *CacheResultStore) List(ctx context.Context) ([]models.SimulationListItem, error) {
	ids, err := s.index(ctx)
	if err != nil {
		return nil, err
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = resultKey(id)
	}

	records, err := cache.MGetTyped[models.SimulationResult](ctx, s.cache, keys...)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}

	out := make([]models.SimulationListItem, 0, len(records))
	for _, key := range keys {
		rec, ok := records[key]
		if !ok {
			continue
		}
		out = append(out, models.SimulationListItem{ID: rec.ID, Status: rec.Status, Summary: rec.Summary})
	}
	return out, nil
}

func (s *CacheResultStore) index(ctx context.Context) ([]string, error) {
	var ids []string
	if err := s.cache.Get(ctx, resultIndexKey, &ids); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, nil
		}
		return nil, fmt.Errorf("read result index: %w", err)
	}
	return ids, nil
}
