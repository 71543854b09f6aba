package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"FinSim/internal/domain/models"
	domrepo "FinSim/internal/domain/repository"
	pkgkafka "FinSim/pkg/kafka"
	"FinSim/pkg/logger"
	"FinSim/pkg/util"
)

const defaultIngestSource = "kafka"

// BarIngestHandler consumes bar messages from Kafka and writes them to the bar store.
type BarIngestHandler struct {
	topic   string
	store   domrepo.BarRepository
	metrics domrepo.Metrics
	log     *logger.Logger
	skipped atomic.Int64
}

func NewBarIngestHandler(topic string, store domrepo.BarRepository, metrics domrepo.Metrics, l *logger.Logger) *BarIngestHandler {
	if l == nil {
		l = logger.Nop()
	}
	return &BarIngestHandler{topic: topic, store: store, metrics: metrics, log: l}
}

func (h *BarIngestHandler) Topic() string { return h.topic }

// Skipped returns how many messages were dropped for an unusable timestamp.
func (h *BarIngestHandler) Skipped() int64 { return h.skipped.Load() }

// Handle accepts either one bar object or an array of bars:
// {symbol, interval, timestamp, open, high, low, close, volume, source}.
// Unparseable JSON is returned as an error so the consumer can dead-letter it;
// bad timestamps and incoherent prices are skipped.
func (h *BarIngestHandler) Handle(ctx context.Context, b []byte) error {
	raws, err := decodeRawBars(b)
	if err != nil {
		h.recordError("consumer_unmarshal")
		return err
	}

	type groupKey struct {
		symbol string
		tf     domrepo.Timeframe
		source string
	}
	groups := make(map[groupKey][]models.Bar)
	var order []groupKey

	for _, r := range raws {
		bar, err := r.ToBar()
		if err != nil {
			h.skip("timestamp", r, err)
			continue
		}
		if !bar.Valid() {
			h.skip("invalid", r, nil)
			continue
		}
		symbol := util.NormalizeSymbol(r.Symbol)
		if symbol == "" {
			h.skip("symbol", r, nil)
			continue
		}
		source := r.Source
		if source == "" {
			source = defaultIngestSource
		}
		k := groupKey{symbol: symbol, tf: domrepo.NormalizeTimeframe(r.Interval), source: source}
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], bar)
	}

	for _, k := range order {
		start := time.Now()
		n, err := h.store.Save(ctx, k.symbol, k.tf, groups[k], k.source)
		if h.metrics != nil {
			h.metrics.RecordLatency("bar_ingest_store", time.Since(start).Seconds())
		}
		if err != nil {
			h.recordError("consumer_store")
			return fmt.Errorf("store %s %s bars: %w", k.symbol, k.tf, err)
		}
		if h.metrics != nil {
			h.metrics.RecordBarsStored(k.tf, k.source, n)
		}
	}
	return nil
}

func decodeRawBars(b []byte) ([]models.RawBar, error) {
	var many []models.RawBar
	if err := json.Unmarshal(b, &many); err == nil {
		return many, nil
	}
	var one models.RawBar
	if err := json.Unmarshal(b, &one); err != nil {
		return nil, fmt.Errorf("decode bar message: %w", err)
	}
	return []models.RawBar{one}, nil
}

func (h *BarIngestHandler) skip(reason string, r models.RawBar, err error) {
	n := h.skipped.Add(1)
	h.recordError("bar_ingest_skip_" + reason)
	fields := []logger.Field{
		logger.String("reason", reason),
		logger.String("symbol", r.Symbol),
		logger.String("timestamp", r.Timestamp),
		logger.Int64("skipped_total", n),
	}
	if err != nil {
		fields = append(fields, logger.Error(err))
	}
	h.log.Debug("bar message skipped", fields...)
}

func (h *BarIngestHandler) recordError(kind string) {
	if h.metrics != nil {
		h.metrics.RecordError(kind)
	}
}

var _ pkgkafka.MessageHandler = (*BarIngestHandler)(nil)
