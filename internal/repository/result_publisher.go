package repository

import (
	"context"

	"FinSim/internal/domain/models"
	pkgkafka "FinSim/pkg/kafka"
)

type batchProducer interface {
	PublishBatch(ctx context.Context, topic string, messages []pkgkafka.Message) error
	Close() error
}

// Envelope types carried in the "type" header of result messages.
const (
	MessageTypeTrade   = "trade"
	MessageTypeSummary = "summary"
)

type tradeMessage struct {
	SimID string `json:"sim_id"`
	models.TradeView
}

type summaryMessage struct {
	SimID string `json:"sim_id"`
	*models.Summary
}

// KafkaResultPublisher writes trades and summaries to one topic keyed by sim
// id, so a run's messages land on one partition in order.
type KafkaResultPublisher struct {
	producer batchProducer
	topic    string
}

func NewKafkaResultPublisher(producer *pkgkafka.Producer, topic string) *KafkaResultPublisher {
	return &KafkaResultPublisher{producer: producer, topic: topic}
}

func (p *KafkaResultPublisher) PublishTrades(ctx context.Context, simID string, trades []models.TradeView) error {
	if len(trades) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, len(trades))
	for i, t := range trades {
		msgs[i] = pkgkafka.Message{
			Key:     []byte(simID),
			Value:   tradeMessage{SimID: simID, TradeView: t},
			Headers: map[string]string{"type": MessageTypeTrade},
		}
	}
	return p.producer.PublishBatch(ctx, p.topic, msgs)
}

func (p *KafkaResultPublisher) PublishSummary(ctx context.Context, simID string, summary *models.Summary) error {
	if summary == nil {
		return nil
	}
	return p.producer.PublishBatch(ctx, p.topic, []pkgkafka.Message{{
		Key:     []byte(simID),
		Value:   summaryMessage{SimID: simID, Summary: summary},
		Headers: map[string]string{"type": MessageTypeSummary},
	}})
}

func (p *KafkaResultPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

// NopResultPublisher drops everything. Used when Kafka is disabled.
type NopResultPublisher struct{}

func (NopResultPublisher) PublishTrades(context.Context, string, []models.TradeView) error {
	return nil
}

func (NopResultPublisher) PublishSummary(context.Context, string, *models.Summary) error {
	return nil
}

func (NopResultPublisher) Close() error { return nil }
