package logger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memPublisher struct {
	mu      sync.Mutex
	topic   string
	batches [][]AggregatedLogEntry
}

func (p *memPublisher) PublishMessage(_ context.Context, topic string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topic = topic
	p.batches = append(p.batches, payload.([]AggregatedLogEntry))
	return nil
}

func TestCollector_DeduplicatesAcrossChildren(t *testing.T) {
	root := Nop()
	child := root.With(String("component", "loader"))

	pub := &memPublisher{}
	root.AddCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 10, Topic: "logs", Publisher: pub})

	for i := 0; i < 2; i++ {
		child.Warn("provider fetch failed", String("symbol", "QQQ"))
	}
	root.Error("archive failed")
	root.Info("ignored")

	root.RemoveCollector()

	pub.mu.Lock()
	defer pub.mu.Unlock()
	require.Len(t, pub.batches, 1)
	assert.Equal(t, "logs", pub.topic)

	counts := map[string]int{}
	for _, e := range pub.batches[0] {
		counts[e.Message] = e.Count
	}
	assert.Equal(t, map[string]int{"provider fetch failed": 2, "archive failed": 1}, counts)
}

func TestCollector_NoCollectorIsNoop(t *testing.T) {
	l := Nop()
	l.Warn("nothing attached")
	l.RemoveCollector()
}
