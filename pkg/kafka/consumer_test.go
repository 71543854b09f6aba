package kafka

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingHandler struct {
	topic string
	calls int32
	failN int32
}

func (h *countingHandler) Topic() string { return h.topic }

func (h *countingHandler) Handle(_ context.Context, _ []byte) error {
	n := atomic.AddInt32(&h.calls, 1)
	if n <= h.failN {
		return errors.New("transient")
	}
	return nil
}

func testConsumer(retry int) *Consumer {
	return newConsumer(&ConsumerConfig{
		GroupID:    "test",
		BufferSize: 1,
		RetryMax:   retry,
		BackoffMin: time.Millisecond,
		BackoffMax: time.Millisecond,
	})
}

func TestProcessRetriesUntilSuccess(t *testing.T) {
	c := testConsumer(3)
	h := &countingHandler{topic: "bars", failN: 2}
	c.RegisterHandler(h)

	err := c.process(&message{topic: "bars", data: []byte(`{}`)})
	require.NoError(t, err)
	assert.Equal(t, int32(3), h.calls)
}

func TestProcessParksExhaustedMessageInDLQ(t *testing.T) {
	c := testConsumer(1)
	w := &fakeWriter{}
	c.dlq = w
	c.cfg.DLQTopic = "bars.dlq"
	h := &countingHandler{topic: "bars", failN: 10}
	c.RegisterHandler(h)

	err := c.process(&message{topic: "bars", data: []byte(`bad`), km: kafka.Message{Key: []byte("SPY")}})
	require.Error(t, err)
	assert.Equal(t, int32(2), h.calls)
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "bars.dlq", w.msgs[0].Topic)
	assert.Equal(t, "bad", string(w.msgs[0].Value))
	assert.Equal(t, "source_topic", w.msgs[0].Headers[0].Key)
}

func TestProcessRecoversHandlerPanic(t *testing.T) {
	c := testConsumer(0)
	c.handlers["bars"] = panicHandler{}

	err := c.process(&message{topic: "bars"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic")
}

type panicHandler struct{}

func (panicHandler) Topic() string                        { return "bars" }
func (panicHandler) Handle(context.Context, []byte) error { panic("boom") }

func TestHookChainStopsOnBeforeError(t *testing.T) {
	var errs int32
	failing := HookFuncs{
		Before: func(ctx context.Context, _ string, km kafka.Message, d []byte) (context.Context, kafka.Message, []byte, error) {
			return ctx, km, d, &HookError{Code: "ERR_VALIDATION"}
		},
	}
	counter := HookFuncs{
		Err: func(context.Context, string, kafka.Message, []byte, error) { atomic.AddInt32(&errs, 1) },
	}
	chain := NewHookChain(counter, failing, nil)

	_, _, _, err := chain.BeforeHandle(context.Background(), "t", kafka.Message{}, nil)
	var he *HookError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, "ERR_VALIDATION", he.Code)
	assert.Equal(t, int32(1), errs)
}

func TestHookChainConvertsPanic(t *testing.T) {
	chain := NewHookChain(HookFuncs{
		Before: func(context.Context, string, kafka.Message, []byte) (context.Context, kafka.Message, []byte, error) {
			panic("bad hook")
		},
	})
	_, _, _, err := chain.BeforeHandle(context.Background(), "t", kafka.Message{}, nil)
	var he *HookError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, "ERR_PANIC", he.Code)
}

func TestLoggingHookCarriesTraceID(t *testing.T) {
	hook := NewLoggingHook(nil, 0)
	km := kafka.Message{Headers: []kafka.Header{{Key: "trace_id", Value: []byte("abc")}}}
	ctx, _, _, err := hook.BeforeHandle(context.Background(), "t", km, nil)
	require.NoError(t, err)
	assert.Equal(t, "abc", TraceID(ctx))
}

func TestBackoffWithJitterBounds(t *testing.T) {
	for attempt := 1; attempt < 10; attempt++ {
		d := backoffWithJitter(10*time.Millisecond, 100*time.Millisecond, attempt)
		assert.LessOrEqual(t, d, 100*time.Millisecond)
		assert.Greater(t, d, time.Duration(0))
	}
}
