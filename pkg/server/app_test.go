package server

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"FinSim/pkg/config"
	"FinSim/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) add(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, s)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

type fakeCollector struct {
	rec      *recorder
	startErr error
}

func (f *fakeCollector) Start(context.Context) error {
	f.rec.add("collector.start")
	return f.startErr
}

func (f *fakeCollector) Shutdown(context.Context) error {
	f.rec.add("collector.shutdown")
	return nil
}

type fakeCloser struct {
	rec  *recorder
	name string
	err  error
}

func (f *fakeCloser) Close() error {
	f.rec.add("close." + f.name)
	return f.err
}

func TestRunContext_ShutdownOrder(t *testing.T) {
	rec := &recorder{}
	app := New(config.Default(), logger.Nop(), nil,
		WithCollector(&fakeCollector{rec: rec}),
		WithCloser("clickhouse", &fakeCloser{rec: rec, name: "clickhouse"}),
		WithCloser("cache", &fakeCloser{rec: rec, name: "cache"}),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.RunContext(ctx) }()

	require.Eventually(t, func() bool { return len(rec.list()) == 1 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("app did not stop")
	}

	assert.Equal(t, []string{
		"collector.start",
		"collector.shutdown",
		"close.cache",
		"close.clickhouse",
	}, rec.list())
}

func TestRunContext_CollectorStartFailureIsNotFatal(t *testing.T) {
	rec := &recorder{}
	closeErr := errors.New("boom")
	app := New(config.Default(), logger.Nop(), nil,
		WithCollector(&fakeCollector{rec: rec, startErr: errors.New("dial refused")}),
		WithCloser("producer", &fakeCloser{rec: rec, name: "producer", err: closeErr}),
	)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := app.RunContext(ctx)
	assert.ErrorIs(t, err, closeErr)
	assert.Equal(t, []string{"collector.start", "collector.shutdown", "close.producer"}, rec.list())
}
