package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type flakyModule struct {
	runs     int32
	failures int32
	shutdown int32
}

func (m *flakyModule) RunModule(ctx context.Context) error {
	n := atomic.AddInt32(&m.runs, 1)
	if n <= m.failures {
		return errors.New("boom")
	}
	<-ctx.Done()
	return nil
}

func (m *flakyModule) Name() string { return "flaky" }

func (m *flakyModule) Shutdown() { atomic.AddInt32(&m.shutdown, 1) }

func TestRunModuleWithGracefulRestart(t *testing.T) {
	GracefulRetryDelay = 10 * time.Millisecond
	m := &flakyModule{failures: 2}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		RunModuleWithGracefulRestart(ctx, m)
		close(done)
	}()

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&m.runs) == 3 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("module did not stop on cancel")
	}
}

func TestEngineShutdown(t *testing.T) {
	a, b := &flakyModule{}, &flakyModule{}
	e := NewEngine(context.Background(), []Module{a, b})

	done := make(chan struct{})
	go func() {
		e.Run()
		close(done)
	}()

	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&a.runs) == 1 && atomic.LoadInt32(&b.runs) == 1
	}, time.Second, 5*time.Millisecond)
	e.Shutdown()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("engine did not stop")
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&a.shutdown))
	assert.Equal(t, int32(1), atomic.LoadInt32(&b.shutdown))
}
