package modules

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Luismorlan/campusfeed/broker"
	"github.com/Luismorlan/campusfeed/changefeed"
	"github.com/Luismorlan/campusfeed/model"
	"github.com/Luismorlan/campusfeed/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type gaugeKey struct {
	name  string
	scope string
}

type fakeGauger struct {
	mu     sync.Mutex
	values map[gaugeKey]float64
}

func (g *fakeGauger) Gauge(name string, value float64, tags []string, rate float64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	scope := ""
	if len(tags) > 0 {
		scope = tags[0]
	}
	g.values[gaugeKey{name, scope}] = value
	return nil
}

func (g *fakeGauger) get(name, scope string) float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.values[gaugeKey{name, scope}]
}

func TestStatsReporter(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := store.NewMemoryStore(changefeed.NewGoChannelNotifier(changefeed.NewDefaultEventBus()))
	defer s.Close()
	p, err := s.CreatePost(ctx, &model.Post{AuthorId: "author", Body: "hello"})
	require.NoError(t, err)

	b := broker.NewBroker(s, broker.Config{InitialBackoff: 10 * time.Millisecond})
	g := &fakeGauger{values: map[gaugeKey]float64{}}
	r := NewStatsReporter(StatsReporterConfig{Name: "stats_reporter", Interval: 20 * time.Millisecond}, g, b, s)
	assert.Equal(t, "stats_reporter", r.Name())

	done := make(chan error)
	go func() { done <- r.RunModule(ctx) }()

	assert.Eventually(t, func() bool {
		return g.get(DDOG_TOTAL_POSTS, "scope:snapshot") == 1 && g.get(DDOG_TOTAL_POSTS, "scope:store") == 1
	}, 3*time.Second, 10*time.Millisecond)

	_, err = s.ToggleMembership(ctx, p.Id, model.EngagementLike, "x")
	require.NoError(t, err)
	assert.Eventually(t, func() bool {
		return g.get(DDOG_TOTAL_LIKES, "scope:snapshot") == 1 && g.get(DDOG_TOTAL_LIKES, "scope:store") == 1
	}, 3*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool {
		return g.get(DDOG_ACTIVE_SUBSCRIPTIONS, "") == 1
	}, 3*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("reporter did not stop")
	}
	assert.Equal(t, 0, b.ActiveSubscriptionsCount())
}
