package modules

import (
	"context"
	"time"

	"github.com/Luismorlan/campusfeed/broker"
	"github.com/Luismorlan/campusfeed/engine"
	"github.com/Luismorlan/campusfeed/model"
	"github.com/Luismorlan/campusfeed/stats"
	"github.com/Luismorlan/campusfeed/store"
	Logger "github.com/Luismorlan/campusfeed/utils/log"
	"github.com/pkg/errors"
)

const (
	DDOG_TOTAL_POSTS          = "community.total_posts"
	DDOG_TOTAL_LIKES          = "community.total_likes"
	DDOG_TOTAL_REPOSTS        = "community.total_reposts"
	DDOG_TOTAL_SHARES         = "community.total_shares"
	DDOG_ACTIVE_SUBSCRIPTIONS = "broker.active_subscriptions"

	// Viewer id the reporter subscribes with.
	StatsReporterViewerId = "system__stats_reporter"
)

// Gauger is the part of the dogstatsd client the reporter uses.
type Gauger interface {
	Gauge(name string, value float64, tags []string, rate float64) error
}

type StatsReporterConfig struct {
	Name string
	// Store wide totals are gauged every other interval.
	Interval time.Duration
}

// StatsReporter's job is to follow the live feed like any viewer would and
// send community totals to Datadog for monitoring purpose.
type StatsReporter struct {
	engine.Module

	Config StatsReporterConfig

	Statsd Gauger
	Broker *broker.Broker
	Store  store.Store
}

func NewStatsReporter(config StatsReporterConfig, statsd Gauger, b *broker.Broker, s store.Store) *StatsReporter {
	if config.Interval <= 0 {
		config.Interval = time.Minute
	}
	return &StatsReporter{
		Config: config,
		Statsd: statsd,
		Broker: b,
		Store:  s,
	}
}

func (r *StatsReporter) gauge(totals *model.CommunityStats, scope string) {
	tags := []string{"scope:" + scope}
	for name, value := range map[string]int{
		DDOG_TOTAL_POSTS:   totals.TotalPosts,
		DDOG_TOTAL_LIKES:   totals.TotalLikes,
		DDOG_TOTAL_REPOSTS: totals.TotalReposts,
		DDOG_TOTAL_SHARES:  totals.TotalShares,
	} {
		if err := r.Statsd.Gauge(name, float64(value), tags, 1); err != nil {
			Logger.Log.Infof("cannot report %s: %s", name, err)
		}
	}
}

func (r *StatsReporter) reportStore(ctx context.Context) {
	totals, err := stats.FullTotals(ctx, r.Store)
	if err != nil {
		Logger.Log.Errorf("fail to read store totals: %s", err)
		return
	}
	r.gauge(totals, "store")
	if err := r.Statsd.Gauge(DDOG_ACTIVE_SUBSCRIPTIONS, float64(r.Broker.ActiveSubscriptionsCount()), nil, 1); err != nil {
		Logger.Log.Infof("cannot report %s: %s", DDOG_ACTIVE_SUBSCRIPTIONS, err)
	}
}

func (r *StatsReporter) RunModule(ctx context.Context) error {
	sub, err := r.Broker.Subscribe(ctx, StatsReporterViewerId)
	if err != nil {
		return err
	}
	defer sub.Cancel()

	ticker := time.NewTicker(r.Config.Interval)
	defer ticker.Stop()

	errs := sub.Errors()
	r.reportStore(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case snapshot, ok := <-sub.Snapshots():
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errors.New("stats reporter subscription ended")
			}
			r.gauge(stats.OnSnapshot(snapshot), "snapshot")
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			Logger.Log.Warnf("stats reporter subscription: %s", err)
		case <-ticker.C:
			r.reportStore(ctx)
		}
	}
}

func (r *StatsReporter) Name() string {
	return r.Config.Name
}

// Shutdown is a no-op, the subscription ends with the root context.
func (r *StatsReporter) Shutdown() {}
