package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/Luismorlan/campusfeed/app_config"
	"github.com/Luismorlan/campusfeed/broker"
	"github.com/Luismorlan/campusfeed/changefeed"
	"github.com/Luismorlan/campusfeed/engine"
	"github.com/Luismorlan/campusfeed/engine/modules"
	"github.com/Luismorlan/campusfeed/feed"
	"github.com/Luismorlan/campusfeed/identity"
	"github.com/Luismorlan/campusfeed/ledger"
	"github.com/Luismorlan/campusfeed/server"
	"github.com/Luismorlan/campusfeed/server/middlewares"
	"github.com/Luismorlan/campusfeed/store"
	. "github.com/Luismorlan/campusfeed/utils"
	"github.com/Luismorlan/campusfeed/utils/dotenv"
	. "github.com/Luismorlan/campusfeed/utils/flag"
	. "github.com/Luismorlan/campusfeed/utils/log"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
)

const defaultCognitoRegion = "us-west-1"

func init() {
	if err := dotenv.LoadDotEnvs(); err != nil {
		panic(err)
	}
}

func cleanup() {
	CloseProfiler()
	CloseTracer()
	Log.Info("campusfeed shutdown")
}

func newNotifier(ctx context.Context, config app_config.FeedAppConfig) (changefeed.Notifier, error) {
	if config.NOTIFIER_BACKEND == app_config.NotifierRedis {
		client, err := GetRedisClient(ctx)
		if err != nil {
			return nil, err
		}
		return changefeed.NewRedisNotifier(client), nil
	}
	return changefeed.NewGoChannelNotifier(changefeed.NewDefaultEventBus()), nil
}

func newStore(ctx context.Context, config app_config.FeedAppConfig) (store.Store, error) {
	switch config.STORE_BACKEND {
	case app_config.StorePostgres:
		notifier, err := newNotifier(ctx, config)
		if err != nil {
			return nil, err
		}
		db, err := GetDBConnection()
		if err != nil {
			return nil, err
		}
		if err := DatabaseSetupAndMigration(db); err != nil {
			return nil, err
		}
		return store.NewGormStore(db, notifier), nil
	case app_config.StoreMongo:
		db, err := GetMongoDatabase(ctx)
		if err != nil {
			return nil, err
		}
		return store.NewMongoStore(ctx, db)
	}
	notifier, err := newNotifier(ctx, config)
	if err != nil {
		return nil, err
	}
	return store.NewMemoryStore(notifier), nil
}

func newAuth(ctx context.Context, config app_config.FeedAppConfig) (gin.HandlerFunc, error) {
	if *ByPassAuth {
		Log.Warn("authentication bypassed, X-User-* headers are trusted")
		return middlewares.ByPassAuth(), nil
	}
	if config.IDENTITY_BACKEND == app_config.IdentityCognito {
		provider, err := identity.NewDefaultCognitoProvider(ctx, EnvOrDefault("AWS_REGION", defaultCognitoRegion))
		if err != nil {
			return nil, err
		}
		return middlewares.Identify(provider), nil
	}
	provider, err := identity.NewJWTProvider(os.Getenv("JWT_SECRET"))
	if err != nil {
		return nil, err
	}
	return middlewares.Identify(provider), nil
}

func main() {
	ParseFlags()
	InitLogger()
	defer cleanup()

	StartTracer()
	StartProfiler()

	config, err := app_config.ParseFeedAppConfig(*AppConfigPath)
	if err != nil {
		Log.Fatalf("fail to load app config: %s", err)
	}

	ctx := context.Background()
	s, err := newStore(ctx, config)
	if err != nil {
		Log.Fatalf("fail to initialize %s store: %s", config.STORE_BACKEND, err)
	}
	defer s.Close()

	b := broker.NewBroker(s, broker.Config{
		PageSize:       config.SNAPSHOT_PAGE_SIZE,
		SnapshotBuffer: config.SNAPSHOT_BUFFER,
		InitialBackoff: config.InitialBackoff(),
		MaxBackoff:     config.MaxBackoff(),
	})
	defer b.Shutdown()

	statsd, err := NewDogStatsdClient()
	if err != nil {
		Log.Fatalf("fail to create statsd client: %s", err)
	}
	defer statsd.Close()

	// Reporter follows the live feed and gauges community totals to datadog.
	ms := []engine.Module{
		modules.NewStatsReporter(
			modules.StatsReporterConfig{Name: "stats_reporter", Interval: config.StatsReportInterval()},
			statsd, b, s),
	}

	if *ServiceName == APIServer {
		auth, err := newAuth(ctx, config)
		if err != nil {
			Log.Fatalf("fail to initialize %s identity: %s", config.IDENTITY_BACKEND, err)
		}
		h := &server.Handler{
			Feed: feed.NewFeed(s, feed.Config{
				DefaultPageSize: config.DEFAULT_PAGE_SIZE,
				MaxPageSize:     config.MAX_PAGE_SIZE,
			}),
			Ledger:       ledger.NewLedger(s),
			Broker:       b,
			Store:        s,
			PingInterval: config.PingInterval(),
		}
		ms = append(ms, modules.NewApiServer(
			modules.ApiServerConfig{Name: "api_server", Addr: config.ADDR},
			server.NewRouter(h, auth, *ServiceName)))
	} else if *ServiceName != StatsReporter {
		Log.Fatal(errors.Errorf("unknown service %q", *ServiceName))
	}

	e := engine.NewEngine(ctx, ms)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigs
		Log.Infof("received %s", sig)
		e.Shutdown()
	}()

	Log.Infof("%s starts up", *ServiceName)
	// blocking call.
	e.Run()
}
