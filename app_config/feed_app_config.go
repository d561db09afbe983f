package app_config

import (
	"io/ioutil"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreMongo    = "mongo"

	NotifierGoChannel = "gochannel"
	NotifierRedis     = "redis"

	IdentityJWT     = "jwt"
	IdentityCognito = "cognito"
)

// This is the app config of the feed api server.
type FeedAppConfig struct {
	// Where posts live, one of memory, postgres or mongo.
	STORE_BACKEND string `yaml:"STORE_BACKEND"`
	// How committed changes reach subscriptions, gochannel or redis. Mongo uses
	// change streams and ignores this field.
	NOTIFIER_BACKEND string `yaml:"NOTIFIER_BACKEND"`
	// jwt or cognito.
	IDENTITY_BACKEND string `yaml:"IDENTITY_BACKEND"`
	// Page size used by list when the client doesn't send one.
	DEFAULT_PAGE_SIZE int `yaml:"DEFAULT_PAGE_SIZE"`
	MAX_PAGE_SIZE     int `yaml:"MAX_PAGE_SIZE"`
	// Number of posts in every subscription snapshot.
	SNAPSHOT_PAGE_SIZE int `yaml:"SNAPSHOT_PAGE_SIZE"`
	// Snapshots buffered per subscription before the broker blocks.
	SNAPSHOT_BUFFER int `yaml:"SNAPSHOT_BUFFER"`
	// Resubscribe backoff after a stream error.
	RESUBSCRIBE_INITIAL_BACKOFF_MS int64 `yaml:"RESUBSCRIBE_INITIAL_BACKOFF_MS"`
	RESUBSCRIBE_MAX_BACKOFF_MS     int64 `yaml:"RESUBSCRIBE_MAX_BACKOFF_MS"`
	// Full store totals are gauged every other interval.
	STATS_REPORT_INTERVAL_SECOND int64 `yaml:"STATS_REPORT_INTERVAL_SECOND"`
	// Websocket keepalive.
	WEBSOCKET_PING_INTERVAL_SECOND int64 `yaml:"WEBSOCKET_PING_INTERVAL_SECOND"`
	// Listen address of the api server.
	ADDR string `yaml:"ADDR"`
}

func DefaultFeedAppConfig() FeedAppConfig {
	return FeedAppConfig{
		STORE_BACKEND:                  StoreMemory,
		NOTIFIER_BACKEND:               NotifierGoChannel,
		IDENTITY_BACKEND:               IdentityJWT,
		DEFAULT_PAGE_SIZE:              20,
		MAX_PAGE_SIZE:                  100,
		SNAPSHOT_PAGE_SIZE:             50,
		SNAPSHOT_BUFFER:                4,
		RESUBSCRIBE_INITIAL_BACKOFF_MS: 200,
		RESUBSCRIBE_MAX_BACKOFF_MS:     10000,
		STATS_REPORT_INTERVAL_SECOND:   60,
		WEBSOCKET_PING_INTERVAL_SECOND: 30,
		ADDR:                           ":8080",
	}
}

// ParseFeedAppConfig reads the yaml at path, zero fields keep their default.
func ParseFeedAppConfig(path string) (FeedAppConfig, error) {
	c := FeedAppConfig{}
	yamlFile, err := ioutil.ReadFile(path)
	if err != nil {
		return c, errors.Wrap(err, "fail to read app config")
	}
	return ParseFeedAppConfigBytes(yamlFile)
}

func ParseFeedAppConfigBytes(data []byte) (FeedAppConfig, error) {
	c := FeedAppConfig{}
	if err := yaml.Unmarshal(data, &c); err != nil {
		return c, errors.Wrap(err, "fail to unmarshal app config")
	}
	c.applyDefaults()
	return c, c.Validate()
}

func (c *FeedAppConfig) applyDefaults() {
	d := DefaultFeedAppConfig()
	if c.STORE_BACKEND == "" {
		c.STORE_BACKEND = d.STORE_BACKEND
	}
	if c.NOTIFIER_BACKEND == "" {
		c.NOTIFIER_BACKEND = d.NOTIFIER_BACKEND
	}
	if c.IDENTITY_BACKEND == "" {
		c.IDENTITY_BACKEND = d.IDENTITY_BACKEND
	}
	if c.DEFAULT_PAGE_SIZE == 0 {
		c.DEFAULT_PAGE_SIZE = d.DEFAULT_PAGE_SIZE
	}
	if c.MAX_PAGE_SIZE == 0 {
		c.MAX_PAGE_SIZE = d.MAX_PAGE_SIZE
	}
	if c.SNAPSHOT_PAGE_SIZE == 0 {
		c.SNAPSHOT_PAGE_SIZE = d.SNAPSHOT_PAGE_SIZE
	}
	if c.SNAPSHOT_BUFFER == 0 {
		c.SNAPSHOT_BUFFER = d.SNAPSHOT_BUFFER
	}
	if c.RESUBSCRIBE_INITIAL_BACKOFF_MS == 0 {
		c.RESUBSCRIBE_INITIAL_BACKOFF_MS = d.RESUBSCRIBE_INITIAL_BACKOFF_MS
	}
	if c.RESUBSCRIBE_MAX_BACKOFF_MS == 0 {
		c.RESUBSCRIBE_MAX_BACKOFF_MS = d.RESUBSCRIBE_MAX_BACKOFF_MS
	}
	if c.STATS_REPORT_INTERVAL_SECOND == 0 {
		c.STATS_REPORT_INTERVAL_SECOND = d.STATS_REPORT_INTERVAL_SECOND
	}
	if c.WEBSOCKET_PING_INTERVAL_SECOND == 0 {
		c.WEBSOCKET_PING_INTERVAL_SECOND = d.WEBSOCKET_PING_INTERVAL_SECOND
	}
	if c.ADDR == "" {
		c.ADDR = d.ADDR
	}
}

func (c FeedAppConfig) Validate() error {
	switch c.STORE_BACKEND {
	case StoreMemory, StorePostgres, StoreMongo:
	default:
		return errors.Errorf("unknown STORE_BACKEND %q", c.STORE_BACKEND)
	}
	switch c.NOTIFIER_BACKEND {
	case NotifierGoChannel, NotifierRedis:
	default:
		return errors.Errorf("unknown NOTIFIER_BACKEND %q", c.NOTIFIER_BACKEND)
	}
	switch c.IDENTITY_BACKEND {
	case IdentityJWT, IdentityCognito:
	default:
		return errors.Errorf("unknown IDENTITY_BACKEND %q", c.IDENTITY_BACKEND)
	}
	if c.DEFAULT_PAGE_SIZE < 0 || c.MAX_PAGE_SIZE < c.DEFAULT_PAGE_SIZE {
		return errors.Errorf("DEFAULT_PAGE_SIZE %d must be within [0, MAX_PAGE_SIZE %d]", c.DEFAULT_PAGE_SIZE, c.MAX_PAGE_SIZE)
	}
	if c.RESUBSCRIBE_MAX_BACKOFF_MS < c.RESUBSCRIBE_INITIAL_BACKOFF_MS {
		return errors.New("RESUBSCRIBE_MAX_BACKOFF_MS is smaller than RESUBSCRIBE_INITIAL_BACKOFF_MS")
	}
	return nil
}

func (c FeedAppConfig) InitialBackoff() time.Duration {
	return time.Duration(c.RESUBSCRIBE_INITIAL_BACKOFF_MS) * time.Millisecond
}

func (c FeedAppConfig) MaxBackoff() time.Duration {
	return time.Duration(c.RESUBSCRIBE_MAX_BACKOFF_MS) * time.Millisecond
}

func (c FeedAppConfig) StatsReportInterval() time.Duration {
	return time.Duration(c.STATS_REPORT_INTERVAL_SECOND) * time.Second
}

func (c FeedAppConfig) PingInterval() time.Duration {
	return time.Duration(c.WEBSOCKET_PING_INTERVAL_SECOND) * time.Second
}
