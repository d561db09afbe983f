package utils

import (
	"github.com/DataDog/datadog-go/statsd"
)

const defaultDogStatsdAddr = "127.0.0.1:8125"

// NewDogStatsdClient connects to the local Datadog agent. DD_AGENT_HOST_PORT
// overrides the address.
func NewDogStatsdClient() (*statsd.Client, error) {
	return statsd.New(EnvOrDefault("DD_AGENT_HOST_PORT", defaultDogStatsdAddr),
		statsd.WithNamespace("campusfeed."))
}
