/*
flag Package set up cli flags shared across services

Usage:

	Flags listed in this package are shared across boundaries and service-agnostic
	For service dependent flags please define in their respective package

Flags are registered on import but only parsed by ParseFlags, so that test
binaries can register their own flags first.
*/

package flag

import (
	"flag"
)

const (
	APIServer     = "api_server"
	StatsReporter = "stats_reporter"
)

var (
	ServiceName   = flag.String("service", APIServer, "'api_server' or 'stats_reporter'")
	AppConfigPath = flag.String("app_config_path", "cmd/server/config.yaml", "path to the feed app config")
	ByPassAuth    = flag.Bool("bypass_auth", false, "trust X-User-* headers instead of verifying tokens, never set in production")
)

func ParseFlags() {
	if !flag.Parsed() {
		flag.Parse()
	}
}
