package utils

import (
	"github.com/Luismorlan/campusfeed/utils/flag"
	Logger "github.com/Luismorlan/campusfeed/utils/log"
	"gopkg.in/DataDog/dd-trace-go.v1/profiler"
)

// StartProfiler only runs in production, local runs rarely have an agent.
func StartProfiler() {
	if !IsProdEnv() {
		return
	}
	if err := profiler.Start(
		profiler.WithService(*flag.ServiceName),
		profiler.WithEnv(ddEnv()),
		profiler.WithProfileTypes(
			profiler.CPUProfile,
			profiler.HeapProfile,
			// The profiles below are disabled by
			// default to keep overhead low, but
			// can be enabled as needed.
			// profiler.BlockProfile,
			// profiler.MutexProfile,
			// profiler.GoroutineProfile,
		),
	); err != nil {
		Logger.Log.Errorf("fail to start profiler: %s", err)
	}
}

// Stop profiler, OK to be closed multiple times
func CloseProfiler() {
	profiler.Stop()
}
