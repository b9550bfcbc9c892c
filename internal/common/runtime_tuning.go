package common

import (
	"os"
	"runtime"
	"runtime/debug"

	"github.com/rs/zerolog/log"
)

// Runtime profiles for different server sizes
const (
	// Small server: 2 vCPU, 4GB RAM
	SmallServerGOGC     = 200
	SmallServerMemLimit = 1 * 1024 * 1024 * 1024 // 1GB

	// Medium and larger servers
	DefaultServerGOGC     = 400
	DefaultServerMemLimit = 4 * 1024 * 1024 * 1024 // 4GB
)

// detectServerProfile picks GC settings from the CPU count (RAM detection requires cgo or
// /proc parsing).
func detectServerProfile() (gogc int, memLimit int64) {
	if runtime.NumCPU() <= 2 {
		return SmallServerGOGC, SmallServerMemLimit
	}
	return DefaultServerGOGC, DefaultServerMemLimit
}

// InitRuntime tunes the GC for a request/response service that allocates big.Int values
// on every quote. GOGC and GOMEMLIMIT in the environment take precedence.
func InitRuntime() {
	defaultGOGC, defaultMemLimit := detectServerProfile()

	if gcPercent := os.Getenv("GOGC"); gcPercent == "" {
		debug.SetGCPercent(defaultGOGC)
		log.Debug().Int("GOGC", defaultGOGC).Msg("[runtime] set GOGC")
	}

	// GOMEMLIMIT is the safety net for the raised GOGC
	if memLimit := os.Getenv("GOMEMLIMIT"); memLimit == "" {
		debug.SetMemoryLimit(defaultMemLimit)
		log.Debug().
			Int64("GOMEMLIMIT_bytes", defaultMemLimit).
			Float64("GOMEMLIMIT_GB", float64(defaultMemLimit)/1024/1024/1024).
			Msg("[runtime] set memory limit")
	}

	logRuntimeSettings()
}

func logRuntimeSettings() {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	log.Info().
		Int("num_cpu", runtime.NumCPU()).
		Int("gomaxprocs", runtime.GOMAXPROCS(0)).
		Uint64("heap_alloc_mb", memStats.HeapAlloc/1024/1024).
		Str("go_version", runtime.Version()).
		Msg("[runtime] current runtime settings")
}
