package pools

import (
	"runtime"
	"runtime/debug"
	"time"
)

// GCConfig holds GC tuning parameters. Zero fields leave the runtime
// setting untouched.
type GCConfig struct {
	// Percent sets the garbage collection target percentage (GOGC).
	Percent int

	// MemoryLimit sets the soft memory limit in bytes.
	MemoryLimit int64
}

// ApplyGCConfig applies cfg and returns a function that restores the
// previous settings.
func ApplyGCConfig(cfg GCConfig) (restore func()) {
	prevPercent := -2
	prevLimit := int64(-1)

	if cfg.Percent > 0 {
		prevPercent = debug.SetGCPercent(cfg.Percent)
	}
	if cfg.MemoryLimit > 0 {
		prevLimit = debug.SetMemoryLimit(cfg.MemoryLimit)
	}

	return func() {
		if prevPercent != -2 {
			debug.SetGCPercent(prevPercent)
		}
		if prevLimit >= 0 {
			debug.SetMemoryLimit(prevLimit)
		}
	}
}

// GCStats holds garbage collection statistics
type GCStats struct {
	NumGC        uint32        `json:"num_gc"`
	PauseTotal   time.Duration `json:"pause_total"`
	LastPause    time.Duration `json:"last_pause"`
	HeapAlloc    uint64        `json:"heap_alloc"`
	Sys          uint64        `json:"sys"`
	NumGoroutine int           `json:"goroutines"`
}

// GetGCStats returns current GC statistics
func GetGCStats() GCStats {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	stats := GCStats{
		NumGC:        ms.NumGC,
		PauseTotal:   time.Duration(ms.PauseTotalNs),
		HeapAlloc:    ms.HeapAlloc,
		Sys:          ms.Sys,
		NumGoroutine: runtime.NumGoroutine(),
	}
	if ms.NumGC > 0 {
		stats.LastPause = time.Duration(ms.PauseNs[(ms.NumGC+255)%256])
	}

	return stats
}
