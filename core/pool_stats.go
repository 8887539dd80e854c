package core

import (
	"encoding/json"
	"fmt"

	"github.com/searchktools/fib-server/core/pools"
)

// Stats is a snapshot of the engine counters.
type Stats struct {
	Accepted uint64    `json:"accepted"`
	Active   int64     `json:"active"`
	Requests uint64    `json:"requests"`
	Errors   uint64    `json:"errors"`
	Pools    PoolStats `json:"pools"`
}

// PoolStats represents statistics for all pools
type PoolStats struct {
	Connection ConnectionPoolStats `json:"connection"`
	Bytes      pools.BytePoolStats `json:"bytes"`
	Buffers    pools.BufferStats   `json:"buffers"`
}

type ConnectionPoolStats struct {
	Gets    uint64  `json:"gets"`
	Puts    uint64  `json:"puts"`
	HitRate float64 `json:"hit_rate"`
}

// Stats returns the current counters. Values are read independently and may
// be slightly inconsistent with each other under load.
func (e *Engine) Stats() Stats {
	return Stats{
		Accepted: e.accepted.Load(),
		Active:   e.active.Load(),
		Requests: e.requests.Load(),
		Errors:   e.failed.Load(),
		Pools:    e.PoolStats(),
	}
}

// PoolStats returns statistics for all memory pools
func (e *Engine) PoolStats() PoolStats {
	gets, puts, hitRate := e.connectionPool.Stats()
	return PoolStats{
		Connection: ConnectionPoolStats{
			Gets:    gets,
			Puts:    puts,
			HitRate: hitRate,
		},
		Bytes:   e.bytePool.Stats(),
		Buffers: e.bufferPool.Stats(),
	}
}

// StatsJSON returns the statistics as a JSON string
func (e *Engine) StatsJSON() string {
	data, _ := json.MarshalIndent(e.Stats(), "", "  ")
	return string(data)
}

// StatsText returns the statistics as human-readable text
func (e *Engine) StatsText() string {
	s := e.Stats()
	return fmt.Sprintf(`Connections:
  Accepted: %d
  Active:   %d
  Requests: %d
  Errors:   %d

Worker Pool:
  Gets:     %d
  Puts:     %d
  Hit Rate: %.2f%%

Byte Pool:
  Gets:      %d
  Puts:      %d
  Oversized: %d

Response Buffers:
  Gets:      %d
  Discarded: %d
`,
		s.Accepted, s.Active, s.Requests, s.Errors,
		s.Pools.Connection.Gets, s.Pools.Connection.Puts, s.Pools.Connection.HitRate*100,
		s.Pools.Bytes.Gets, s.Pools.Bytes.Puts, s.Pools.Bytes.Oversized,
		s.Pools.Buffers.TotalGets, s.Pools.Buffers.Discarded,
	)
}
