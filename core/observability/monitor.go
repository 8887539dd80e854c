// Package observability records per-route latency for handlers served by
// the router.
package observability

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Upper bounds of the latency buckets; the last bucket is unbounded.
var bucketBounds = [...]time.Duration{
	100 * time.Microsecond,
	time.Millisecond,
	5 * time.Millisecond,
	10 * time.Millisecond,
	50 * time.Millisecond,
	100 * time.Millisecond,
	500 * time.Millisecond,
	time.Second,
	5 * time.Second,
}

// NumBuckets is the length of RouteMetrics.Buckets.
const NumBuckets = len(bucketBounds) + 1

// Monitor aggregates handler timings. It is safe for concurrent use.
type Monitor struct {
	routes sync.Map // name -> *routeMetrics

	// SlowThreshold flags routes whose average latency exceeds it.
	SlowThreshold time.Duration
	// ErrorRateThreshold flags routes whose error share exceeds it.
	ErrorRateThreshold float64
}

type routeMetrics struct {
	count   atomic.Uint64
	errors  atomic.Uint64
	total   atomic.Uint64
	min     atomic.Uint64
	max     atomic.Uint64
	buckets [NumBuckets]atomic.Uint64
}

// noSample marks a min that has not seen a sample yet.
const noSample = math.MaxUint64

func newRouteMetrics() *routeMetrics {
	rm := &routeMetrics{}
	rm.min.Store(noSample)
	return rm
}

// RouteMetrics is a point-in-time copy of one route's counters.
type RouteMetrics struct {
	Name    string             `json:"name"`
	Count   uint64             `json:"count"`
	Errors  uint64             `json:"errors"`
	Avg     time.Duration      `json:"avg"`
	Min     time.Duration      `json:"min"`
	Max     time.Duration      `json:"max"`
	Buckets [NumBuckets]uint64 `json:"buckets"`
}

// Bottleneck represents a performance issue
type Bottleneck struct {
	Type     string `json:"type"`
	Location string `json:"location"`
	Details  string `json:"details"`
}

// NewMonitor creates a monitor with the default thresholds.
func NewMonitor() *Monitor {
	return &Monitor{
		SlowThreshold:      100 * time.Millisecond,
		ErrorRateThreshold: 0.05,
	}
}

// Record adds one handler invocation.
func (m *Monitor) Record(name string, d time.Duration, isError bool) {
	val, ok := m.routes.Load(name)
	if !ok {
		val, _ = m.routes.LoadOrStore(name, newRouteMetrics())
	}
	rm := val.(*routeMetrics)

	rm.count.Add(1)
	if isError {
		rm.errors.Add(1)
	}

	if d < 0 {
		d = 0
	}
	ns := uint64(d)
	rm.total.Add(ns)
	for {
		cur := rm.min.Load()
		if ns >= cur || rm.min.CompareAndSwap(cur, ns) {
			break
		}
	}
	for {
		cur := rm.max.Load()
		if ns <= cur || rm.max.CompareAndSwap(cur, ns) {
			break
		}
	}
	rm.buckets[bucketFor(d)].Add(1)
}

func bucketFor(d time.Duration) int {
	for i, bound := range bucketBounds {
		if d < bound {
			return i
		}
	}
	return len(bucketBounds)
}

// Instrument wraps h so every call is timed under name.
func (m *Monitor) Instrument(name string, h func(uint64) (string, error)) func(uint64) (string, error) {
	return func(n uint64) (string, error) {
		start := time.Now()
		content, err := h(n)
		m.Record(name, time.Since(start), err != nil)
		return content, err
	}
}

// Snapshot returns the metrics of every route, sorted by name.
func (m *Monitor) Snapshot() []RouteMetrics {
	var out []RouteMetrics
	m.routes.Range(func(key, value any) bool {
		rm := value.(*routeMetrics)
		s := RouteMetrics{
			Name:   key.(string),
			Count:  rm.count.Load(),
			Errors: rm.errors.Load(),
			Max:    time.Duration(rm.max.Load()),
		}
		if lo := rm.min.Load(); lo != noSample {
			s.Min = time.Duration(lo)
		}
		if s.Count > 0 {
			s.Avg = time.Duration(rm.total.Load() / s.Count)
		}
		for i := range rm.buckets {
			s.Buckets[i] = rm.buckets[i].Load()
		}
		out = append(out, s)
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Bottlenecks reports routes that are slow on average or fail too often.
func (m *Monitor) Bottlenecks() []Bottleneck {
	var found []Bottleneck
	for _, s := range m.Snapshot() {
		if s.Count == 0 {
			continue
		}
		if m.SlowThreshold > 0 && s.Avg > m.SlowThreshold {
			found = append(found, Bottleneck{
				Type:     "latency",
				Location: s.Name,
				Details:  fmt.Sprintf("High latency (%v avg)", s.Avg),
			})
		}
		if rate := float64(s.Errors) / float64(s.Count); s.Errors > 0 && rate > m.ErrorRateThreshold {
			found = append(found, Bottleneck{
				Type:     "errors",
				Location: s.Name,
				Details:  fmt.Sprintf("%.1f%% error rate", rate*100),
			})
		}
	}
	return found
}
