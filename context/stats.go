package context

import (
	"fmt"

	"github.com/tzgo/tezos-node/internal/metrics"
)

// storeStats implements spec.md §4.1's performance counters: per-operation
// latency (count, sum, min, max, mean) maintained globally and per
// top-level path segment under a distinguished "data/<subkey>" namespace,
// updated on every public call. It is a thin adapter over
// internal/metrics.Registry, the same get-or-create counter/histogram
// registry the chain synchronizer uses for its own stats.
type storeStats struct {
	registry *metrics.Registry
}

func newStoreStats() *storeStats {
	return &storeStats{registry: metrics.NewRegistry()}
}

// start records the beginning of op (optionally scoped to a top-level key
// segment) and returns a function to call when the operation completes.
// Passing an empty segment records only the global histogram.
func (s *storeStats) start(op, topSegment string) func() {
	global := s.registry.Histogram(fmt.Sprintf("context.%s.latency_ms", op))
	timer := metrics.NewTimer(global)

	var scoped *metrics.Histogram
	if topSegment != "" {
		scoped = s.registry.Histogram(fmt.Sprintf("context.data.%s.%s.latency_ms", topSegment, op))
	}

	return func() {
		d := timer.Stop()
		if scoped != nil {
			scoped.Observe(float64(d.Milliseconds()))
		}
	}
}

// OperationStats is the snapshot shape returned by Store.Stats(): latency
// distribution summaries keyed by metric name, mirroring
// metrics.Registry.Snapshot()'s generic form but scoped to this store.
type OperationStats map[string]interface{}

// Stats returns a point-in-time snapshot of every operation latency
// histogram recorded so far, both global and per data/<subkey> namespace.
func (s *Store) Stats() OperationStats {
	return OperationStats(s.stats.registry.Snapshot())
}
