// Package selection implements the four load-balancing strategies that
// operate over a pool's healthy-filtered view: round-robin, weighted
// round-robin, least-connections, and random. Strategies depend only on
// the Entry interface, not the pool package, so they stay testable in
// isolation.
package selection

import (
	"math/rand"
	"sync"
	"sync/atomic"
)

// Entry is the minimal view a strategy needs of a pool entry. pool.Entry
// satisfies this.
type Entry interface {
	BackendName() string
	BackendWeight() int
	Inflight() int64
}

// Strategy picks one index into a non-empty-checked healthy slice, or -1
// if it cannot produce a selection this round (e.g. weighted RR losing a
// race against pool churn).
type Strategy interface {
	Name() string
	Pick(healthy []Entry) int
}

// New constructs the named strategy. Unknown names fall back to round-robin.
func New(name string) Strategy {
	switch name {
	case "weighted_round_robin":
		return NewWeightedRoundRobin()
	case "least_connections":
		return NewLeastConnections()
	case "random":
		return NewRandom()
	default:
		return NewRoundRobin()
	}
}

// ---------------------------------------------------------------------------
// Round-Robin
// ---------------------------------------------------------------------------

type roundRobin struct {
	cursor cursor
}

func NewRoundRobin() Strategy { return &roundRobin{} }

func (r *roundRobin) Name() string { return "round_robin" }

func (r *roundRobin) Pick(healthy []Entry) int {
	n := len(healthy)
	if n == 0 {
		return -1
	}
	return int(r.cursor.next(uint64(n)))
}

// cursor is the monotonically advancing index generator shared in spirit
// by round-robin and weighted round-robin: each selection draws a fresh
// value and reduces it modulo the caller's list length at the use site,
// so skew from interleaved selectors is bounded and no lock is needed.
type cursor struct {
	v atomic.Uint64
}

func (c *cursor) next(mod uint64) uint64 {
	if mod == 0 {
		return 0
	}
	return (c.v.Add(1) - 1) % mod
}

// ---------------------------------------------------------------------------
// Weighted Round-Robin
// ---------------------------------------------------------------------------

type weightedRoundRobin struct {
	cursor cursor

	mu         sync.Mutex
	expanded   []string
	lastHash   uint64
	generation uint64
}

func NewWeightedRoundRobin() Strategy { return &weightedRoundRobin{} }

func (w *weightedRoundRobin) Name() string { return "weighted_round_robin" }

// Generation exposes the rebuild counter for tests that want to assert
// the expanded list was (or wasn't) recomputed.
func (w *weightedRoundRobin) Generation() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.generation
}

func (w *weightedRoundRobin) Pick(healthy []Entry) int {
	n := len(healthy)
	if n == 0 {
		return -1
	}

	hash := fingerprint(healthy)

	w.mu.Lock()
	if hash != w.lastHash || w.expanded == nil {
		w.expanded = expand(healthy)
		w.lastHash = hash
		w.generation++
	}
	expanded := w.expanded
	w.mu.Unlock()

	if len(expanded) == 0 {
		return -1
	}
	idx := w.cursor.next(uint64(len(expanded)))
	name := expanded[idx]

	for i, e := range healthy {
		if e.BackendName() == name {
			return i
		}
	}
	// The backend named by the expanded list is no longer in the healthy
	// view (churn between expansion and lookup). The next call rebuilds.
	return -1
}

// expand flattens the healthy view into a sequence where each backend's
// name appears Weight times, preserving healthy-view order.
func expand(healthy []Entry) []string {
	total := 0
	for _, e := range healthy {
		total += e.BackendWeight()
	}
	out := make([]string, 0, total)
	for _, e := range healthy {
		for i := 0; i < e.BackendWeight(); i++ {
			out = append(out, e.BackendName())
		}
	}
	return out
}

// fingerprint is an FNV-1a hash of the {name, weight} pairs in healthy-view
// order, used to detect when the expanded list needs a rebuild. Grounded
// on gateway-pro/internal/loadbalancer/loadbalancer.go's fnv1a helper.
func fingerprint(healthy []Entry) uint64 {
	var h uint64 = 14695981039346656037
	for _, e := range healthy {
		for i := 0; i < len(e.BackendName()); i++ {
			h ^= uint64(e.BackendName()[i])
			h *= 1099511628211
		}
		w := e.BackendWeight()
		h ^= uint64(w)
		h *= 1099511628211
	}
	return h
}

// ---------------------------------------------------------------------------
// Least-Connections
// ---------------------------------------------------------------------------

type leastConnections struct{}

func NewLeastConnections() Strategy { return leastConnections{} }

func (leastConnections) Name() string { return "least_connections" }

func (leastConnections) Pick(healthy []Entry) int {
	if len(healthy) == 0 {
		return -1
	}
	best := 0
	bestLoad := healthy[0].Inflight()
	for i := 1; i < len(healthy); i++ {
		if load := healthy[i].Inflight(); load < bestLoad {
			best = i
			bestLoad = load
		}
	}
	return best
}

// ---------------------------------------------------------------------------
// Random
// ---------------------------------------------------------------------------

type random struct{}

func NewRandom() Strategy { return random{} }

func (random) Name() string { return "random" }

func (random) Pick(healthy []Entry) int {
	if len(healthy) == 0 {
		return -1
	}
	return rand.Intn(len(healthy))
}
