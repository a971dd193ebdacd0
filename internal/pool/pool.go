// Package pool holds the concurrent, lock-minimal registry of upstreams:
// an atomically-swapped snapshot of backend entries, each carrying a
// liveness status and a live-connection counter, plus the select-and-
// reserve step that ties the snapshot to the configured selection.Strategy.
//
// Status changes publish via copy-on-write snapshot swap (atomic.Pointer)
// while reusing each entry's inflight counter across swaps, so the
// counter stays stable across snapshot generations rather than being
// reallocated.
package pool

import (
	"sync/atomic"

	"github.com/opsbridge/fleetlb/internal/backend"
	"github.com/opsbridge/fleetlb/internal/selection"
)

// Entry is the mutable per-backend cell: identity plus current status and
// in-flight count. Status is read/written only through Pool, which
// replaces the owning Snapshot on every status transition; Inflight is a
// free-standing atomic counter shared across Entry copies so that a
// status change never loses in-flight bookkeeping.
type Entry struct {
	Backend backend.Backend
	Status  backend.Status

	inflight *atomic.Int64
}

func (e *Entry) BackendName() string   { return e.Backend.Name }
func (e *Entry) BackendWeight() int    { return e.Backend.Weight }
func (e *Entry) Inflight() int64       { return e.inflight.Load() }
func (e *Entry) reserve()              { e.inflight.Add(1) }
func (e *Entry) release() {
	for {
		cur := e.inflight.Load()
		if cur <= 0 {
			return
		}
		if e.inflight.CompareAndSwap(cur, cur-1) {
			return
		}
	}
}

// clone returns a new Entry with the given status, sharing the same
// inflight counter instance as the receiver.
func (e *Entry) clone(status backend.Status) *Entry {
	return &Entry{Backend: e.Backend, Status: status, inflight: e.inflight}
}

// Snapshot is an immutable ordered view of every configured backend.
type Snapshot struct {
	entries []*Entry
}

func (s *Snapshot) Len() int { return len(s.entries) }

// Pool is the concurrent backend registry. Many readers load the current
// snapshot via an atomic pointer; the health prober is the sole writer,
// publishing a new snapshot on every status change.
type Pool struct {
	snap     atomic.Pointer[Snapshot]
	strategy selection.Strategy
}

// New builds the initial snapshot with every backend Unknown and
// inflight 0, wired to the named selection strategy.
func New(backends []backend.Backend, strategyName string) *Pool {
	entries := make([]*Entry, len(backends))
	for i, b := range backends {
		entries[i] = &Entry{Backend: b, Status: backend.Unknown, inflight: &atomic.Int64{}}
	}
	p := &Pool{strategy: selection.New(strategyName)}
	p.snap.Store(&Snapshot{entries: entries})
	return p
}

// Strategy returns the configured selection.Strategy, mostly for tests
// that want to inspect e.g. weighted round-robin's rebuild generation.
func (p *Pool) Strategy() selection.Strategy { return p.strategy }

// Snapshot returns the current snapshot. Callers must treat it as
// read-only; Entry.Status mutations only happen via Pool.UpdateStatus.
func (p *Pool) Snapshot() *Snapshot { return p.snap.Load() }

// HealthyView returns, in snapshot order, every entry currently Healthy.
func (p *Pool) HealthyView() []*Entry {
	snap := p.snap.Load()
	out := make([]*Entry, 0, len(snap.entries))
	for _, e := range snap.entries {
		if e.Status == backend.Healthy {
			out = append(out, e)
		}
	}
	return out
}

// SelectAndReserve atomically picks one entry per the configured strategy
// from the current healthy view and reserves it (inflight += 1) before
// returning. Returns nil iff the healthy view is empty, or if the
// strategy declines to produce a selection this round (weighted RR
// losing a race against churn).
func (p *Pool) SelectAndReserve() *Entry {
	healthy := p.HealthyView()
	if len(healthy) == 0 {
		return nil
	}
	asEntries := make([]selection.Entry, len(healthy))
	for i, e := range healthy {
		asEntries[i] = e
	}
	idx := p.strategy.Pick(asEntries)
	if idx < 0 || idx >= len(healthy) {
		return nil
	}
	chosen := healthy[idx]
	chosen.reserve()
	return chosen
}

// Release decrements the reserved inflight counter, saturating at zero.
func (p *Pool) Release(e *Entry) {
	if e == nil {
		return
	}
	e.release()
}

// UpdateStatus publishes a new snapshot where entries[index].Status is
// replaced, preserving every other entry and every inflight value
// (copy-on-write). Returns false if index is out of range.
func (p *Pool) UpdateStatus(index int, status backend.Status) bool {
	for {
		old := p.snap.Load()
		if index < 0 || index >= len(old.entries) {
			return false
		}
		if old.entries[index].Status == status {
			return true
		}
		next := make([]*Entry, len(old.entries))
		copy(next, old.entries)
		next[index] = old.entries[index].clone(status)
		if p.snap.CompareAndSwap(old, &Snapshot{entries: next}) {
			return true
		}
		// Lost the race against a concurrent publisher; retry against
		// the newly current snapshot.
	}
}

// FindByName linear-scans the current snapshot for a backend by name.
func (p *Pool) FindByName(name string) *Entry {
	snap := p.snap.Load()
	for _, e := range snap.entries {
		if e.Backend.Name == name {
			return e
		}
	}
	return nil
}

// IndexOf returns the current snapshot index of the named backend, or -1.
func (p *Pool) IndexOf(name string) int {
	snap := p.snap.Load()
	for i, e := range snap.entries {
		if e.Backend.Name == name {
			return i
		}
	}
	return -1
}

// InflightOf returns the current in-flight count for a named backend, or
// 0 if the name is unknown.
func (p *Pool) InflightOf(name string) int64 {
	if e := p.FindByName(name); e != nil {
		return e.Inflight()
	}
	return 0
}

// All returns every entry in snapshot order, regardless of status —
// used by the health prober to iterate probe targets and by admin
// surfaces that report on every configured backend.
func (p *Pool) All() []*Entry {
	snap := p.snap.Load()
	out := make([]*Entry, len(snap.entries))
	copy(out, snap.entries)
	return out
}
