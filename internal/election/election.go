// Package election implements the per-key bully-style leader election
// cache used to pick a preferred replica for reads. It is "bully" in
// outcome — the highest-id live replica wins — without a multi-round
// message exchange: liveness is observed via ping rather than negotiated.
package election

import (
	"context"
	"sort"
	"sync"

	"distributed-kvstore/internal/ring"
)

// state is the per-key election record: the cached leader id, and an
// advisory in-election flag.
//
// in_election is set but never consulted to prevent concurrent elections
// for the same key — this mirrors the reference implementation, which
// leaves it purely advisory (see DESIGN.md, Open Question #4). It is not
// a correctness mechanism here either.
type state struct {
	mu            sync.Mutex
	currentLeader *uint32
	inElection    bool
}

// Manager holds per-key election state behind a global mutex, with each
// key's own state additionally protected by its own mutex so leader
// lookups for different keys don't serialize on each other.
type Manager struct {
	globalMu sync.Mutex
	perKey   map[string]*state
}

func NewManager() *Manager {
	return &Manager{perKey: make(map[string]*state)}
}

func (m *Manager) stateFor(key string) *state {
	m.globalMu.Lock()
	defer m.globalMu.Unlock()
	s, ok := m.perKey[key]
	if !ok {
		s = &state{}
		m.perKey[key] = s
	}
	return s
}

// Leader returns the cached leader id for key, if any.
func (m *Manager) Leader(key string) (uint32, bool) {
	s := m.stateFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.currentLeader == nil {
		return 0, false
	}
	return *s.currentLeader, true
}

func (m *Manager) setLeader(key string, id *uint32) {
	s := m.stateFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentLeader = id
	s.inElection = false
}

func (m *Manager) startElectionLocal(key string) {
	s := m.stateFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inElection = true
}

// IsAliveFunc probes a replica's liveness, typically a bounded ping RPC.
type IsAliveFunc func(ctx context.Context, addr string) bool

// EnsureReplicaLeader runs the election procedure from spec.md §4.5 over
// replicas for key:
//
//  1. No replicas -> clear leader, return none.
//  2. Cached leader still in the replica set and alive -> reuse it.
//  3. Otherwise probe replicas in descending id order; the first live one
//     wins and is cached.
//  4. None respond -> clear the leader.
func (m *Manager) EnsureReplicaLeader(ctx context.Context, key string, replicas []ring.NodeRef, isAlive IsAliveFunc) (uint32, bool) {
	if len(replicas) == 0 {
		m.setLeader(key, nil)
		return 0, false
	}

	validIDs := make(map[uint32]ring.NodeRef, len(replicas))
	for _, r := range replicas {
		validIDs[r.ID] = r
	}

	if current, ok := m.Leader(key); ok {
		if leader, stillValid := validIDs[current]; stillValid && isAlive(ctx, leader.Addr) {
			return current, true
		}
	}

	m.startElectionLocal(key)

	ordered := make([]ring.NodeRef, len(replicas))
	copy(ordered, replicas)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID > ordered[j].ID })

	for _, r := range ordered {
		if isAlive(ctx, r.Addr) {
			id := r.ID
			m.setLeader(key, &id)
			return id, true
		}
	}

	m.setLeader(key, nil)
	return 0, false
}
