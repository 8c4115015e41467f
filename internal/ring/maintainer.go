package ring

import (
	"context"
	"log"
	"time"

	"distributed-kvstore/internal/nodeconf"
)

// HopRecorder receives the hop count of every completed FindSuccessor
// lookup, so internal/metrics can track chord routing cost without this
// package depending on metrics directly.
type HopRecorder interface {
	RecordChordLookup(hops int)
}

// Maintainer owns a node's ring State and the four independent periodic
// tasks (stabilize, fix-fingers, heartbeat, anti-entropy) that keep it
// converging. Each task is its own goroutine with its own ticker and a
// shared stop channel; all four tolerate panics/errors silently and
// resume on the next tick, per the node's failure model.
type Maintainer struct {
	state     *State
	transport Transport
	metrics   HopRecorder
	syncer    AntiEntropySyncer

	fingerCursor int
	stop         chan struct{}
}

// AntiEntropySyncer pushes a full KV snapshot to a peer.
// internal/replication provides the concrete implementation; keeping it
// as an interface here avoids a ring -> kv import.
type AntiEntropySyncer interface {
	SyncTo(ctx context.Context, addr string)
}

func NewMaintainer(state *State, transport Transport, metrics HopRecorder, syncer AntiEntropySyncer) *Maintainer {
	return &Maintainer{
		state:     state,
		transport: transport,
		metrics:   metrics,
		syncer:    syncer,
		stop:      make(chan struct{}),
	}
}

// Start launches the four maintenance goroutines. Call Stop to end them.
func (m *Maintainer) Start() {
	go m.loop(nodeconf.StabilizeInterval, m.stabilizeOnce)
	go m.loop(nodeconf.FixFingersInterval, m.fixFingersOnce)
	go m.loop(nodeconf.HeartbeatInterval, m.heartbeatOnce)
	go m.loop(nodeconf.AntiEntropyInterval, m.antiEntropyOnce)
}

func (m *Maintainer) Stop() {
	close(m.stop)
}

// loop ticks fn every interval until Stop is called. Panics inside fn are
// recovered so one bad tick can't kill the maintenance task permanently.
func (m *Maintainer) loop(interval time.Duration, fn func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.safeCall(fn)
		}
	}
}

func (m *Maintainer) safeCall(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("ring: maintenance task panic recovered: %v", r)
		}
	}()
	fn()
}

// ─── Join ───────────────────────────────────────────────────────────────

// Join asks bootstrap for the successor of self.id and installs it as
// the initial successor. If bootstrap is unreachable, the node becomes a
// singleton ring instead — joining never blocks indefinitely or fails
// the process.
func (m *Maintainer) Join(ctx context.Context, bootstrapAddr string) {
	self := m.state.Self()
	succ, ok := m.transport.FindSuccessorRemote(ctx, bootstrapAddr, self.ID)
	if !ok {
		m.state.SetSuccessor(self)
		m.state.SetSuccessorList([]NodeRef{self})
		return
	}
	m.state.SetSuccessor(succ)
	m.state.SetSuccessorList([]NodeRef{succ})
}

// ─── find_successor ─────────────────────────────────────────────────────

// FindSuccessor performs the iterative Chord lookup described in §4.2.
// Every iteration re-checks termination against self's own successor and
// re-consults self's own finger table — the lookup is driven entirely by
// self, which repeatedly asks progressively closer remote nodes for their
// closest-preceding-or-self hint until the target interval is satisfied.
// This mirrors the reference implementation exactly (see DESIGN.md).
// If a hint returns the node the lookup is already at, the lookup cannot
// progress and returns that node as the best known hop.
func (m *Maintainer) FindSuccessor(ctx context.Context, keyID uint32) NodeRef {
	n := m.state.Self()
	hops := 0

	for {
		hops++

		succ := m.state.Successor()
		if InInterval(keyID, n.ID, succ.ID, true) {
			m.recordHops(hops)
			return succ
		}

		cp, haveCP := m.state.ClosestPrecedingFingerLocal(keyID)
		if !haveCP || cp.Addr == n.Addr {
			next, ok := m.transport.ClosestPrecedingOrSelf(ctx, succ.Addr, keyID)
			if !ok {
				m.recordHops(hops)
				return succ
			}
			if next.Addr == n.Addr {
				m.recordHops(hops)
				return n
			}
			n = next
			continue
		}

		next, ok := m.transport.ClosestPrecedingOrSelf(ctx, cp.Addr, keyID)
		if !ok {
			m.recordHops(hops)
			return cp
		}
		if next.Addr == n.Addr {
			m.recordHops(hops)
			return n
		}
		n = next
	}
}

func (m *Maintainer) recordHops(hops int) {
	if m.metrics != nil {
		m.metrics.RecordChordLookup(hops)
	}
}

// ClosestPrecedingOrSelf answers the RPC of the same name: the first
// strictly-preceding finger, or self if none.
func (m *Maintainer) ClosestPrecedingOrSelf(keyID uint32) NodeRef {
	if cp, ok := m.state.ClosestPrecedingFingerLocal(keyID); ok {
		return cp
	}
	return m.state.Self()
}

// ─── stabilize ──────────────────────────────────────────────────────────

func (m *Maintainer) stabilizeOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), nodeconf.RPCTimeout)
	defer cancel()

	self := m.state.Self()
	succ := m.state.Successor()

	// Bootstrap discovery: if we only know ourselves but have a
	// predecessor, adopt it as successor so the seed node of a ring can
	// discover the rest of it.
	if succ.Addr == self.Addr {
		if pred, ok := m.state.Predecessor(); ok {
			m.state.SetSuccessor(pred)
			succ = pred
		}
	}
	if succ.Addr == self.Addr {
		return // still alone; nothing to learn yet
	}

	if x, has, ok := m.transport.GetPredecessor(ctx, succ.Addr); ok && has {
		if InInterval(x.ID, self.ID, succ.ID, false) {
			m.state.SetSuccessor(x)
			succ = x
		}
	}

	m.transport.Notify(ctx, succ.Addr, self)

	if list, ok := m.transport.GetSuccessorList(ctx, succ.Addr); ok {
		n := nodeconf.SuccessorListSize - 1
		if n > len(list) {
			n = len(list)
		}
		m.state.SetSuccessorList(append([]NodeRef{succ}, list[:n]...))
	}

	m.state.RecomputeNeighbors()
}

// ─── fix-fingers ────────────────────────────────────────────────────────

func (m *Maintainer) fixFingersOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), nodeconf.RPCTimeout)
	defer cancel()

	self := m.state.Self()
	i := m.fingerCursor
	target := uint32((uint64(self.ID) + (uint64(1) << uint(i))) % nodeconf.RingSize)
	succ := m.FindSuccessor(ctx, target)
	m.state.SetFinger(i, succ)
	m.fingerCursor = (i + 1) % nodeconf.RingBits
}

// ─── heartbeat ──────────────────────────────────────────────────────────

func (m *Maintainer) heartbeatOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), nodeconf.PingTimeout)
	defer cancel()

	self := m.state.Self()
	succ := m.state.Successor()
	if succ.Addr != self.Addr && !m.transport.Ping(ctx, succ.Addr) {
		m.failoverSuccessor(ctx)
	}

	if pred, ok := m.state.Predecessor(); ok {
		if !m.transport.Ping(ctx, pred.Addr) {
			m.state.ClearPredecessor()
		}
	}
}

func (m *Maintainer) failoverSuccessor(ctx context.Context) {
	self := m.state.Self()
	list := m.state.SuccessorList()
	for _, n := range list[1:] {
		if m.transport.Ping(ctx, n.Addr) {
			m.state.SetSuccessor(n)
			return
		}
	}
	m.state.SetSuccessor(self)
	m.state.SetSuccessorList([]NodeRef{self})
}

// ─── anti-entropy ───────────────────────────────────────────────────────

func (m *Maintainer) antiEntropyOnce() {
	if m.syncer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), nodeconf.RPCTimeout)
	defer cancel()

	self := m.state.Self()
	for _, n := range m.state.SuccessorList() {
		if n.Addr == self.Addr {
			continue
		}
		m.syncer.SyncTo(ctx, n.Addr)
	}
}

// Notify handles the /notify RPC side effect.
func (m *Maintainer) Notify(peer NodeRef) {
	m.state.MaybeAdoptPredecessor(peer)
}
