// Package replication computes replica sets for keys and orchestrates
// replicated writes, read-repair reads, and the per-key bully election
// that picks a preferred read replica.
package replication

import (
	"context"
	"time"

	"distributed-kvstore/internal/election"
	"distributed-kvstore/internal/kv"
	"distributed-kvstore/internal/metrics"
	"distributed-kvstore/internal/nodeconf"
	"distributed-kvstore/internal/ring"
)

// Transport is the outbound RPC surface replication needs from peers.
type Transport interface {
	Ping(ctx context.Context, addr string) bool
	GetSuccessor(ctx context.Context, addr string) (ring.NodeRef, bool)
	ReplicaPut(ctx context.Context, addr string, key string, entry kv.Entry) bool
	ReplicaGet(ctx context.Context, addr string, key string) (kv.Entry, bool, bool)
	ReplicaSync(ctx context.Context, addr string, snapshot map[string]kv.Entry) bool
}

// Coordinator wires ring state, the local KV store, the Lamport clock,
// and the election cache together to serve handle_put/handle_get.
type Coordinator struct {
	self      ring.NodeRef
	findSucc  func(ctx context.Context, keyID uint32) ring.NodeRef
	transport Transport
	store     *kv.Store
	clock     *kv.Clock
	elections *election.Manager
	metrics   *metrics.Metrics
}

func NewCoordinator(
	self ring.NodeRef,
	findSucc func(ctx context.Context, keyID uint32) ring.NodeRef,
	transport Transport,
	store *kv.Store,
	clock *kv.Clock,
	elections *election.Manager,
	m *metrics.Metrics,
) *Coordinator {
	return &Coordinator{
		self:      self,
		findSucc:  findSucc,
		transport: transport,
		store:     store,
		clock:     clock,
		elections: elections,
		metrics:   m,
	}
}

// ReplicaSet computes the replica set for key: the owner (find_successor
// over H(key)) plus up to KReplication-1 further clockwise successors,
// walked via remote get_successor calls.
//
// Per spec.md Open Question #1: this walk uses each replica's immediate
// successor only, so if two consecutive hops share a successor the walk
// terminates early — this can yield fewer than KReplication replicas
// even on a large ring. That behavior is kept as-is (see DESIGN.md); it
// is not treated as a bug to silently "fix".
func (c *Coordinator) ReplicaSet(ctx context.Context, key string) []ring.NodeRef {
	owner := c.findSucc(ctx, ring.Hash(key))
	replicas := []ring.NodeRef{owner}

	current := owner
	for len(replicas) < nodeconf.KReplication {
		next, ok := c.transport.GetSuccessor(ctx, current.Addr)
		if !ok {
			break
		}
		if next.Addr == replicas[len(replicas)-1].Addr {
			break // loop: next hop equals the previous one
		}
		duplicate := false
		for _, r := range replicas {
			if r.Addr == next.Addr {
				duplicate = true
				break
			}
		}
		if !duplicate {
			replicas = append(replicas, next)
		}
		current = next
	}
	return replicas
}

func (c *Coordinator) isAlive(ctx context.Context, addr string) bool {
	if addr == c.self.Addr {
		return true
	}
	pingCtx, cancel := context.WithTimeout(ctx, nodeconf.PingTimeout)
	defer cancel()
	return c.transport.Ping(pingCtx, addr)
}

// HandlePut implements spec.md §4.5's write path: bump the clock, store
// locally, compute the replica set and elected leader (as a cache
// refresh side effect), then fan out replica_put to every replica.
// Replication is best-effort; individual failures are tolerated and
// healed later by anti-entropy and read-repair.
func (c *Coordinator) HandlePut(ctx context.Context, key, value string, clientTS *uint64, writerID string) uint64 {
	start := time.Now()

	var ts uint64
	if clientTS != nil {
		ts = c.clock.Update(*clientTS)
	} else {
		ts = c.clock.Tick()
	}

	entry := kv.Entry{Value: value, TS: ts, WriterID: writerID}
	c.store.Put(key, entry)

	replicas := c.ReplicaSet(ctx, key)
	c.elections.EnsureReplicaLeader(ctx, key, replicas, c.isAlive)

	for _, r := range replicas {
		if r.Addr == c.self.Addr {
			continue // already applied locally above; self-replication is still idempotent if attempted
		}
		rpcCtx, cancel := context.WithTimeout(ctx, nodeconf.RPCTimeout)
		c.transport.ReplicaPut(rpcCtx, r.Addr, key, entry)
		cancel()
	}

	if c.metrics != nil {
		c.metrics.RecordPut(time.Since(start))
	}
	return ts
}

// HandleGet implements spec.md §4.5's read path: query the leader first,
// then remaining replicas in replica-set order, select the LWW-maximum
// version, and fire-and-forget read-repair to anything stale or missing.
func (c *Coordinator) HandleGet(ctx context.Context, key string) (kv.Entry, bool) {
	start := time.Now()

	replicas := c.ReplicaSet(ctx, key)
	leaderID, haveLeader := c.elections.EnsureReplicaLeader(ctx, key, replicas, c.isAlive)

	queryOrder := make([]ring.NodeRef, 0, len(replicas))
	var leaderNode *ring.NodeRef
	if haveLeader {
		for _, r := range replicas {
			if r.ID == leaderID {
				cp := r
				leaderNode = &cp
				queryOrder = append(queryOrder, r)
				break
			}
		}
	}
	for _, r := range replicas {
		if leaderNode != nil && r.Addr == leaderNode.Addr {
			continue
		}
		queryOrder = append(queryOrder, r)
	}

	type observed struct {
		entry kv.Entry
		found bool
	}
	perReplica := make(map[string]observed, len(replicas))

	var best kv.Entry
	foundAny := false

	for _, r := range queryOrder {
		var entry kv.Entry
		var found, ok bool
		if r.Addr == c.self.Addr {
			entry, found = c.store.Get(key)
			ok = true
		} else {
			rpcCtx, cancel := context.WithTimeout(ctx, nodeconf.RPCTimeout)
			entry, found, ok = c.transport.ReplicaGet(rpcCtx, r.Addr, key)
			cancel()
		}
		if !ok || !found {
			perReplica[r.Addr] = observed{found: false}
			continue
		}
		perReplica[r.Addr] = observed{entry: entry, found: true}
		if !foundAny || greater(entry, best) {
			best = entry
		}
		foundAny = true
	}

	if !foundAny {
		if c.metrics != nil {
			c.metrics.RecordGet(time.Since(start), false)
		}
		return kv.Entry{}, false
	}

	for _, r := range replicas {
		obs := perReplica[r.Addr]
		if !obs.found || greater(best, obs.entry) {
			if r.Addr == c.self.Addr {
				c.store.Put(key, best)
				continue
			}
			go func(addr string) {
				rpcCtx, cancel := context.WithTimeout(context.Background(), nodeconf.RPCTimeout)
				defer cancel()
				c.transport.ReplicaPut(rpcCtx, addr, key, best)
			}(r.Addr)
		}
	}

	if c.metrics != nil {
		c.metrics.RecordGet(time.Since(start), true)
	}
	return best, true
}

// HandleReplicaPut implements the /replica_put side effect: advance the
// Lamport clock with the incoming timestamp, then LWW-merge into the
// local store. Unlike HandlePut this never fans out further — replica
// writes don't re-replicate.
func (c *Coordinator) HandleReplicaPut(key string, entry kv.Entry) {
	c.clock.Update(entry.TS)
	c.store.Put(key, entry)
}

// greater reports whether a is strictly greater than b under the LWW
// total order (ts, then writer id lexicographically).
func greater(a, b kv.Entry) bool {
	if a.TS != b.TS {
		return a.TS > b.TS
	}
	return a.WriterID > b.WriterID
}

// SyncTo implements ring.AntiEntropySyncer: push a full snapshot of the
// local KV map to addr. Receivers merge by LWW via ReplicaSync.
func (c *Coordinator) SyncTo(ctx context.Context, addr string) {
	c.transport.ReplicaSync(ctx, addr, c.store.Dump())
}

// HandleReplicaSync implements the /replica_sync side effect: advance
// the clock with every incoming timestamp, then LWW-merge every entry.
func (c *Coordinator) HandleReplicaSync(snapshot map[string]kv.Entry) {
	for key, entry := range snapshot {
		c.clock.Update(entry.TS)
		c.store.Put(key, entry)
	}
}
