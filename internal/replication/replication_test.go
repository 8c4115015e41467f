package replication

import (
	"context"
	"testing"
	"time"

	"distributed-kvstore/internal/election"
	"distributed-kvstore/internal/kv"
	"distributed-kvstore/internal/ring"
)

type fakeTransport struct {
	alive       map[string]bool
	successorOf map[string]ring.NodeRef
	stores      map[string]*kv.Store
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		alive:       make(map[string]bool),
		successorOf: make(map[string]ring.NodeRef),
		stores:      make(map[string]*kv.Store),
	}
}

func (f *fakeTransport) Ping(ctx context.Context, addr string) bool {
	return f.alive[addr]
}

func (f *fakeTransport) GetSuccessor(ctx context.Context, addr string) (ring.NodeRef, bool) {
	n, ok := f.successorOf[addr]
	return n, ok
}

func (f *fakeTransport) ReplicaPut(ctx context.Context, addr, key string, entry kv.Entry) bool {
	s, ok := f.stores[addr]
	if !ok {
		return false
	}
	s.Put(key, entry)
	return true
}

func (f *fakeTransport) ReplicaGet(ctx context.Context, addr, key string) (kv.Entry, bool, bool) {
	s, ok := f.stores[addr]
	if !ok {
		return kv.Entry{}, false, false
	}
	e, found := s.Get(key)
	return e, found, true
}

func (f *fakeTransport) ReplicaSync(ctx context.Context, addr string, snapshot map[string]kv.Entry) bool {
	s, ok := f.stores[addr]
	if !ok {
		return false
	}
	for k, v := range snapshot {
		s.Put(k, v)
	}
	return true
}

func TestReplicaSetWalksSuccessors(t *testing.T) {
	tr := newFakeTransport()
	tr.successorOf["owner"] = ring.NodeRef{ID: 2, Addr: "r2"}
	tr.successorOf["r2"] = ring.NodeRef{ID: 3, Addr: "r3"}
	tr.successorOf["r3"] = ring.NodeRef{ID: 4, Addr: "r4"}

	findSucc := func(ctx context.Context, keyID uint32) ring.NodeRef {
		return ring.NodeRef{ID: 1, Addr: "owner"}
	}
	c := NewCoordinator(ring.NodeRef{Addr: "owner"}, findSucc, tr, kv.NewStore(), kv.NewClock(), election.NewManager(), nil)

	replicas := c.ReplicaSet(context.Background(), "k")
	if len(replicas) != 3 {
		t.Fatalf("expected 3 replicas (KReplication), got %d: %+v", len(replicas), replicas)
	}
	if replicas[0].Addr != "owner" || replicas[1].Addr != "r2" || replicas[2].Addr != "r3" {
		t.Fatalf("unexpected replica order: %+v", replicas)
	}
}

func TestReplicaSetTerminatesEarlyOnLoop(t *testing.T) {
	tr := newFakeTransport()
	// r2's successor loops back to r2 itself (stand-in for a degenerate
	// two-node ring) — the walk must stop rather than spin or duplicate.
	tr.successorOf["owner"] = ring.NodeRef{ID: 2, Addr: "r2"}
	tr.successorOf["r2"] = ring.NodeRef{ID: 2, Addr: "r2"}

	findSucc := func(ctx context.Context, keyID uint32) ring.NodeRef {
		return ring.NodeRef{ID: 1, Addr: "owner"}
	}
	c := NewCoordinator(ring.NodeRef{Addr: "owner"}, findSucc, tr, kv.NewStore(), kv.NewClock(), election.NewManager(), nil)

	replicas := c.ReplicaSet(context.Background(), "k")
	if len(replicas) != 2 {
		t.Fatalf("expected early termination at 2 replicas, got %d: %+v", len(replicas), replicas)
	}
}

func TestHandlePutReplicatesToAllReplicas(t *testing.T) {
	tr := newFakeTransport()
	tr.successorOf["owner"] = ring.NodeRef{ID: 2, Addr: "r2"}
	tr.successorOf["r2"] = ring.NodeRef{ID: 3, Addr: "r3"}
	tr.alive["owner"] = true
	tr.alive["r2"] = true
	tr.alive["r3"] = true

	ownerStore := kv.NewStore()
	tr.stores["r2"] = kv.NewStore()
	tr.stores["r3"] = kv.NewStore()

	findSucc := func(ctx context.Context, keyID uint32) ring.NodeRef {
		return ring.NodeRef{ID: 1, Addr: "owner"}
	}
	c := NewCoordinator(ring.NodeRef{ID: 1, Addr: "owner"}, findSucc, tr, ownerStore, kv.NewClock(), election.NewManager(), nil)

	c.HandlePut(context.Background(), "k", "v", nil, "owner")

	if _, ok := ownerStore.Get("k"); !ok {
		t.Fatalf("expected local store to have the write")
	}
	if e, ok := tr.stores["r2"].Get("k"); !ok || e.Value != "v" {
		t.Fatalf("expected r2 to receive the replicated write, got %+v ok=%v", e, ok)
	}
	if e, ok := tr.stores["r3"].Get("k"); !ok || e.Value != "v" {
		t.Fatalf("expected r3 to receive the replicated write, got %+v ok=%v", e, ok)
	}
}

func TestHandleGetReturnsNotFoundWhenNoReplicaHasKey(t *testing.T) {
	tr := newFakeTransport()
	findSucc := func(ctx context.Context, keyID uint32) ring.NodeRef {
		return ring.NodeRef{ID: 1, Addr: "owner"}
	}
	c := NewCoordinator(ring.NodeRef{ID: 1, Addr: "owner"}, findSucc, tr, kv.NewStore(), kv.NewClock(), election.NewManager(), nil)

	_, found := c.HandleGet(context.Background(), "missing")
	if found {
		t.Fatalf("expected miss for an absent key")
	}
}

func TestHandleReplicaPutAdvancesClockAndStores(t *testing.T) {
	tr := newFakeTransport()
	findSucc := func(ctx context.Context, keyID uint32) ring.NodeRef {
		return ring.NodeRef{ID: 1, Addr: "owner"}
	}
	store := kv.NewStore()
	clock := kv.NewClock()
	c := NewCoordinator(ring.NodeRef{ID: 1, Addr: "owner"}, findSucc, tr, store, clock, election.NewManager(), nil)

	c.HandleReplicaPut("k", kv.Entry{Value: "v", TS: 50, WriterID: "peer"})

	entry, ok := store.Get("k")
	if !ok || entry.Value != "v" || entry.TS != 50 {
		t.Fatalf("expected entry to be stored, got %+v ok=%v", entry, ok)
	}
	if clock.Read() <= 50 {
		t.Fatalf("expected clock to advance past the incoming ts 50, got %d", clock.Read())
	}
}

func TestHandleGetReadRepairsStaleReplica(t *testing.T) {
	tr := newFakeTransport()
	tr.successorOf["owner"] = ring.NodeRef{ID: 2, Addr: "stale"}
	tr.alive["owner"] = true
	tr.alive["stale"] = true

	ownerStore := kv.NewStore()
	ownerStore.Put("k", kv.Entry{Value: "fresh", TS: 10, WriterID: "owner"})

	staleStore := kv.NewStore()
	staleStore.Put("k", kv.Entry{Value: "old", TS: 1, WriterID: "owner"})
	tr.stores["stale"] = staleStore

	findSucc := func(ctx context.Context, keyID uint32) ring.NodeRef {
		return ring.NodeRef{ID: 1, Addr: "owner"}
	}
	c := NewCoordinator(ring.NodeRef{ID: 1, Addr: "owner"}, findSucc, tr, ownerStore, kv.NewClock(), election.NewManager(), nil)

	entry, found := c.HandleGet(context.Background(), "k")
	if !found || entry.Value != "fresh" {
		t.Fatalf("expected fresh value to win, got %+v found=%v", entry, found)
	}

	// Read-repair to the stale replica runs in the background.
	deadline := time.Now().Add(time.Second)
	for {
		if e, _ := staleStore.Get("k"); e.Value == "fresh" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected read-repair to push the fresh value to the stale replica")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
