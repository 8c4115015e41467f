package ring

import (
	"context"
	"testing"
)

// fakeTransport lets tests script the remote side of the ring RPCs
// without any real networking.
type fakeTransport struct {
	pingResults     map[string]bool
	predecessors    map[string]*NodeRef
	successorLists  map[string][]NodeRef
	closestPreceding map[string]NodeRef
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		pingResults:      make(map[string]bool),
		predecessors:     make(map[string]*NodeRef),
		successorLists:   make(map[string][]NodeRef),
		closestPreceding: make(map[string]NodeRef),
	}
}

func (f *fakeTransport) Ping(ctx context.Context, addr string) bool {
	return f.pingResults[addr]
}

func (f *fakeTransport) GetPredecessor(ctx context.Context, addr string) (NodeRef, bool, bool) {
	p, ok := f.predecessors[addr]
	if !ok || p == nil {
		return NodeRef{}, false, ok
	}
	return *p, true, true
}

func (f *fakeTransport) Notify(ctx context.Context, addr string, self NodeRef) bool {
	return true
}

func (f *fakeTransport) GetSuccessorList(ctx context.Context, addr string) ([]NodeRef, bool) {
	list, ok := f.successorLists[addr]
	return list, ok
}

func (f *fakeTransport) ClosestPrecedingOrSelf(ctx context.Context, addr string, keyID uint32) (NodeRef, bool) {
	n, ok := f.closestPreceding[addr]
	return n, ok
}

func (f *fakeTransport) FindSuccessorRemote(ctx context.Context, addr string, keyID uint32) (NodeRef, bool) {
	n, ok := f.closestPreceding[addr]
	return n, ok
}

func TestFindSuccessorOwnInterval(t *testing.T) {
	self := NodeRef{ID: 10, Addr: "self"}
	s := NewState(self)
	s.SetSuccessor(NodeRef{ID: 50, Addr: "succ"})

	tr := newFakeTransport()
	m := NewMaintainer(s, tr, nil, nil)

	got := m.FindSuccessor(context.Background(), 30)
	if got.Addr != "succ" {
		t.Fatalf("expected succ to own key 30, got %+v", got)
	}
}

func TestFindSuccessorHopsViaFinger(t *testing.T) {
	self := NodeRef{ID: 10, Addr: "self"}
	s := NewState(self)
	s.SetSuccessor(NodeRef{ID: 20, Addr: "succ"}) // key 200 is not in (10, 20]
	s.SetFinger(7, NodeRef{ID: 100, Addr: "finger"})

	tr := newFakeTransport()
	tr.closestPreceding["finger"] = NodeRef{ID: 200, Addr: "target"}

	m := NewMaintainer(s, tr, nil, nil)
	got := m.FindSuccessor(context.Background(), 200)
	if got.Addr != "target" {
		t.Fatalf("expected hop through finger to reach target, got %+v", got)
	}
}

func TestJoinBootstrapUnreachableBecomesSingleton(t *testing.T) {
	self := NodeRef{ID: 10, Addr: "self"}
	s := NewState(self)
	tr := newFakeTransport() // FindSuccessorRemote returns ok=false for unknown addrs

	m := NewMaintainer(s, tr, nil, nil)
	m.Join(context.Background(), "unreachable:1234")

	succ := s.Successor()
	if succ.Addr != "self" {
		t.Fatalf("expected singleton ring after failed join, got successor %+v", succ)
	}
}

func TestJoinBootstrapReachable(t *testing.T) {
	self := NodeRef{ID: 10, Addr: "self"}
	s := NewState(self)
	tr := newFakeTransport()
	tr.closestPreceding["bootstrap:1"] = NodeRef{ID: 99, Addr: "owner"}

	m := NewMaintainer(s, tr, nil, nil)
	m.Join(context.Background(), "bootstrap:1")

	succ := s.Successor()
	if succ.Addr != "owner" {
		t.Fatalf("expected successor to be the discovered owner, got %+v", succ)
	}
}

type countingSyncer struct {
	calls []string
}

func (c *countingSyncer) SyncTo(ctx context.Context, addr string) {
	c.calls = append(c.calls, addr)
}

func TestAntiEntropyOnceSkipsSelf(t *testing.T) {
	self := NodeRef{ID: 10, Addr: "self"}
	s := NewState(self)
	s.SetSuccessorList([]NodeRef{self, {ID: 20, Addr: "n1"}, {ID: 30, Addr: "n2"}})

	syncer := &countingSyncer{}
	m := NewMaintainer(s, newFakeTransport(), nil, syncer)
	m.antiEntropyOnce()

	if len(syncer.calls) != 2 || syncer.calls[0] != "n1" || syncer.calls[1] != "n2" {
		t.Fatalf("expected sync to n1 and n2 only, got %v", syncer.calls)
	}
}
