package ring

import (
	"sync"

	"distributed-kvstore/internal/nodeconf"
)

// State holds everything a node knows about its position on the ring:
// successor, successor list, predecessor, finger table, and the
// flood-neighbor set derived from them.
//
// Per the concurrency model, State is guarded by a single mutex with
// brief critical sections. It is written by the Maintainer (Join and the
// four maintenance goroutines) and by the /notify handler, which may
// adopt a new predecessor; every other request handler only reads, and
// tolerates slightly stale views between writes.
type State struct {
	mu sync.RWMutex

	self NodeRef

	successor     NodeRef
	successorList []NodeRef
	predecessor   *NodeRef
	fingers       [nodeconf.RingBits]*NodeRef

	neighbors map[string]struct{}
}

// NewState creates a singleton-ring state: self is its own successor,
// no predecessor, empty fingers.
func NewState(self NodeRef) *State {
	return &State{
		self:          self,
		successor:     self,
		successorList: []NodeRef{self},
		neighbors:     make(map[string]struct{}),
	}
}

func (s *State) Self() NodeRef { return s.self }

func (s *State) Successor() NodeRef {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.successor
}

func (s *State) SetSuccessor(n NodeRef) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.successor = n
}

func (s *State) SuccessorList() []NodeRef {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]NodeRef, len(s.successorList))
	copy(out, s.successorList)
	return out
}

func (s *State) SetSuccessorList(list []NodeRef) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.successorList = list
}

func (s *State) Predecessor() (NodeRef, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.predecessor == nil {
		return NodeRef{}, false
	}
	return *s.predecessor, true
}

func (s *State) SetPredecessor(n NodeRef) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := n
	s.predecessor = &cp
}

func (s *State) ClearPredecessor() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.predecessor = nil
}

// MaybeAdoptPredecessor implements notify()'s side effect: if we have no
// predecessor, or peer lies strictly between our current predecessor and
// us, adopt peer as our new predecessor.
func (s *State) MaybeAdoptPredecessor(peer NodeRef) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.predecessor == nil || InInterval(peer.ID, s.predecessor.ID, s.self.ID, false) {
		cp := peer
		s.predecessor = &cp
	}
}

// SetFinger stores finger table entry i.
func (s *State) SetFinger(i int, n NodeRef) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := n
	s.fingers[i] = &cp
}

// RecomputeNeighbors rebuilds the flood-neighbor set as the union of the
// successor list and the predecessor, excluding self.
func (s *State) RecomputeNeighbors() {
	s.mu.Lock()
	defer s.mu.Unlock()

	neighbors := make(map[string]struct{})
	for _, n := range s.successorList {
		if n.Addr != s.self.Addr {
			neighbors[n.Addr] = struct{}{}
		}
	}
	if s.predecessor != nil && s.predecessor.Addr != s.self.Addr {
		neighbors[s.predecessor.Addr] = struct{}{}
	}
	s.neighbors = neighbors
}

// Neighbors returns the current flood-neighbor address set.
func (s *State) Neighbors() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.neighbors))
	for addr := range s.neighbors {
		out = append(out, addr)
	}
	return out
}

// ClosestPrecedingFingerLocal scans fingers from B-1 down to 0 and
// returns the first one whose id lies strictly in (self.id, keyID).
func (s *State) ClosestPrecedingFingerLocal(keyID uint32) (NodeRef, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := nodeconf.RingBits - 1; i >= 0; i-- {
		f := s.fingers[i]
		if f != nil && InInterval(f.ID, s.self.ID, keyID, false) {
			return *f, true
		}
	}
	return NodeRef{}, false
}
