// Package flood implements the Gnutella-style TTL-bounded, duplicate-
// suppressed broadcast search layer. Neighbors are supplied by the ring
// layer (successor list ∪ predecessor); this package only knows about
// message ids, TTLs, and local key matching.
package flood

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MetricsRecorder receives the forward fan-out of every query this node
// originates. internal/metrics provides the concrete implementation;
// keeping it as an interface here avoids a flood -> metrics import.
type MetricsRecorder interface {
	RecordFloodQuery(forwarded int)
}

// Match is one hit reported by a node that holds the searched-for key.
type Match struct {
	Addr string `json:"addr"`
	Key  string `json:"key"`
}

// Result is returned by both StartQuery and QueryReceived.
type Result struct {
	Matches   []Match `json:"matches"`
	Forwarded int     `json:"forwarded"`
}

// Transport forwards a query to a neighbor and waits for its Result.
// internal/rpc.Client implements this.
type Transport interface {
	GQuery(ctx context.Context, addr, msgID, key string, ttl int, origin string) (Result, bool)
}

// Searcher holds the global (not per-origin) seen-set that deduplicates
// flood messages, plus the callbacks needed to answer a query locally.
//
// Duplicate suppression is intentionally global per node: it bounds
// fan-out at the cost of allowing late-arriving paths to be cut off.
type Searcher struct {
	selfAddr   string
	neighbors  func() []string
	localMatch func(key string) bool
	transport  Transport
	metrics    MetricsRecorder

	mu   sync.Mutex
	seen map[string]struct{}
}

func NewSearcher(selfAddr string, neighbors func() []string, localMatch func(key string) bool, transport Transport, m MetricsRecorder) *Searcher {
	return &Searcher{
		selfAddr:   selfAddr,
		neighbors:  neighbors,
		localMatch: localMatch,
		transport:  transport,
		metrics:    m,
		seen:       make(map[string]struct{}),
	}
}

// markSeen atomically checks-and-inserts a message id. Returns true if it
// was newly added (i.e. this is the first time we've seen it).
func (s *Searcher) markSeen(msgID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[msgID]; ok {
		return false
	}
	s.seen[msgID] = struct{}{}
	return true
}

// StartQuery mints a fresh message id, records a local match if present,
// and — while ttl remains — forwards to every neighbor, accumulating
// their matches and forward counts. Only the originating call records
// the flood-query metric, matching gnutella.py's g_handle_query.
func (s *Searcher) StartQuery(ctx context.Context, key string, ttl int) Result {
	msgID := uuid.NewString()
	s.markSeen(msgID)
	result := s.flood(ctx, msgID, key, ttl, s.selfAddr, nil)
	if s.metrics != nil {
		s.metrics.RecordFloodQuery(result.Forwarded)
	}
	return result
}

// QueryReceived handles an inbound /g_query: if the message id has
// already been seen it returns an empty result immediately, otherwise it
// marks it seen, matches locally, and forwards to neighbors other than
// origin (split-horizon of one hop).
func (s *Searcher) QueryReceived(ctx context.Context, msgID, key string, ttl int, origin string) Result {
	if !s.markSeen(msgID) {
		return Result{}
	}
	return s.flood(ctx, msgID, key, ttl, origin, &origin)
}

func (s *Searcher) flood(ctx context.Context, msgID, key string, ttl int, origin string, excludeOrigin *string) Result {
	var matches []Match
	if s.localMatch(key) {
		matches = append(matches, Match{Addr: s.selfAddr, Key: key})
	}

	if ttl <= 0 {
		return Result{Matches: matches, Forwarded: 0}
	}

	forwarded := 0
	for _, nb := range s.neighbors() {
		if excludeOrigin != nil && nb == *excludeOrigin {
			continue
		}
		res, ok := s.transport.GQuery(ctx, nb, msgID, key, ttl-1, s.selfAddr)
		if !ok {
			continue
		}
		forwarded += 1 + res.Forwarded
		matches = append(matches, res.Matches...)
	}

	return Result{Matches: matches, Forwarded: forwarded}
}
