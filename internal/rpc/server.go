package rpc

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"distributed-kvstore/internal/election"
	"distributed-kvstore/internal/flood"
	"distributed-kvstore/internal/kv"
	"distributed-kvstore/internal/metrics"
	"distributed-kvstore/internal/nodeconf"
	"distributed-kvstore/internal/replication"
	"distributed-kvstore/internal/ring"
)

// Server holds every dependency one node's RPC handlers need. There is
// no package-level singleton state — everything reaches handlers through
// this struct, injected once from cmd/server/main.go.
type Server struct {
	self        ring.NodeRef
	state       *ring.State
	maintainer  *ring.Maintainer
	store       *kv.Store
	coordinator *replication.Coordinator
	elections   *election.Manager
	searcher    *flood.Searcher
	metrics     *metrics.Metrics
}

func NewServer(
	self ring.NodeRef,
	state *ring.State,
	maintainer *ring.Maintainer,
	store *kv.Store,
	coordinator *replication.Coordinator,
	elections *election.Manager,
	searcher *flood.Searcher,
	m *metrics.Metrics,
) *Server {
	return &Server{
		self:        self,
		state:       state,
		maintainer:  maintainer,
		store:       store,
		coordinator: coordinator,
		elections:   elections,
		searcher:    searcher,
		metrics:     m,
	}
}

// Register mounts every route named in spec.md §6, plus the supplemented
// /replica_get_local alias (see DESIGN.md). Every route is POST except
// /metrics, matching spec.md's "HTTP POST with JSON bodies" transport
// note — /metrics is the one GET-friendly observability endpoint.
func (s *Server) Register(r *gin.Engine) {
	r.POST("/ping", s.handlePing)
	r.POST("/get_predecessor", s.handleGetPredecessor)
	r.POST("/notify", s.handleNotify)
	r.POST("/get_successor", s.handleGetSuccessor)
	r.POST("/get_successor_list", s.handleGetSuccessorList)
	r.POST("/find_successor", s.handleFindSuccessor)
	r.POST("/closest_preceding_or_self", s.handleClosestPrecedingOrSelf)

	r.POST("/put", s.handlePut)
	r.POST("/get", s.handleGet)

	r.POST("/replica_put", s.handleReplicaPut)
	r.POST("/replica_get", s.handleReplicaGet)
	r.POST("/replica_get_local", s.handleReplicaGet) // alias, see DESIGN.md
	r.POST("/replica_sync", s.handleReplicaSync)

	r.POST("/g_start_query", s.handleGStartQuery)
	r.POST("/g_query", s.handleGQuery)

	r.GET("/metrics", s.handleMetrics)
}

// ─── ring-level handlers ─────────────────────────────────────────────────

func (s *Server) handlePing(c *gin.Context) {
	c.JSON(http.StatusOK, okResponse{OK: true})
}

func (s *Server) handleGetPredecessor(c *gin.Context) {
	pred, ok := s.state.Predecessor()
	if !ok {
		c.JSON(http.StatusOK, predecessorResponse{Predecessor: nil})
		return
	}
	c.JSON(http.StatusOK, predecessorResponse{Predecessor: &pred})
}

func (s *Server) handleNotify(c *gin.Context) {
	var req notifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.maintainer.Notify(req.Node)
	c.JSON(http.StatusOK, okResponse{OK: true})
}

func (s *Server) handleGetSuccessor(c *gin.Context) {
	c.JSON(http.StatusOK, successorResponse{Successor: s.state.Successor()})
}

func (s *Server) handleGetSuccessorList(c *gin.Context) {
	c.JSON(http.StatusOK, successorListResponse{SuccessorList: s.state.SuccessorList()})
}

func (s *Server) handleFindSuccessor(c *gin.Context) {
	var req idRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	succ := s.maintainer.FindSuccessor(c.Request.Context(), req.ID)
	c.JSON(http.StatusOK, nodeResponse{Node: succ})
}

func (s *Server) handleClosestPrecedingOrSelf(c *gin.Context) {
	var req idRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, nodeResponse{Node: s.maintainer.ClosestPrecedingOrSelf(req.ID)})
}

// ─── client-facing KV handlers ────────────────────────────────────────────

func (s *Server) handlePut(c *gin.Context) {
	var req putRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "key is required"})
		return
	}
	writerID := req.WriterID
	if writerID == "" {
		writerID = s.self.Addr
	}

	ts := s.coordinator.HandlePut(c.Request.Context(), req.Key, req.Value, req.TS, writerID)
	c.JSON(http.StatusOK, putResponse{OK: true, TS: ts})
}

func (s *Server) handleGet(c *gin.Context) {
	var req keyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	entry, found := s.coordinator.HandleGet(c.Request.Context(), req.Key)
	if !found {
		c.JSON(http.StatusOK, getResponse{Found: false})
		return
	}
	c.JSON(http.StatusOK, getResponse{Found: true, Value: entry.Value, TS: entry.TS, WriterID: entry.WriterID})
}

// ─── replica-to-replica handlers ──────────────────────────────────────────

func (s *Server) handleReplicaPut(c *gin.Context) {
	var req replicaPutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.coordinator.HandleReplicaPut(req.Key, kv.Entry{Value: req.Value, TS: req.TS, WriterID: req.WriterID})
	c.JSON(http.StatusOK, okResponse{OK: true})
}

func (s *Server) handleReplicaGet(c *gin.Context) {
	var req keyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	entry, ok := s.store.Get(req.Key)
	if !ok {
		c.JSON(http.StatusOK, getResponse{Found: false})
		return
	}
	c.JSON(http.StatusOK, getResponse{Found: true, Value: entry.Value, TS: entry.TS, WriterID: entry.WriterID})
}

func (s *Server) handleReplicaSync(c *gin.Context) {
	var req replicaSyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	snapshot := make(map[string]kv.Entry, len(req.KV))
	for key, t := range req.KV {
		snapshot[key] = kv.Entry(t)
	}
	s.coordinator.HandleReplicaSync(snapshot)
	c.JSON(http.StatusOK, okResponse{OK: true})
}

// ─── flood handlers ────────────────────────────────────────────────────────

func (s *Server) handleGStartQuery(c *gin.Context) {
	var req gStartQueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ttl := req.TTL
	if ttl <= 0 {
		ttl = nodeconf.FloodTTLDefault
	}
	result := s.searcher.StartQuery(c.Request.Context(), req.Key, ttl)
	c.JSON(http.StatusOK, fromFloodResult(result))
}

func (s *Server) handleGQuery(c *gin.Context) {
	var req gQueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ttl := req.TTL
	if ttl <= 0 {
		ttl = nodeconf.FloodTTLDefault
	}
	origin := req.Origin
	if origin == "" {
		origin = s.self.Addr
	}

	var result flood.Result
	if req.MsgID == "" {
		// No msg_id supplied: treat this as if it were freshly originated
		// here, per spec.md §6's "all optional fields default" note.
		result = s.searcher.StartQuery(c.Request.Context(), req.Key, ttl)
	} else {
		result = s.searcher.QueryReceived(c.Request.Context(), req.MsgID, req.Key, ttl, origin)
	}
	c.JSON(http.StatusOK, fromFloodResult(result))
}

func fromFloodResult(result flood.Result) queryResponse {
	matches := make([]match, len(result.Matches))
	for i, m := range result.Matches {
		matches[i] = match{Addr: m.Addr, Key: m.Key}
	}
	return queryResponse{Matches: matches, Stats: queryStats{Forwarded: result.Forwarded}}
}

// ─── observability ──────────────────────────────────────────────────────

func (s *Server) handleMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, s.metrics.Snapshot())
}
