// Package metrics is a trivial in-process counters aggregator: it only
// observes the events other components report and serves a JSON
// snapshot at /metrics. It has no opinion on what a "good" value looks
// like — that's left to whatever scrapes it.
package metrics

import (
	"sync"
	"time"
)

// Metrics accumulates counters for one node. All fields are guarded by
// one mutex since updates are infrequent relative to request handling.
type Metrics struct {
	mu        sync.Mutex
	nodeAddr  string
	startTime time.Time

	totalPuts      uint64
	totalGets      uint64
	totalGetHits   uint64
	totalGetMisses uint64
	sumPutLatency  time.Duration
	sumGetLatency  time.Duration

	totalChordLookups uint64
	sumChordHops      uint64

	totalFloodQueries uint64
	sumFloodForwarded uint64
}

func New(nodeAddr string) *Metrics {
	return &Metrics{nodeAddr: nodeAddr, startTime: time.Now()}
}

func (m *Metrics) RecordPut(latency time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totalPuts++
	m.sumPutLatency += latency
}

func (m *Metrics) RecordGet(latency time.Duration, hit bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totalGets++
	m.sumGetLatency += latency
	if hit {
		m.totalGetHits++
	} else {
		m.totalGetMisses++
	}
}

// RecordChordLookup implements ring.HopRecorder.
func (m *Metrics) RecordChordLookup(hops int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totalChordLookups++
	m.sumChordHops += uint64(hops)
}

func (m *Metrics) RecordFloodQuery(forwarded int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totalFloodQueries++
	m.sumFloodForwarded += uint64(forwarded)
}

// Snapshot is the JSON shape served at GET /metrics.
type Snapshot struct {
	Node      string  `json:"node"`
	UptimeSec float64 `json:"uptime_sec"`
	KV        struct {
		TotalPuts        uint64  `json:"total_puts"`
		TotalGets        uint64  `json:"total_gets"`
		TotalGetHits     uint64  `json:"total_get_hits"`
		TotalGetMisses   uint64  `json:"total_get_misses"`
		AvgPutLatencySec float64 `json:"avg_put_latency_sec"`
		AvgGetLatencySec float64 `json:"avg_get_latency_sec"`
	} `json:"kv"`
	Chord struct {
		TotalLookups uint64  `json:"total_lookups"`
		AvgHops      float64 `json:"avg_hops"`
	} `json:"chord"`
	Flood struct {
		TotalQueries         uint64  `json:"total_queries"`
		AvgForwardedPerQuery float64 `json:"avg_forwarded_per_query"`
	} `json:"flood"`
}

func (m *Metrics) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	var snap Snapshot
	snap.Node = m.nodeAddr
	snap.UptimeSec = time.Since(m.startTime).Seconds()

	snap.KV.TotalPuts = m.totalPuts
	snap.KV.TotalGets = m.totalGets
	snap.KV.TotalGetHits = m.totalGetHits
	snap.KV.TotalGetMisses = m.totalGetMisses
	if m.totalPuts > 0 {
		snap.KV.AvgPutLatencySec = m.sumPutLatency.Seconds() / float64(m.totalPuts)
	}
	if m.totalGets > 0 {
		snap.KV.AvgGetLatencySec = m.sumGetLatency.Seconds() / float64(m.totalGets)
	}

	snap.Chord.TotalLookups = m.totalChordLookups
	if m.totalChordLookups > 0 {
		snap.Chord.AvgHops = float64(m.sumChordHops) / float64(m.totalChordLookups)
	}

	snap.Flood.TotalQueries = m.totalFloodQueries
	if m.totalFloodQueries > 0 {
		snap.Flood.AvgForwardedPerQuery = float64(m.sumFloodForwarded) / float64(m.totalFloodQueries)
	}

	return snap
}
