package rpc

import (
	"encoding/json"
	"fmt"

	"distributed-kvstore/internal/kv"
	"distributed-kvstore/internal/ring"
)

// tuple is the wire form of one kv.Entry within a /replica_sync body: a
// 3-element JSON array `[value, ts, writer_id]`, matching how the
// original serializes a Python (value, ts, writer_id) tuple.
type tuple kv.Entry

func (t tuple) MarshalJSON() ([]byte, error) {
	return json.Marshal([3]interface{}{t.Value, t.TS, t.WriterID})
}

func (t *tuple) UnmarshalJSON(data []byte) error {
	var raw [3]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("rpc: decode kv tuple: %w", err)
	}
	if err := json.Unmarshal(raw[0], &t.Value); err != nil {
		return err
	}
	if err := json.Unmarshal(raw[1], &t.TS); err != nil {
		return err
	}
	return json.Unmarshal(raw[2], &t.WriterID)
}

// Wire request/response shapes per spec.md §6. Field names and optional-
// ness follow the spec's own JSON bodies exactly (e.g. `ts`/`writer_id`
// are optional on /put, required on /replica_put).

type okResponse struct {
	OK bool `json:"ok"`
}

type notifyRequest struct {
	Node ring.NodeRef `json:"node"`
}

type idRequest struct {
	ID uint32 `json:"id"`
}

type nodeResponse struct {
	Node ring.NodeRef `json:"node"`
}

type predecessorResponse struct {
	Predecessor *ring.NodeRef `json:"predecessor"`
}

type successorResponse struct {
	Successor ring.NodeRef `json:"successor"`
}

type successorListResponse struct {
	SuccessorList []ring.NodeRef `json:"successor_list"`
}

type putRequest struct {
	Key      string  `json:"key" binding:"required"`
	Value    string  `json:"value"`
	TS       *uint64 `json:"ts,omitempty"`
	WriterID string  `json:"writer_id,omitempty"`
}

type putResponse struct {
	OK bool   `json:"ok"`
	TS uint64 `json:"ts"`
}

type keyRequest struct {
	Key string `json:"key" binding:"required"`
}

type getResponse struct {
	Found    bool   `json:"found"`
	Value    string `json:"value,omitempty"`
	TS       uint64 `json:"ts,omitempty"`
	WriterID string `json:"writer_id,omitempty"`
}

type replicaPutRequest struct {
	Key      string `json:"key" binding:"required"`
	Value    string `json:"value"`
	TS       uint64 `json:"ts" binding:"required"`
	WriterID string `json:"writer_id" binding:"required"`
}

// replicaSyncRequest carries `{kv: {key: [value, ts, writer_id]}}` per
// spec.md §6 — each entry is a 3-tuple, not an object, mirroring how the
// original serializes a Python tuple.
type replicaSyncRequest struct {
	KV map[string]tuple `json:"kv"`
}

type gStartQueryRequest struct {
	Key string `json:"key" binding:"required"`
	TTL int    `json:"ttl,omitempty"`
}

type gQueryRequest struct {
	MsgID  string `json:"msg_id,omitempty"`
	Key    string `json:"key" binding:"required"`
	TTL    int    `json:"ttl,omitempty"`
	Origin string `json:"origin,omitempty"`
}

type queryStats struct {
	Forwarded int `json:"forwarded"`
}

type queryResponse struct {
	Matches []match    `json:"matches"`
	Stats   queryStats `json:"stats"`
}

type match struct {
	Addr string `json:"addr"`
	Key  string `json:"key"`
}
