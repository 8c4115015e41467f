// Package rpc is the HTTP/JSON transport binding every other package's
// Transport interface to one real wire protocol. Client is the outbound
// half; Server is the inbound half. Every endpoint except /metrics (GET)
// is POST with a JSON body, per spec.md §6.
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"distributed-kvstore/internal/flood"
	"distributed-kvstore/internal/kv"
	"distributed-kvstore/internal/ring"
)

// Client talks to exactly one peer per call — it has no notion of the
// ring, replica sets, or retries; callers supply the address and decide
// what to do with a failure. Every method is bounded by the context it
// is given, following the teacher's client.Client style.
type Client struct {
	httpClient *http.Client
}

func NewClient() *Client {
	return &Client{httpClient: &http.Client{}}
}

func (c *Client) post(ctx context.Context, addr, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("rpc: marshal request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("http://%s%s", addr, path), reader)
	if err != nil {
		return fmt.Errorf("rpc: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("rpc: POST %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("rpc: POST %s: status %d: %s", path, resp.StatusCode, msg)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) get(ctx context.Context, addr, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("http://%s%s", addr, path), nil)
	if err != nil {
		return fmt.Errorf("rpc: build request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("rpc: GET %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("rpc: GET %s: status %d: %s", path, resp.StatusCode, msg)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// ─── ring.Transport ─────────────────────────────────────────────────────

func (c *Client) Ping(ctx context.Context, addr string) bool {
	var resp okResponse
	return c.post(ctx, addr, "/ping", nil, &resp) == nil && resp.OK
}

func (c *Client) GetPredecessor(ctx context.Context, addr string) (ring.NodeRef, bool, bool) {
	var resp predecessorResponse
	if err := c.post(ctx, addr, "/get_predecessor", nil, &resp); err != nil {
		return ring.NodeRef{}, false, false
	}
	if resp.Predecessor == nil {
		return ring.NodeRef{}, false, true
	}
	return *resp.Predecessor, true, true
}

func (c *Client) Notify(ctx context.Context, addr string, self ring.NodeRef) bool {
	var resp okResponse
	return c.post(ctx, addr, "/notify", notifyRequest{Node: self}, &resp) == nil
}

func (c *Client) GetSuccessorList(ctx context.Context, addr string) ([]ring.NodeRef, bool) {
	var resp successorListResponse
	if err := c.post(ctx, addr, "/get_successor_list", nil, &resp); err != nil {
		return nil, false
	}
	return resp.SuccessorList, true
}

func (c *Client) ClosestPrecedingOrSelf(ctx context.Context, addr string, keyID uint32) (ring.NodeRef, bool) {
	var resp nodeResponse
	if err := c.post(ctx, addr, "/closest_preceding_or_self", idRequest{ID: keyID}, &resp); err != nil {
		return ring.NodeRef{}, false
	}
	return resp.Node, true
}

func (c *Client) FindSuccessorRemote(ctx context.Context, addr string, keyID uint32) (ring.NodeRef, bool) {
	var resp nodeResponse
	if err := c.post(ctx, addr, "/find_successor", idRequest{ID: keyID}, &resp); err != nil {
		return ring.NodeRef{}, false
	}
	return resp.Node, true
}

// ─── replication.Transport ──────────────────────────────────────────────

func (c *Client) GetSuccessor(ctx context.Context, addr string) (ring.NodeRef, bool) {
	var resp successorResponse
	if err := c.post(ctx, addr, "/get_successor", nil, &resp); err != nil {
		return ring.NodeRef{}, false
	}
	return resp.Successor, true
}

func (c *Client) ReplicaPut(ctx context.Context, addr, key string, entry kv.Entry) bool {
	req := replicaPutRequest{Key: key, Value: entry.Value, TS: entry.TS, WriterID: entry.WriterID}
	var resp okResponse
	return c.post(ctx, addr, "/replica_put", req, &resp) == nil
}

func (c *Client) ReplicaGet(ctx context.Context, addr, key string) (kv.Entry, bool, bool) {
	var resp getResponse
	if err := c.post(ctx, addr, "/replica_get", keyRequest{Key: key}, &resp); err != nil {
		return kv.Entry{}, false, false
	}
	if !resp.Found {
		return kv.Entry{}, false, true
	}
	return kv.Entry{Value: resp.Value, TS: resp.TS, WriterID: resp.WriterID}, true, true
}

func (c *Client) ReplicaSync(ctx context.Context, addr string, snapshot map[string]kv.Entry) bool {
	req := replicaSyncRequest{KV: make(map[string]tuple, len(snapshot))}
	for k, v := range snapshot {
		req.KV[k] = tuple(v)
	}
	var resp okResponse
	return c.post(ctx, addr, "/replica_sync", req, &resp) == nil
}

// ─── flood.Transport ─────────────────────────────────────────────────────

func (c *Client) GQuery(ctx context.Context, addr, msgID, key string, ttl int, origin string) (flood.Result, bool) {
	req := gQueryRequest{MsgID: msgID, Key: key, TTL: ttl, Origin: origin}
	var resp queryResponse
	if err := c.post(ctx, addr, "/g_query", req, &resp); err != nil {
		return flood.Result{}, false
	}
	return toFloodResult(resp), true
}

func toFloodResult(resp queryResponse) flood.Result {
	matches := make([]flood.Match, len(resp.Matches))
	for i, m := range resp.Matches {
		matches[i] = flood.Match{Addr: m.Addr, Key: m.Key}
	}
	return flood.Result{Matches: matches, Forwarded: resp.Stats.Forwarded}
}

// ─── public KV client methods, used by cmd/client ───────────────────────

// Put issues a client-facing /put against addr; it does not itself
// implement any Transport interface, it is just what kvcli uses.
func (c *Client) Put(ctx context.Context, addr, key, value string) (uint64, error) {
	var resp putResponse
	if err := c.post(ctx, addr, "/put", putRequest{Key: key, Value: value}, &resp); err != nil {
		return 0, err
	}
	return resp.TS, nil
}

var ErrNotFound = fmt.Errorf("rpc: key not found")

func (c *Client) Get(ctx context.Context, addr, key string) (kv.Entry, bool, error) {
	var resp getResponse
	if err := c.post(ctx, addr, "/get", keyRequest{Key: key}, &resp); err != nil {
		return kv.Entry{}, false, err
	}
	if !resp.Found {
		return kv.Entry{}, false, nil
	}
	return kv.Entry{Value: resp.Value, TS: resp.TS, WriterID: resp.WriterID}, true, nil
}

func (c *Client) StartQuery(ctx context.Context, addr, key string, ttl int) (flood.Result, error) {
	var resp queryResponse
	if err := c.post(ctx, addr, "/g_start_query", gStartQueryRequest{Key: key, TTL: ttl}, &resp); err != nil {
		return flood.Result{}, err
	}
	return toFloodResult(resp), nil
}

type MetricsSnapshot = json.RawMessage

func (c *Client) Metrics(ctx context.Context, addr string) (MetricsSnapshot, error) {
	var raw json.RawMessage
	if err := c.get(ctx, addr, "/metrics", &raw); err != nil {
		return nil, err
	}
	return raw, nil
}
