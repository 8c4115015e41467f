package ring

import "context"

// Transport is the outbound RPC surface the ring maintainer needs from
// peers. internal/rpc.Client implements this; keeping it as an interface
// here avoids a ring/rpc import cycle (rpc.Server depends on ring.State
// for its handlers).
type Transport interface {
	Ping(ctx context.Context, addr string) bool
	GetPredecessor(ctx context.Context, addr string) (NodeRef, bool, bool)
	Notify(ctx context.Context, addr string, self NodeRef) bool
	GetSuccessorList(ctx context.Context, addr string) ([]NodeRef, bool)
	ClosestPrecedingOrSelf(ctx context.Context, addr string, keyID uint32) (NodeRef, bool)
	FindSuccessorRemote(ctx context.Context, addr string, keyID uint32) (NodeRef, bool)
}
