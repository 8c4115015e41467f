package ring

import "fmt"

// NodeRef identifies a peer on the ring: its 32-bit id and its dial
// address. NodeRefs are value objects — once created they are never
// mutated, only replaced.
type NodeRef struct {
	ID   uint32 `json:"id"`
	Addr string `json:"addr"`
}

func (n NodeRef) String() string {
	return fmt.Sprintf("%s(%d)", n.Addr, n.ID)
}

// Self builds the NodeRef for a listening address.
func Self(addr string) NodeRef {
	return NodeRef{ID: Hash(addr), Addr: addr}
}
