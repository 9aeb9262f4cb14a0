package domain

import "context"

// ─── Service Interfaces ─────────────────────────────────────────────────────
// These interfaces define boundaries between layers.
// The rpc package implements them; the quorum engine depends on them.

// PeerClient makes one blocking remote call against the general listening
// at addr. Every call opens and closes its own exchange.
type PeerClient interface {
	GetState(ctx context.Context, addr string) (string, error)
	SetState(ctx context.Context, addr string, id int, state FaultState) (string, error)
	SetNeighbours(ctx context.Context, addr string, m Membership) error
	SetPrimary(ctx context.Context, addr string, id int) (string, error)
	SetPrimaryOrder(ctx context.Context, addr string, order Order) (bool, error)
	QueryNeighbours(ctx context.Context, addr string) (Vote, error)
	GetOrder(ctx context.Context, addr string) (Order, error)
}

// AdminClient is the surface the launcher drives on the primary.
type AdminClient interface {
	PeerClient
	GetFreeNeighbourIDs(ctx context.Context, addr string, n int) ([]int, error)
	AddNeighbours(ctx context.Context, addr string, ids []int) (string, error)
	RemoveNeighbour(ctx context.Context, addr string, id int) (string, error)
	ExecuteOrder(ctx context.Context, addr string, order Order) (string, error)
}
