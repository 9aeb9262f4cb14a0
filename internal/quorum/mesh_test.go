package quorum

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/quorum-sim/generals/internal/domain"
)

// ─── Test Helpers ───────────────────────────────────────────────────────────

// mesh wires Nodes together in memory. It implements domain.PeerClient by
// calling the target node directly.
type mesh struct {
	book domain.AddressBook
	coin Coin

	mu    sync.Mutex
	nodes map[string]*Node
	down  map[string]bool
}

// fixedCoin always lands on the same side: 1 = attack, 0 = retreat.
type fixedCoin int

func (c fixedCoin) IntN(int) int { return int(c) }

func newMesh(t *testing.T, ids ...int) *mesh {
	t.Helper()
	m := &mesh{
		book:  domain.AddressBook{Host: "127.0.0.1", BasePort: 18800},
		coin:  fixedCoin(0),
		nodes: make(map[string]*Node),
		down:  make(map[string]bool),
	}
	for _, id := range ids {
		m.start(id, ids[0])
	}
	err := m.node(ids[0]).SetNeighbours(context.Background(), domain.Membership{
		Members: m.book.Members(ids),
	})
	if err != nil {
		t.Fatalf("initial SetNeighbours: %v", err)
	}
	return m
}

// start creates a node the way the launcher does: no neighbours, told
// who the primary is.
func (m *mesh) start(id, primary int) *Node {
	n := NewNode(Config{
		ID:      id,
		Primary: primary,
		Book:    m.book,
		Client:  m,
		Coin:    m.coin,
		Logger:  zerolog.Nop(),
	})
	m.mu.Lock()
	m.nodes[n.Address()] = n
	m.mu.Unlock()
	return n
}

func (m *mesh) node(id int) *Node {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nodes[m.book.Address(id)]
}

func (m *mesh) setDown(id int, down bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.down[m.book.Address(id)] = down
}

func (m *mesh) lookup(addr string) (*Node, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.nodes[addr]
	if !ok || m.down[addr] {
		return nil, &domain.UnreachableError{Address: addr, Err: errors.New("connection refused")}
	}
	return n, nil
}

func (m *mesh) GetState(ctx context.Context, addr string) (string, error) {
	n, err := m.lookup(addr)
	if err != nil {
		return "", err
	}
	return n.GetState(ctx)
}

func (m *mesh) SetState(ctx context.Context, addr string, id int, state domain.FaultState) (string, error) {
	n, err := m.lookup(addr)
	if err != nil {
		return "", err
	}
	return n.SetState(ctx, id, state)
}

func (m *mesh) SetNeighbours(ctx context.Context, addr string, ms domain.Membership) error {
	n, err := m.lookup(addr)
	if err != nil {
		return err
	}
	return n.SetNeighbours(ctx, ms)
}

func (m *mesh) SetPrimary(ctx context.Context, addr string, id int) (string, error) {
	n, err := m.lookup(addr)
	if err != nil {
		return "", err
	}
	return n.SetPrimary(ctx, id)
}

func (m *mesh) SetPrimaryOrder(ctx context.Context, addr string, order domain.Order) (bool, error) {
	n, err := m.lookup(addr)
	if err != nil {
		return false, err
	}
	return n.SetPrimaryOrder(ctx, order), nil
}

func (m *mesh) QueryNeighbours(ctx context.Context, addr string) (domain.Vote, error) {
	n, err := m.lookup(addr)
	if err != nil {
		return domain.Vote{}, err
	}
	return n.QueryNeighbours(ctx)
}

func (m *mesh) GetOrder(_ context.Context, addr string) (domain.Order, error) {
	n, err := m.lookup(addr)
	if err != nil {
		return domain.NoOrder, err
	}
	return n.GetOrder(), nil
}

// assertMembers checks that every listed node sees exactly want.
func assertMembers(t *testing.T, m *mesh, want []int, nodes ...int) {
	t.Helper()
	for _, id := range nodes {
		got := m.node(id).MemberIDs()
		if !slices.Equal(got, want) {
			t.Errorf("G%d members = %v, want %v", id, got, want)
		}
	}
}
