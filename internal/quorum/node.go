// Package quorum implements one general of the Byzantine generals quorum:
// membership (registry.go), fault state (fault.go) and the order round
// (engine.go).
//
// Locking: opMu serializes every state-changing operation of a node and may
// be held across remote calls. mu guards the fields and is never held
// across a remote call, so read-only calls such as GetOrder are always
// served, even while this node is driving a round that asks its peers to
// call back.
package quorum

import (
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/quorum-sim/generals/internal/domain"
)

// Config configures a Node.
type Config struct {
	ID      int
	Primary int
	Book    domain.AddressBook
	Client  domain.PeerClient

	// Coin decides corrupted votes. Defaults to math/rand/v2.
	Coin Coin

	Logger zerolog.Logger
}

// Node is the in-memory state of one general.
type Node struct {
	id     int
	addr   string
	book   domain.AddressBook
	client domain.PeerClient
	coin   Coin
	log    zerolog.Logger

	opMu sync.Mutex

	mu          sync.RWMutex
	neighbours  map[int]string
	epoch       uint64
	primary     int
	predecessor int // primary this node took over from, until retired
	state       domain.FaultState
	lastOrder   domain.Order
}

// NewNode creates a non-faulty general with no neighbours.
func NewNode(cfg Config) *Node {
	coin := cfg.Coin
	if coin == nil {
		coin = defaultCoin{}
	}
	return &Node{
		id:         cfg.ID,
		addr:       cfg.Book.Address(cfg.ID),
		book:       cfg.Book,
		client:     cfg.Client,
		coin:       coin,
		log:        cfg.Logger.With().Int("peer", cfg.ID).Logger(),
		neighbours: make(map[int]string),
		primary:    cfg.Primary,
		state:      domain.NonFaulty,
	}
}

// ID returns the general's id.
func (n *Node) ID() int { return n.id }

// Address returns the endpoint this general listens on.
func (n *Node) Address() string { return n.addr }

// String renders the status line, e.g. "G1, primary, state=NF".
func (n *Node) String() string {
	return n.snapshot().line()
}

// PrimaryID returns the id this general believes is primary.
func (n *Node) PrimaryID() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.primary
}

// State returns the general's fault state.
func (n *Node) State() domain.FaultState {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.state
}

// Epoch returns the membership version last applied.
func (n *Node) Epoch() uint64 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.epoch
}

// MemberIDs returns neighbours ∪ {self}, ascending.
func (n *Node) MemberIDs() []int {
	return n.snapshot().membership(n.addr).IDs()
}

// ─── Snapshots ──────────────────────────────────────────────────────────────

// view is a consistent copy of the node's fields taken under mu.
type view struct {
	id         int
	primary    int
	state      domain.FaultState
	order      domain.Order
	epoch      uint64
	neighbours []domain.Member // ascending by id
}

func (n *Node) snapshot() view {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.viewLocked()
}

func (n *Node) viewLocked() view {
	return view{
		id:         n.id,
		primary:    n.primary,
		state:      n.state,
		order:      n.lastOrder,
		epoch:      n.epoch,
		neighbours: sortedMembers(n.neighbours),
	}
}

func (v view) isPrimary() bool { return v.id == v.primary }

func (v view) line() string {
	return domain.PeerLine(v.id, domain.RoleOf(v.id, v.primary), v.state)
}

func (v view) has(id int) bool {
	for _, m := range v.neighbours {
		if m.ID == id {
			return true
		}
	}
	return false
}

// membership returns the full view, self included.
func (v view) membership(self string) domain.Membership {
	members := make([]domain.Member, 0, len(v.neighbours)+1)
	members = append(members, domain.Member{ID: v.id, Address: self})
	members = append(members, v.neighbours...)
	sort.Slice(members, func(i, j int) bool { return members[i].ID < members[j].ID })
	return domain.Membership{Epoch: v.epoch, Members: members}
}

func sortedMembers(m map[int]string) []domain.Member {
	out := make([]domain.Member, 0, len(m))
	for id, addr := range m {
		out = append(out, domain.Member{ID: id, Address: addr})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
