package quorum

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/quorum-sim/generals/internal/domain"
	"github.com/quorum-sim/generals/internal/infra/metrics"
)

// ─── Membership ─────────────────────────────────────────────────────────────

// GetState returns this general's status line. On the primary it also
// collects the line of every secondary, ascending by id.
func (n *Node) GetState(ctx context.Context) (string, error) {
	v := n.snapshot()
	lines := []string{v.line()}
	if v.isPrimary() {
		for _, m := range v.neighbours {
			s, err := n.client.GetState(ctx, m.Address)
			if err != nil {
				return "", fmt.Errorf("get state of G%d: %w", m.ID, err)
			}
			lines = append(lines, s)
		}
	}
	return strings.Join(lines, "\n"), nil
}

// SetNeighbours replaces the membership view. The primary pushes the
// result to every member; secondaries only apply it.
func (n *Node) SetNeighbours(ctx context.Context, m domain.Membership) error {
	n.opMu.Lock()
	defer n.opMu.Unlock()
	return n.setNeighbours(ctx, m)
}

// setNeighbours must be called with opMu held.
func (n *Node) setNeighbours(ctx context.Context, m domain.Membership) error {
	n.mu.Lock()
	isPrimary := n.id == n.primary
	if !isPrimary && m.Epoch < n.epoch {
		current := n.epoch
		n.mu.Unlock()
		n.log.Debug().Uint64("epoch", m.Epoch).Uint64("current", current).Msg("ignoring stale membership")
		return nil
	}
	n.neighbours = make(map[int]string, len(m.Members))
	for _, mem := range m.Members {
		if mem.ID == n.id || mem.Address == n.addr {
			continue
		}
		n.neighbours[mem.ID] = mem.Address
	}
	if isPrimary {
		n.epoch = max(n.epoch+1, m.Epoch)
	} else {
		n.epoch = m.Epoch
	}
	v := n.viewLocked()
	n.mu.Unlock()

	metrics.QuorumSize.Set(float64(len(v.neighbours) + 1))
	n.log.Info().Uint64("epoch", v.epoch).Ints("members", v.membership(n.addr).IDs()).Msg("membership applied")

	if !isPrimary {
		return nil
	}
	return n.pushMembership(ctx, v)
}

// pushMembership sends the primary's full view to every neighbour.
func (n *Node) pushMembership(ctx context.Context, v view) error {
	full := v.membership(n.addr)
	for _, m := range v.neighbours {
		if err := n.client.SetNeighbours(ctx, m.Address, full); err != nil {
			return fmt.Errorf("push membership to G%d: %w", m.ID, err)
		}
	}
	return nil
}

// AllocateFreeIDs returns the n smallest ids not used by any member.
// Only the primary allocates; secondaries return nothing.
func (n *Node) AllocateFreeIDs(count int) []int {
	v := n.snapshot()
	if !v.isPrimary() {
		return []int{}
	}
	return freeIDs(v.membership(n.addr).IDs(), count)
}

func freeIDs(used []int, count int) []int {
	taken := make(map[int]bool, len(used))
	for _, id := range used {
		taken[id] = true
	}
	ids := make([]int, 0, max(count, 0))
	for id := 1; len(ids) < count; id++ {
		if !taken[id] {
			ids = append(ids, id)
		}
	}
	return ids
}

// AddNeighbours merges freshly started generals into the quorum and
// broadcasts the new view. Primary only.
func (n *Node) AddNeighbours(ctx context.Context, ids []int) (string, error) {
	n.opMu.Lock()
	defer n.opMu.Unlock()

	v := n.snapshot()
	if !v.isPrimary() {
		return "", domain.Reject(domain.ErrWrongRole, "Could not add %d new generals...", len(ids))
	}
	for _, id := range ids {
		if id < 1 {
			return "", domain.Reject(domain.ErrInvalidCount, "Could not add general with id %d...", id)
		}
	}

	m := v.membership(n.addr)
	for _, id := range ids {
		if id == n.id || v.has(id) {
			continue
		}
		m.Members = append(m.Members, n.book.Member(id))
	}
	if err := n.setNeighbours(ctx, m); err != nil {
		return "", err
	}
	return n.GetState(ctx)
}

// RemoveNeighbour drops a general from the quorum and broadcasts the new
// view. At least two members must remain, except when retiring the
// primary this node took over from.
func (n *Node) RemoveNeighbour(ctx context.Context, id int) (string, error) {
	n.opMu.Lock()
	defer n.opMu.Unlock()

	n.mu.RLock()
	v := n.viewLocked()
	retiring := id != 0 && id == n.predecessor
	n.mu.RUnlock()

	switch {
	case !v.isPrimary():
		return "", domain.Reject(domain.ErrWrongRole, "Could not kill general %d...", id)
	case !v.has(id):
		return "", domain.Reject(domain.ErrUnknownPeer, "Could not kill general %d...", id)
	case len(v.neighbours) < 2 && !retiring:
		return "", domain.Reject(domain.ErrQuorumTooSmall, "Could not kill general %d...", id)
	}

	m := v.membership(n.addr)
	kept := m.Members[:0]
	for _, mem := range m.Members {
		if mem.ID != id {
			kept = append(kept, mem)
		}
	}
	m.Members = kept

	if retiring {
		n.mu.Lock()
		n.predecessor = 0
		n.mu.Unlock()
	}
	if err := n.setNeighbours(ctx, m); err != nil {
		return "", err
	}
	return n.GetState(ctx)
}

// SetPrimary adopts id as primary. When id is this general it takes over:
// every neighbour is told, then the membership is re-broadcast so there
// is a single source of truth. Returns the state report on takeover and
// an empty acknowledgement otherwise.
func (n *Node) SetPrimary(ctx context.Context, id int) (string, error) {
	n.opMu.Lock()
	defer n.opMu.Unlock()

	n.mu.Lock()
	if id != n.id {
		if _, ok := n.neighbours[id]; !ok {
			n.mu.Unlock()
			return "", domain.Reject(domain.ErrUnknownPeer, "Could not set primary %d...", id)
		}
	}
	old := n.primary
	n.primary = id
	takeover := id == n.id
	if takeover && old != n.id {
		n.predecessor = old
	}
	v := n.viewLocked()
	n.mu.Unlock()

	n.log.Info().Int("primary", id).Int("previous", old).Msg("primary changed")
	if !takeover {
		return "", nil
	}

	for _, m := range v.neighbours {
		if _, err := n.client.SetPrimary(ctx, m.Address, id); err != nil {
			return "", fmt.Errorf("announce primary to G%d: %w", m.ID, err)
		}
	}
	if err := n.setNeighbours(ctx, v.membership(n.addr)); err != nil {
		return "", err
	}
	return n.GetState(ctx)
}

// NextPrimary picks the successor of old: the smallest other member id.
func NextPrimary(members []int, old int) (int, error) {
	ids := append([]int(nil), members...)
	sort.Ints(ids)
	for _, id := range ids {
		if id != old {
			return id, nil
		}
	}
	return 0, domain.Reject(domain.ErrNoSuccessor, "Could not kill primary with id %d...", old)
}
