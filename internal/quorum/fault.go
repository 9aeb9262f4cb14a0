package quorum

import (
	"context"
	"math/rand/v2"

	"github.com/quorum-sim/generals/internal/domain"
	"github.com/quorum-sim/generals/internal/infra/metrics"
)

// Coin is the randomness a faulty general uses to corrupt its vote.
// *rand.Rand from math/rand/v2 satisfies it, which lets tests seed it.
type Coin interface {
	IntN(n int) int
}

type defaultCoin struct{}

func (defaultCoin) IntN(n int) int { return rand.IntN(n) }

// flip picks attack or retreat uniformly, ignoring the true order.
func flip(c Coin) domain.Order {
	if c.IntN(2) == 1 {
		return domain.Attack
	}
	return domain.Retreat
}

// SetState changes the fault state of general target. A general may set
// its own state; the primary forwards the change to a known neighbour.
// On the primary the full state report is returned, elsewhere the
// general's own status line.
func (n *Node) SetState(ctx context.Context, target int, state domain.FaultState) (string, error) {
	if !state.Valid() {
		return "", domain.Reject(domain.ErrInvalidFaultState, "Could not set state %s for general %d...", state, target)
	}

	if target == n.id {
		n.opMu.Lock()
		defer n.opMu.Unlock()

		n.mu.Lock()
		n.state = state
		v := n.viewLocked()
		n.mu.Unlock()

		n.log.Info().Str("state", string(state)).Msg("fault state changed")
		if state == domain.Faulty {
			metrics.FaultStateChanges.WithLabelValues("faulty").Inc()
		} else {
			metrics.FaultStateChanges.WithLabelValues("non_faulty").Inc()
		}
		if v.isPrimary() {
			return n.GetState(ctx)
		}
		return v.line(), nil
	}

	v := n.snapshot()
	if !v.isPrimary() {
		return "", domain.Reject(domain.ErrWrongRole, "Could not set state %s for general %d...", state, target)
	}
	var addr string
	for _, m := range v.neighbours {
		if m.ID == target {
			addr = m.Address
		}
	}
	if addr == "" {
		return "", domain.Reject(domain.ErrUnknownPeer, "Could not set state %s for general %d...", state, target)
	}
	if _, err := n.client.SetState(ctx, addr, target, state); err != nil {
		return "", err
	}
	return n.GetState(ctx)
}
