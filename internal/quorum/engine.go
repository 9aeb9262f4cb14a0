package quorum

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/quorum-sim/generals/internal/domain"
	"github.com/quorum-sim/generals/internal/infra/metrics"
)

// ─── Order Round ────────────────────────────────────────────────────────────
//
//	ExecuteOrder (primary)
//	  → SetPrimaryOrder on every secondary        (broadcast)
//	  → QueryNeighbours on every secondary        (vote collection)
//	      → GetOrder on every neighbour of it
//	  → Decide                                    (aggregation + sufficiency)

// ExecuteOrder runs one round and returns its report. Secondaries return
// an empty report.
func (n *Node) ExecuteOrder(ctx context.Context, order domain.Order) (string, error) {
	if !n.snapshot().isPrimary() {
		return "", nil
	}
	if _, err := domain.ParseOrder(string(order)); err != nil {
		return "", domain.Reject(domain.ErrInvalidOrder, "Could not execute order %q...", order)
	}

	n.opMu.Lock()
	defer n.opMu.Unlock()

	start := time.Now()
	round := uuid.New().String()[:8]
	log := n.log.With().Str("round", round).Logger()

	// The role may have moved while waiting for opMu.
	n.mu.Lock()
	v := n.viewLocked()
	if v.isPrimary() {
		n.lastOrder = order
		v.order = order
	}
	n.mu.Unlock()

	if !v.isPrimary() {
		return "", nil
	}

	log.Info().Str("order", string(order)).Int("secondaries", len(v.neighbours)).Msg("round started")

	for _, m := range v.neighbours {
		sent := order
		if v.state == domain.Faulty {
			sent = flip(n.coin)
		}
		if _, err := n.client.SetPrimaryOrder(ctx, m.Address, sent); err != nil {
			metrics.RoundsTotal.WithLabelValues("failed").Inc()
			return "", fmt.Errorf("send order to G%d: %w", m.ID, err)
		}
		log.Debug().Int("to", m.ID).Str("sent", string(sent)).Msg("order sent")
	}

	faulty := 0
	if v.state == domain.Faulty {
		faulty++
	}
	votes := NewTally(order)
	lines := make([]string, 0, len(v.neighbours))
	for _, m := range v.neighbours {
		vote, err := n.client.QueryNeighbours(ctx, m.Address)
		if err != nil {
			metrics.RoundsTotal.WithLabelValues("failed").Inc()
			return "", fmt.Errorf("collect vote of G%d: %w", m.ID, err)
		}
		if vote.State == domain.Faulty {
			faulty++
		}
		votes.Add(vote.Majority)
		lines = append(lines, roundLine(m.ID, domain.RoleSecondary, vote.Majority, vote.State))
	}

	verdict := Decide(order, v.state, len(v.neighbours)+1, faulty, votes)
	metrics.RoundsTotal.WithLabelValues(verdict.Label()).Inc()
	metrics.RoundDuration.Observe(time.Since(start).Seconds())

	log.Info().
		Str("verdict", verdict.Label()).
		Str("majority", string(verdict.Majority)).
		Int("faulty", verdict.Faulty).
		Int("total", verdict.Total).
		Msg("round finished")

	primary := roundLine(n.id, domain.RolePrimary, order, v.state)
	return renderRound(primary, lines, verdict), nil
}

// SetPrimaryOrder stores the order received from the primary, corrupted
// first if this general is faulty. The primary rejects it.
func (n *Node) SetPrimaryOrder(_ context.Context, order domain.Order) bool {
	n.opMu.Lock()
	defer n.opMu.Unlock()

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.id == n.primary {
		return false
	}
	if n.state == domain.Faulty {
		order = flip(n.coin)
	}
	n.lastOrder = order
	return true
}

// QueryNeighbours tallies this general's order together with the order of
// every neighbour and reports the majority with its own fault state.
// Only secondaries vote; the primary returns an empty vote.
func (n *Node) QueryNeighbours(ctx context.Context) (domain.Vote, error) {
	v := n.snapshot()
	if v.isPrimary() {
		return domain.Vote{}, nil
	}

	votes := NewTally(v.order)
	for _, m := range v.neighbours {
		o, err := n.client.GetOrder(ctx, m.Address)
		if err != nil {
			return domain.Vote{}, fmt.Errorf("get order of G%d: %w", m.ID, err)
		}
		votes.Add(o)
	}
	return domain.Vote{State: v.state, Majority: votes.Majority()}, nil
}

// GetOrder returns the last order this general stored.
func (n *Node) GetOrder() domain.Order {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.lastOrder
}
