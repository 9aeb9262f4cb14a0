package quorum

import "github.com/quorum-sim/generals/internal/domain"

// Tally counts orders and remembers the order in which each value was
// first seen, which breaks ties in MostCommon.
type Tally struct {
	seen   []domain.Order
	counts map[domain.Order]int
}

// NewTally returns a tally seeded with the given orders.
func NewTally(orders ...domain.Order) *Tally {
	t := &Tally{counts: make(map[domain.Order]int)}
	for _, o := range orders {
		t.Add(o)
	}
	return t
}

// Add counts one vote for o.
func (t *Tally) Add(o domain.Order) {
	if _, ok := t.counts[o]; !ok {
		t.seen = append(t.seen, o)
	}
	t.counts[o]++
}

// Count returns the votes for o.
func (t *Tally) Count(o domain.Order) int { return t.counts[o] }

// MostCommon returns the plurality winner and its count. The first value
// to be seen wins a tie.
func (t *Tally) MostCommon() (domain.Order, int) {
	var best domain.Order
	bestCount := 0
	for _, o := range t.seen {
		if c := t.counts[o]; c > bestCount {
			best, bestCount = o, c
		}
	}
	return best, bestCount
}

// Majority is MostCommon with one rule on top: an attack/retreat tie,
// including zero against zero, is Undefined.
func (t *Tally) Majority() domain.Order {
	if t.counts[domain.Attack] == t.counts[domain.Retreat] {
		return domain.Undefined
	}
	o, _ := t.MostCommon()
	return o
}
