package quorum

import (
	"fmt"
	"strings"

	"github.com/quorum-sim/generals/internal/domain"
)

// Verdict is the outcome of one round.
type Verdict struct {
	Total    int
	Faulty   int
	Majority domain.Order
	Agreeing int  // non-faulty members beyond the faulty count backing Majority
	Decided  bool // the quorum is large enough to trust Majority
}

// Decide applies the quorum sufficiency rule to a finished round.
// A one-member quorum is always decided on the primary's own order.
// Otherwise the plurality of votes wins and the quorum is sufficient iff
// total >= 3*faulty + 1.
func Decide(order domain.Order, state domain.FaultState, total, faulty int, votes *Tally) Verdict {
	v := Verdict{Total: total, Faulty: faulty}
	if total == 1 {
		nonFaulty := 0
		if state == domain.NonFaulty {
			nonFaulty = 1
		}
		v.Majority = order
		v.Agreeing = max(nonFaulty-faulty, 0)
		v.Decided = true
		return v
	}
	majority, count := votes.MostCommon()
	v.Majority = majority
	v.Agreeing = max(count-faulty, 0)
	v.Decided = total >= 3*faulty+1
	return v
}

// Label is the metrics label of the verdict.
func (v Verdict) Label() string {
	if v.Decided {
		return "decided"
	}
	return "indeterminate"
}

func (v Verdict) String() string {
	plural := "s"
	if v.Faulty == 1 {
		plural = ""
	}
	if !v.Decided {
		return fmt.Sprintf("Execute order: cannot be determined - not enough generals in the system! "+
			"%d faulty node%s in the system - %d out of %d quorum not consistent",
			v.Faulty, plural, v.Total-1, v.Total)
	}
	return fmt.Sprintf("Execute order: %s! %d faulty node%s in the system - %d out of %d quorum suggest %s",
		v.Majority, v.Faulty, plural, v.Agreeing, v.Total, v.Majority)
}

// roundLine renders one general's contribution to a round report.
func roundLine(id int, role domain.Role, majority domain.Order, state domain.FaultState) string {
	return fmt.Sprintf("G%d, %s, majority=%s, state=%s", id, role, majority, state)
}

// renderRound joins the primary's line, the secondaries' lines and the
// verdict, separated from the lines by a blank line.
func renderRound(primary string, secondaries []string, v Verdict) string {
	var b strings.Builder
	b.WriteString(primary)
	b.WriteByte('\n')
	for _, l := range secondaries {
		b.WriteString(l)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	b.WriteString(v.String())
	return b.String()
}
