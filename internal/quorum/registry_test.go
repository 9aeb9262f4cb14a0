package quorum

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/quorum-sim/generals/internal/domain"
)

func TestSetNeighbours_Converges(t *testing.T) {
	m := newMesh(t, 1, 2, 3, 4)
	assertMembers(t, m, []int{1, 2, 3, 4}, 1, 2, 3, 4)

	for id := 1; id <= 4; id++ {
		n := m.node(id)
		if _, ok := n.neighbours[id]; ok {
			t.Errorf("G%d lists itself as a neighbour", id)
		}
		if n.PrimaryID() != 1 {
			t.Errorf("G%d primary = %d, want 1", id, n.PrimaryID())
		}
	}
}

func TestSetNeighbours_StripsSelfByAddress(t *testing.T) {
	m := newMesh(t, 1)
	n := m.node(1)
	// Same address under a bogus id must still be recognised as self.
	err := n.SetNeighbours(context.Background(), domain.Membership{
		Members: []domain.Member{{ID: 99, Address: n.Address()}},
	})
	if err != nil {
		t.Fatalf("SetNeighbours: %v", err)
	}
	if got := n.MemberIDs(); !slices.Equal(got, []int{1}) {
		t.Errorf("members = %v, want [1]", got)
	}
}

func TestSetNeighbours_IgnoresStaleEpoch(t *testing.T) {
	m := newMesh(t, 1, 2, 3)
	g2 := m.node(2)
	epoch := g2.Epoch()
	if epoch == 0 {
		t.Fatal("expected a non-zero epoch after the initial broadcast")
	}

	err := g2.SetNeighbours(context.Background(), domain.Membership{
		Epoch:   epoch - 1,
		Members: m.book.Members([]int{1, 2}),
	})
	if err != nil {
		t.Fatalf("SetNeighbours: %v", err)
	}
	assertMembers(t, m, []int{1, 2, 3}, 2)
}

func TestSetNeighbours_SecondaryDoesNotRebroadcast(t *testing.T) {
	m := newMesh(t, 1, 2, 3)
	g2 := m.node(2)
	err := g2.SetNeighbours(context.Background(), domain.Membership{
		Epoch:   g2.Epoch(),
		Members: m.book.Members([]int{1, 2}),
	})
	if err != nil {
		t.Fatalf("SetNeighbours: %v", err)
	}
	assertMembers(t, m, []int{1, 2}, 2)
	assertMembers(t, m, []int{1, 2, 3}, 1, 3)
}

func TestAllocateFreeIDs(t *testing.T) {
	tests := []struct {
		name    string
		members []int
		n       int
		want    []int
	}{
		{"fills gap first", []int{1, 3}, 2, []int{2, 4}},
		{"contiguous", []int{1, 2, 3}, 2, []int{4, 5}},
		{"primary not 1", []int{2, 5}, 3, []int{1, 3, 4}},
		{"zero", []int{1}, 0, []int{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newMesh(t, tt.members...)
			got := m.node(tt.members[0]).AllocateFreeIDs(tt.n)
			if !slices.Equal(got, tt.want) {
				t.Errorf("AllocateFreeIDs(%d) = %v, want %v", tt.n, got, tt.want)
			}
		})
	}
}

func TestAllocateFreeIDs_Secondary(t *testing.T) {
	m := newMesh(t, 1, 2)
	if got := m.node(2).AllocateFreeIDs(3); len(got) != 0 {
		t.Errorf("secondary AllocateFreeIDs = %v, want empty", got)
	}
}

func TestAddNeighbours(t *testing.T) {
	m := newMesh(t, 1, 2)
	ctx := context.Background()

	ids := m.node(1).AllocateFreeIDs(2)
	for _, id := range ids {
		m.start(id, 1)
	}
	report, err := m.node(1).AddNeighbours(ctx, ids)
	if err != nil {
		t.Fatalf("AddNeighbours: %v", err)
	}

	assertMembers(t, m, []int{1, 2, 3, 4}, 1, 2, 3, 4)
	want := "G1, primary, state=NF\nG2, secondary, state=NF\nG3, secondary, state=NF\nG4, secondary, state=NF"
	if report != want {
		t.Errorf("report = %q, want %q", report, want)
	}
}

func TestAddNeighbours_Secondary(t *testing.T) {
	m := newMesh(t, 1, 2)
	_, err := m.node(2).AddNeighbours(context.Background(), []int{3, 4})
	if !errors.Is(err, domain.ErrWrongRole) {
		t.Fatalf("err = %v, want ErrWrongRole", err)
	}
	if err.Error() != "Could not add 2 new generals..." {
		t.Errorf("message = %q", err.Error())
	}
}

func TestAddNeighbours_InvalidID(t *testing.T) {
	for _, ids := range [][]int{{0}, {3, -1}} {
		m := newMesh(t, 1, 2)
		_, err := m.node(1).AddNeighbours(context.Background(), ids)
		if !errors.Is(err, domain.ErrInvalidCount) {
			t.Fatalf("AddNeighbours(%v) err = %v, want ErrInvalidCount", ids, err)
		}
		assertMembers(t, m, []int{1, 2}, 1, 2)
	}
}

func TestRemoveNeighbour_Secondary(t *testing.T) {
	m := newMesh(t, 1, 2, 3)
	report, err := m.node(1).RemoveNeighbour(context.Background(), 3)
	if err != nil {
		t.Fatalf("RemoveNeighbour: %v", err)
	}
	assertMembers(t, m, []int{1, 2}, 1, 2)
	if strings.Contains(report, "G3") {
		t.Errorf("report still lists G3: %q", report)
	}
}

func TestRemoveNeighbour_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		members []int
		caller  int
		target  int
		kind    error
	}{
		{"too small", []int{1, 2}, 1, 2, domain.ErrQuorumTooSmall},
		{"unknown", []int{1, 2, 3}, 1, 9, domain.ErrUnknownPeer},
		{"secondary caller", []int{1, 2, 3}, 2, 3, domain.ErrWrongRole},
		{"sole primary", []int{1}, 1, 1, domain.ErrUnknownPeer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newMesh(t, tt.members...)
			before := m.node(tt.caller).Epoch()

			_, err := m.node(tt.caller).RemoveNeighbour(context.Background(), tt.target)
			if !errors.Is(err, tt.kind) {
				t.Fatalf("err = %v, want %v", err, tt.kind)
			}
			assertMembers(t, m, tt.members, tt.members...)
			if m.node(tt.caller).Epoch() != before {
				t.Error("epoch changed on a rejected removal")
			}
		})
	}
}

func TestNextPrimary(t *testing.T) {
	id, err := NextPrimary([]int{4, 2, 1, 3}, 1)
	if err != nil || id != 2 {
		t.Errorf("NextPrimary = %d, %v; want 2", id, err)
	}
	if _, err := NextPrimary([]int{1}, 1); !errors.Is(err, domain.ErrNoSuccessor) {
		t.Errorf("err = %v, want ErrNoSuccessor", err)
	}
}

func TestKillPrimary_Handover(t *testing.T) {
	for _, size := range []int{2, 3, 4} {
		t.Run(strings.Repeat("G", size), func(t *testing.T) {
			ids := make([]int, 0, size)
			for id := 1; id <= size; id++ {
				ids = append(ids, id)
			}
			m := newMesh(t, ids...)
			ctx := context.Background()

			next, err := NextPrimary(m.node(1).MemberIDs(), 1)
			if err != nil {
				t.Fatalf("NextPrimary: %v", err)
			}
			if _, err := m.node(next).SetPrimary(ctx, next); err != nil {
				t.Fatalf("SetPrimary: %v", err)
			}
			for _, id := range ids {
				if got := m.node(id).PrimaryID(); got != next {
					t.Errorf("G%d primary = %d, want %d", id, got, next)
				}
			}

			if _, err := m.node(next).RemoveNeighbour(ctx, 1); err != nil {
				t.Fatalf("RemoveNeighbour(old primary): %v", err)
			}
			m.setDown(1, true)
			assertMembers(t, m, ids[1:], ids[1:]...)
		})
	}
}

func TestSetPrimary_UnknownID(t *testing.T) {
	m := newMesh(t, 1, 2)
	_, err := m.node(2).SetPrimary(context.Background(), 7)
	if !errors.Is(err, domain.ErrUnknownPeer) {
		t.Fatalf("err = %v, want ErrUnknownPeer", err)
	}
	if m.node(2).PrimaryID() != 1 {
		t.Error("primary changed on a rejected SetPrimary")
	}
}

func TestGetState(t *testing.T) {
	m := newMesh(t, 1, 2, 3)
	ctx := context.Background()

	got, err := m.node(1).GetState(ctx)
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	want := "G1, primary, state=NF\nG2, secondary, state=NF\nG3, secondary, state=NF"
	if got != want {
		t.Errorf("primary GetState = %q, want %q", got, want)
	}

	got, err = m.node(3).GetState(ctx)
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if got != "G3, secondary, state=NF" {
		t.Errorf("secondary GetState = %q", got)
	}
}

func TestPartialBroadcast(t *testing.T) {
	m := newMesh(t, 1, 2, 3, 4)
	ctx := context.Background()
	m.setDown(3, true)

	_, err := m.node(1).RemoveNeighbour(ctx, 2)
	if !errors.Is(err, domain.ErrPeerUnreachable) {
		t.Fatalf("err = %v, want ErrPeerUnreachable", err)
	}
	// The primary applied the change; the push stopped at G3.
	assertMembers(t, m, []int{1, 3, 4}, 1)
	assertMembers(t, m, []int{1, 2, 3, 4}, 4)

	// Once G3 is back, re-sending the primary's view converges everyone.
	m.setDown(3, false)
	err = m.node(1).SetNeighbours(ctx, domain.Membership{Members: m.book.Members(m.node(1).MemberIDs())})
	if err != nil {
		t.Fatalf("SetNeighbours: %v", err)
	}
	assertMembers(t, m, []int{1, 3, 4}, 1, 3, 4)
}
