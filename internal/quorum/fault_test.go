package quorum

import (
	"context"
	"errors"
	"testing"

	"github.com/quorum-sim/generals/internal/domain"
)

func TestSetState_ForwardedByPrimary(t *testing.T) {
	m := newMesh(t, 1, 2, 3)
	got, err := m.node(1).SetState(context.Background(), 2, domain.Faulty)
	if err != nil {
		t.Fatalf("SetState: %v", err)
	}
	want := "G1, primary, state=NF\nG2, secondary, state=F\nG3, secondary, state=NF"
	if got != want {
		t.Errorf("report = %q, want %q", got, want)
	}
	if s := m.node(2).State(); s != domain.Faulty {
		t.Errorf("G2 state = %q, want F", s)
	}
}

func TestSetState_Self(t *testing.T) {
	m := newMesh(t, 1, 2)
	ctx := context.Background()

	got, err := m.node(2).SetState(ctx, 2, domain.Faulty)
	if err != nil {
		t.Fatalf("SetState: %v", err)
	}
	if got != "G2, secondary, state=F" {
		t.Errorf("secondary report = %q", got)
	}

	got, err = m.node(1).SetState(ctx, 1, domain.Faulty)
	if err != nil {
		t.Fatalf("SetState: %v", err)
	}
	if got != "G1, primary, state=F\nG2, secondary, state=F" {
		t.Errorf("primary report = %q", got)
	}

	// Back to loyal.
	if _, err := m.node(1).SetState(ctx, 1, domain.NonFaulty); err != nil {
		t.Fatalf("SetState: %v", err)
	}
	if s := m.node(1).State(); s != domain.NonFaulty {
		t.Errorf("G1 state = %q, want NF", s)
	}
}

func TestSetState_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		caller int
		target int
		state  domain.FaultState
		kind   error
		msg    string
	}{
		{"secondary forwarding", 2, 3, domain.Faulty, domain.ErrWrongRole, "Could not set state F for general 3..."},
		{"unknown target", 1, 7, domain.Faulty, domain.ErrUnknownPeer, "Could not set state F for general 7..."},
		{"invalid state", 1, 2, domain.FaultState("maybe"), domain.ErrInvalidFaultState, "Could not set state maybe for general 2..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newMesh(t, 1, 2, 3)
			_, err := m.node(tt.caller).SetState(context.Background(), tt.target, tt.state)
			if !errors.Is(err, tt.kind) {
				t.Fatalf("err = %v, want %v", err, tt.kind)
			}
			if err.Error() != tt.msg {
				t.Errorf("message = %q, want %q", err.Error(), tt.msg)
			}
			for id := 1; id <= 3; id++ {
				if s := m.node(id).State(); s != domain.NonFaulty {
					t.Errorf("G%d state = %q after rejected SetState", id, s)
				}
			}
		})
	}
}

func TestSetState_UnreachableTarget(t *testing.T) {
	m := newMesh(t, 1, 2, 3)
	m.setDown(2, true)
	_, err := m.node(1).SetState(context.Background(), 2, domain.Faulty)
	if !errors.Is(err, domain.ErrPeerUnreachable) {
		t.Errorf("err = %v, want ErrPeerUnreachable", err)
	}
}

func TestFlip(t *testing.T) {
	if got := flip(fixedCoin(1)); got != domain.Attack {
		t.Errorf("flip(1) = %q, want attack", got)
	}
	if got := flip(fixedCoin(0)); got != domain.Retreat {
		t.Errorf("flip(0) = %q, want retreat", got)
	}
}
