// Package domain holds the quorum types shared by every layer.
// A Peer is one simulated general; it owns one network endpoint.
package domain

import (
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
)

// FaultState tells whether a general reports its vote honestly.
type FaultState string

const (
	NonFaulty FaultState = "NF"
	Faulty    FaultState = "F"
)

// Valid reports whether s is one of the two known states.
func (s FaultState) Valid() bool {
	return s == NonFaulty || s == Faulty
}

// ParseFaultState accepts the wire values (NF, F) and the
// command-line spellings (non-faulty, faulty).
func ParseFaultState(s string) (FaultState, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "nf", "non-faulty":
		return NonFaulty, nil
	case "f", "faulty":
		return Faulty, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidFaultState, s)
}

// Order is the value a round agrees on.
type Order string

const (
	Attack  Order = "attack"
	Retreat Order = "retreat"

	// Undefined is reported when attack and retreat tie.
	Undefined Order = "undefined"

	// NoOrder means the general has not received an order yet.
	NoOrder Order = ""
)

// ParseOrder accepts only the two orders a primary may propose.
func ParseOrder(s string) (Order, error) {
	switch o := Order(strings.TrimSpace(s)); o {
	case Attack, Retreat:
		return o, nil
	}
	return NoOrder, fmt.Errorf("%w: %q", ErrInvalidOrder, s)
}

// Role is derived from comparing a peer's id with the primary id.
type Role string

const (
	RolePrimary   Role = "primary"
	RoleSecondary Role = "secondary"
)

// RoleOf returns the role of id in a quorum led by primary.
func RoleOf(id, primary int) Role {
	if id == primary {
		return RolePrimary
	}
	return RoleSecondary
}

// Member is one entry of a membership view.
type Member struct {
	ID      int    `json:"id"`
	Address string `json:"address"`
}

// Membership is a versioned view of the quorum. Epoch grows with every
// change the primary makes; a peer never applies an older epoch.
type Membership struct {
	Epoch   uint64   `json:"epoch"`
	Members []Member `json:"members"`
}

// IDs returns the member ids in ascending order.
func (m Membership) IDs() []int {
	ids := make([]int, 0, len(m.Members))
	for _, mem := range m.Members {
		ids = append(ids, mem.ID)
	}
	sort.Ints(ids)
	return ids
}

// Vote is what a secondary reports after talking to its neighbours.
type Vote struct {
	State    FaultState `json:"state"`
	Majority Order      `json:"majority"`
}

// ─── Addressing ─────────────────────────────────────────────────────────────

// AddressBook derives a peer's endpoint from its id: host:basePort+id.
type AddressBook struct {
	Host     string
	BasePort int
}

// Address returns the endpoint of the peer with the given id.
func (b AddressBook) Address(id int) string {
	return net.JoinHostPort(b.Host, strconv.Itoa(b.BasePort+id))
}

// Member builds the membership entry for id.
func (b AddressBook) Member(id int) Member {
	return Member{ID: id, Address: b.Address(id)}
}

// Members builds membership entries for ids, in the given order.
func (b AddressBook) Members(ids []int) []Member {
	out := make([]Member, 0, len(ids))
	for _, id := range ids {
		out = append(out, b.Member(id))
	}
	return out
}

// PeerLine renders the status line of one general, e.g. "G2, secondary, state=NF".
func PeerLine(id int, role Role, state FaultState) string {
	return fmt.Sprintf("G%d, %s, state=%s", id, role, state)
}
