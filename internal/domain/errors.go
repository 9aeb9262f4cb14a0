package domain

import (
	"errors"
	"fmt"
)

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors are pure: no transport dependency. The rpc layer carries
// them across the wire so errors.Is keeps working on the caller's side.

var (
	// Role errors
	ErrWrongRole = errors.New("operation not valid for this role")

	// Target errors
	ErrUnknownPeer       = errors.New("unknown general")
	ErrInvalidFaultState = errors.New("invalid fault state")
	ErrInvalidOrder      = errors.New("invalid order")
	ErrInvalidCount      = errors.New("count must be positive")

	// Membership invariants
	ErrQuorumTooSmall = errors.New("quorum too small")
	ErrNoSuccessor    = errors.New("no general left to take over as primary")

	// Transport errors
	ErrPeerUnreachable = errors.New("peer unreachable")

	// Shell errors
	ErrJournalDisabled = errors.New("command journal disabled")
)

// Rejection is a failure the caller should show verbatim. Message keeps
// the wording users see ("Could not kill general 3..."); Kind is the
// sentinel it belongs to.
type Rejection struct {
	Message string
	Kind    error
}

func (r *Rejection) Error() string { return r.Message }

func (r *Rejection) Unwrap() error { return r.Kind }

// Reject builds a Rejection of the given kind.
func Reject(kind error, format string, args ...any) error {
	return &Rejection{Message: fmt.Sprintf(format, args...), Kind: kind}
}

// UnreachableError names the peer a remote call could not reach.
type UnreachableError struct {
	Address string
	Err     error
}

func (e *UnreachableError) Error() string {
	return fmt.Sprintf("peer %s unreachable: %v", e.Address, e.Err)
}

func (e *UnreachableError) Unwrap() []error { return []error{ErrPeerUnreachable, e.Err} }
