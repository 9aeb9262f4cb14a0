package domain

import "time"

// Outcome of one launcher command.
const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected" // a quorum rule refused it
	OutcomeError    = "error"    // a general could not be reached or failed
	OutcomeInvalid  = "invalid"  // the command line did not parse
)

// Session is one launcher run.
type Session struct {
	ID        string
	StartedAt time.Time
	EndedAt   time.Time // zero while running
	Generals  int       // quorum size at start
}

// CommandRecord is one journaled launcher command.
type CommandRecord struct {
	ID        int64
	SessionID string
	At        time.Time
	Line      string
	Outcome   string
	Output    string
}
