package election

import (
	"time"

	dErrors "ballotbox/pkg/domain-errors"
)

// Status tracks the election lifecycle. Transitions only move forward:
// draft -> open -> closed.
type Status string

const (
	StatusDraft  Status = "draft"
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
)

// Election is the aggregate gating token issuance, casting, and tally.
// Its status is the boundary flag the core trusts: the tally reader checks
// StatusClosed and decides nothing else.
type Election struct {
	ID          string
	Title       string
	Description string
	Status      Status
	// SealKey is the 32-byte secretbox key ballots for this election are
	// sealed under. Held by the election aggregate, never by the ballot rows.
	SealKey   []byte
	CreatedAt time.Time
	OpenedAt  *time.Time
	ClosedAt  *time.Time
}

func (e *Election) IsOpen() bool   { return e.Status == StatusOpen }
func (e *Election) IsClosed() bool { return e.Status == StatusClosed }

// ValidateForOpen checks the draft -> open transition.
func (e *Election) ValidateForOpen() error {
	switch e.Status {
	case StatusDraft:
		return nil
	case StatusOpen:
		return dErrors.New(dErrors.CodeConflict, "election is already open")
	default:
		return dErrors.New(dErrors.CodeConflict, "election is closed")
	}
}

// ValidateForClose checks the open -> closed transition.
func (e *Election) ValidateForClose() error {
	switch e.Status {
	case StatusOpen:
		return nil
	case StatusClosed:
		return dErrors.New(dErrors.CodeConflict, "election is already closed")
	default:
		return dErrors.New(dErrors.CodeConflict, "election has not been opened")
	}
}

func (e *Election) MarkOpened(now time.Time) {
	e.Status = StatusOpen
	e.OpenedAt = &now
}

func (e *Election) MarkClosed(now time.Time) {
	e.Status = StatusClosed
	e.ClosedAt = &now
}
