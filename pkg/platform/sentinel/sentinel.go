package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and infrastructure layers return
// these (optionally wrapped) so services can translate them into domain errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: entity does not exist in store
// - ErrExpired: token has passed its expires_at
// - ErrAlreadyUsed: single-use token has already been consumed
// - ErrAlreadyVoted: voter's has_voted flag is already set for this election
// - ErrChainBroken: audit chain recomputation found a mismatching entry
// - ErrInvalidState: entity in wrong state for requested operation
// - ErrUnavailable: storage or resource temporarily unavailable
//
// For validation errors (bad input, missing fields), use pkg/domain-errors directly.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrExpired      = errors.New("expired")
	ErrAlreadyUsed  = errors.New("already used")
	ErrAlreadyVoted = errors.New("already voted")
	ErrChainBroken  = errors.New("chain broken")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
