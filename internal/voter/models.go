package voter

import (
	"fmt"
	"time"

	"ballotbox/pkg/platform/sentinel"
)

// Status is the per-election voter lifecycle. Transitions only move forward:
// Invited -> Authenticated -> Voted.
type Status string

const (
	StatusInvited       Status = "invited"
	StatusAuthenticated Status = "authenticated"
	StatusVoted         Status = "voted"
)

// Record tracks one voter's right to participate in one election. The
// identity token is stored only as a digest; HasVoted is monotonic, once an
// exchange has delivered a ballot token it never goes back for the same
// election.
type Record struct {
	ID         string
	ElectionID string
	Email      string
	// IdentityTokenHash is the hex SHA-256 digest of the voter's identity
	// token. Empty until a token has been issued.
	IdentityTokenHash string
	Status            Status
	HasVoted          bool
	IssuedAt          *time.Time
	ExpiresAt         *time.Time
	CreatedAt         time.Time
}

// HasToken reports whether an identity token has been issued for this voter.
func (r *Record) HasToken() bool {
	return r.IdentityTokenHash != ""
}

// ValidateForAuthentication checks that the record can accept an
// authentication attempt at the given time.
func (r *Record) ValidateForAuthentication(now time.Time) error {
	if !r.HasToken() {
		return fmt.Errorf("no identity token issued: %w", sentinel.ErrInvalidState)
	}
	if r.HasVoted || r.Status == StatusVoted {
		return fmt.Errorf("voter has voted: %w", sentinel.ErrAlreadyVoted)
	}
	if r.ExpiresAt != nil && now.After(*r.ExpiresAt) {
		return fmt.Errorf("identity token expired: %w", sentinel.ErrExpired)
	}
	return nil
}

// MarkAuthenticated records a successful identity validation.
func (r *Record) MarkAuthenticated() {
	if r.Status == StatusInvited {
		r.Status = StatusAuthenticated
	}
}

// MarkVoted flips the monotonic has_voted flag. There is no inverse method.
func (r *Record) MarkVoted() {
	r.Status = StatusVoted
	r.HasVoted = true
}

// AttachToken records a freshly issued identity token digest and its expiry.
func (r *Record) AttachToken(tokenHash string, issuedAt, expiresAt time.Time) {
	r.IdentityTokenHash = tokenHash
	r.IssuedAt = &issuedAt
	r.ExpiresAt = &expiresAt
}
