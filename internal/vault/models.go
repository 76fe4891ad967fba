package vault

import "time"

// BallotToken is an anonymous voting credential. It deliberately carries no
// voter identifier: the only foreign key is the election, so the stored form
// of a ballot token can never be joined back onto the voter roll.
type BallotToken struct {
	// TokenHash is the hex SHA-256 digest of the raw token. The raw value is
	// returned to the voter exactly once and never persisted.
	TokenHash  string
	ElectionID string
	Used       bool
	IssuedAt   time.Time
	ExpiresAt  time.Time
	UsedAt     *time.Time
}

// Usable reports whether the token can still be redeemed at the given time.
func (t *BallotToken) Usable(now time.Time) bool {
	return !t.Used && now.Before(t.ExpiresAt)
}
