package ballot

import "time"

// EncryptedBallot is a cast ballot at rest. It has no voter column and no
// token column: the only foreign key is the election, so the ballots table
// cannot be joined back onto the voter roll by any query.
type EncryptedBallot struct {
	ID         string
	ElectionID string
	// Ciphertext is the sealed choice. It is opened only at tally time with
	// the election's seal key.
	Ciphertext []byte
	// ReceiptHash is the hex SHA-256 digest of the receipt token handed to
	// the voter at cast time. The raw receipt is never stored.
	ReceiptHash string
	CastAt      time.Time
}

// Receipt is what the voter takes away from a successful cast. Presenting
// the token later proves a ballot with this digest exists, nothing more.
type Receipt struct {
	Token  string
	CastAt time.Time
}
