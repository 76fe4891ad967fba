package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Event types recorded in the audit ledger. Every security-relevant state
// transition in the system appends exactly one of these.
const (
	EventElectionCreated      = "election_created"
	EventElectionOpened       = "election_opened"
	EventElectionClosed       = "election_closed"
	EventIdentityTokensIssued = "identity_tokens_issued"
	EventVoterAuthenticated   = "voter_authenticated"
	EventAuthFailed           = "auth_failed"
	EventBallotTokenIssued    = "ballot_token_issued"
	EventBallotCast           = "ballot_cast"
)

// GenesisHash is the well-known prev_hash of the first entry in every
// election's chain.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// Payload carries the event detail that is hashed into the chain. All fields
// are scalars on a struct (no map[string]any) so json.Marshal produces a
// deterministic field order and the hash is reproducible.
type Payload struct {
	ElectionID string `json:"election_id"`
	EventType  string `json:"event_type"`
	ActorRef   string `json:"actor_ref"`
	Detail     string `json:"detail,omitempty"`
	RecordedAt string `json:"recorded_at"`
}

// Event is one committed entry in an election's hash chain. Entries are
// immutable after insertion; stores expose no update or delete.
type Event struct {
	ElectionID string
	SequenceNo uint64
	EventType  string
	// ActorRef names the emitting service. It must never carry voter PII.
	ActorRef    string
	Detail      string
	PayloadHash string
	PrevHash    string
	EntryHash   string
	RecordedAt  time.Time
}

// payload returns the canonical hashed form of the event.
func (e *Event) payload() Payload {
	return Payload{
		ElectionID: e.ElectionID,
		EventType:  e.EventType,
		ActorRef:   e.ActorRef,
		Detail:     e.Detail,
		RecordedAt: e.RecordedAt.UTC().Format(time.RFC3339Nano),
	}
}

// CanonicalPayload returns the deterministic JSON encoding of the event's
// payload, the byte sequence covered by PayloadHash and EntryHash.
func (e *Event) CanonicalPayload() ([]byte, error) {
	b, err := json.Marshal(e.payload())
	if err != nil {
		return nil, fmt.Errorf("marshal ledger payload: %w", err)
	}
	return b, nil
}

// ComputeHashes fills PayloadHash and EntryHash from PrevHash, the canonical
// payload, and SequenceNo. entry_hash = H(prev_hash || canonical || seq).
func (e *Event) ComputeHashes() error {
	canonical, err := e.CanonicalPayload()
	if err != nil {
		return err
	}

	payloadSum := sha256.Sum256(canonical)
	e.PayloadHash = hex.EncodeToString(payloadSum[:])

	h := sha256.New()
	h.Write([]byte(e.PrevHash))
	h.Write(canonical)
	h.Write([]byte(strconv.FormatUint(e.SequenceNo, 10)))
	e.EntryHash = hex.EncodeToString(h.Sum(nil))
	return nil
}

// Recompute returns the entry hash this event should carry given its current
// content, without mutating the event. Verification compares this against the
// stored EntryHash.
func (e *Event) Recompute() (string, error) {
	canonical, err := e.CanonicalPayload()
	if err != nil {
		return "", err
	}
	h := sha256.New()
	h.Write([]byte(e.PrevHash))
	h.Write(canonical)
	h.Write([]byte(strconv.FormatUint(e.SequenceNo, 10)))
	return hex.EncodeToString(h.Sum(nil)), nil
}
