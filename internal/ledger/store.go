package ledger

import "context"

// Store persists committed ledger entries. The interface is append-only on
// purpose: there is no update or delete, so a compromised caller holding a
// Store cannot rewrite history through it.
//
// Error contract: Head returns sentinel.ErrNotFound (wrapped) when an
// election has no entries yet; Append returns sentinel.ErrConflict (wrapped)
// when an entry with the same (election_id, sequence_no) already exists.
//
// AppendNext is the chain-extension point. The implementation owns the
// per-election serialization (store mutex, or a database lock that lasts
// until the entry is visible to other appenders), reads the current head,
// and commits the entry returned by build. build receives the head's entry
// hash (GenesisHash for an empty chain) and the next sequence number.
type Store interface {
	Append(ctx context.Context, event *Event) error
	AppendNext(ctx context.Context, electionID string,
		build func(prevHash string, seq uint64) (*Event, error)) (*Event, error)
	Head(ctx context.Context, electionID string) (*Event, error)
	List(ctx context.Context, electionID string) ([]*Event, error)
	ListElections(ctx context.Context) ([]string, error)
}
