package mapping

import (
	"context"
)

// Name of the store collection which mapping records are written to, unless configured otherwise.
const DefaultCollection = "lid-mapping"

type KeyKind uint8

const (
	// PN user to LID user
	KeyForward KeyKind = 1
	// LID user to PN user
	KeyReverse KeyKind = 2
)

func (k KeyKind) String() string {
	switch k {
	case KeyForward:
		return "forward"
	case KeyReverse:
		return "reverse"
	default:
		return "unknown"
	}
}

// Identifies a single persisted mapping record.
//
// The direction is a separate field, not a suffix on the user string, so that no user identifier can collide with a reverse key. Store implementations must keep the two kinds structurally distinct in their encoding.
type RecordKey struct {
	Kind KeyKind
	User string
}

func ForwardKey(pnUser string) RecordKey {
	return RecordKey{Kind: KeyForward, User: pnUser}
}

func ReverseKey(lidUser string) RecordKey {
	return RecordKey{Kind: KeyReverse, User: lidUser}
}

// Transactional key-value capability used by the [Resolver].
//
// Get returns only the keys which were found; missing keys are absent from the returned map (not an error).
//
// Transaction runs fn to completion and then commits every write made through the [Txn] as a single atomic unit. If fn returns an error, or the commit fails, nothing is written.
type KeyValueStore interface {
	Get(ctx context.Context, collection string, keys []RecordKey) (map[RecordKey]string, error)
	Transaction(ctx context.Context, collection string, fn func(ctx context.Context, tx Txn) error) error
}

// Write handle, only valid inside [KeyValueStore.Transaction].
type Txn interface {
	Set(collection string, records map[RecordKey]string) error
}
