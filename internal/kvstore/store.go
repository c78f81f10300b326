package kvstore

import "context"

// Store is the persistence collaborator shared by the registry, the relay
// mapper and the notification throttler. It offers single-key reads and
// writes plus a cursor-paged prefix listing; there are no transactions and
// no cross-key consistency guarantees.
type Store interface {
	// Get returns the value for key and whether the key exists.
	Get(ctx context.Context, key string) (string, bool, error)
	Put(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	// List returns up to limit entries whose keys start with prefix,
	// resuming from cursor. An empty NextCursor means the scan is
	// exhausted. Backends may return slightly more or fewer entries per
	// page; callers must drive the cursor loop and cap their own work.
	List(ctx context.Context, prefix, cursor string, limit int64) (*ListResult, error)
}

type Entry struct {
	Key   string
	Value string
}

type ListResult struct {
	Entries    []Entry
	NextCursor string
}
