package db

import (
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
)

// Store is the document-store contract the set store runs against.
// Each document maps a (bucket, key) pair to a set of string members.
// Absence of a document is never an error: reads report it as a nil
// member slice and removals treat it as a no-op.
type Store interface {
	// FetchSet returns the members stored for (bucket, key), or nil
	// when no document exists.
	FetchSet(bucket, key string) ([]string, error)

	// FetchSets returns one member slice per requested key, aligned
	// with keys. Keys without a document yield a nil slice. A single-key
	// list degenerates to an equality lookup.
	FetchSets(bucket string, keys []string) ([][]string, error)

	// AddMembers upserts the document for (bucket, key) and inserts
	// each member with set semantics. Atomic per document.
	AddMembers(bucket, key string, members []string) error

	// RemoveMembers removes every listed member if present. Removing a
	// non-member or mutating an absent document is a no-op. An emptied
	// document may be left behind; FetchSet reports it as empty.
	RemoveMembers(bucket, key string, members []string) error

	// DeleteKeys deletes every document matching bucket and key ∈ keys.
	DeleteKeys(bucket string, keys []string) error

	// DeleteAll wipes every document in the collection, across all buckets.
	DeleteAll() error
}

// Open creates the configured backend and returns it together with its
// close function.
func Open(backend, path, dsn, collection string) (Store, func() error, error) {
	switch backend {
	case "memory":
		return NewMemoryStore()
	case "bolt":
		return NewBoltStore(path, collection)
	case "badger":
		return NewBadgerStore(path, collection)
	case "postgres":
		return NewPostgresStore(dsn, collection)
	}
	return nil, nil, fmt.Errorf("unknown backend %q", backend)
}

// encodeMembers and decodeMembers are shared by the document-per-value-set
// backends (memory, bolt, badger), which persist a JSON member array.
func encodeMembers(members []string) ([]byte, error) {
	data, err := json.Marshal(members)
	if err != nil {
		return nil, errors.Wrap(err, "encoding member set")
	}
	return data, nil
}

func decodeMembers(data []byte) ([]string, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var members []string
	if err := json.Unmarshal(data, &members); err != nil {
		return nil, errors.Wrap(err, "decoding member set")
	}
	return members, nil
}

// mergeMembers inserts added into existing with set semantics, keeping
// the order of first insertion stable.
func mergeMembers(existing, added []string) []string {
	seen := make(map[string]struct{}, len(existing)+len(added))
	merged := make([]string, 0, len(existing)+len(added))

	for _, list := range [][]string{existing, added} {
		for _, m := range list {
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			merged = append(merged, m)
		}
	}
	return merged
}

// pullMembers removes every member of removed from existing.
func pullMembers(existing, removed []string) []string {
	drop := make(map[string]struct{}, len(removed))
	for _, m := range removed {
		drop[m] = struct{}{}
	}

	kept := make([]string, 0, len(existing))
	for _, m := range existing {
		if _, ok := drop[m]; !ok {
			kept = append(kept, m)
		}
	}
	return kept
}
