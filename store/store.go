package store

import (
	"bucketset/db"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/pkg/errors"
)

// The key name "key" is reserved; accepting it would let callers shadow
// the document field the backends index on.
const reservedKey = "key"

// SetStore maps (bucket, key) pairs to sets of string values on top of
// a document store. Reads execute immediately; mutations are deferred
// into a Transaction and run by End.
type SetStore struct {
	docs db.Store
}

// New returns a set store backed by the given document store.
func New(docs db.Store) *SetStore {
	return &SetStore{docs: docs}
}

// Get returns the value set for (bucket, key). A missing entry yields
// the empty set, not an error.
func (s *SetStore) Get(bucket, key string) (mapset.Set[string], error) {
	members, err := s.docs.FetchSet(bucket, key)
	if err != nil {
		return nil, errors.Wrapf(err, "get %s/%s", bucket, key)
	}

	return mapset.NewSet[string](members...), nil
}

// Union returns the deduplicated union of the value sets of every
// listed key within bucket. Keys without an entry contribute nothing;
// member order in the result is unspecified.
func (s *SetStore) Union(bucket string, keys ...string) (mapset.Set[string], error) {
	if len(keys) == 0 {
		return nil, validationErrorf("union requires at least one key")
	}

	sets, err := s.docs.FetchSets(bucket, keys)
	if err != nil {
		return nil, errors.Wrapf(err, "union in %s", bucket)
	}

	union := mapset.NewSet[string]()
	for _, members := range sets {
		union.Append(members...)
	}
	return union, nil
}

// Clean deletes every entry across all buckets. It is immediate, not
// deferred, and irreversible.
func (s *SetStore) Clean() error {
	return errors.Wrap(s.docs.DeleteAll(), "clean")
}
