package db

import (
	cmap "github.com/orcaman/concurrent-map/v2"
)

// MemoryStore keeps documents in a concurrent map. It is meant for
// tests and local development; nothing survives a restart.
type MemoryStore struct {
	docs cmap.ConcurrentMap[string, []string]
}

func NewMemoryStore() (store *MemoryStore, closeFunc func() error, err error) {
	store = &MemoryStore{
		docs: cmap.New[[]string](),
	}
	closeFunc = func() error { return nil }

	return store, closeFunc, nil
}

// docKey flattens (bucket, key) into the map key. The NUL separator
// cannot produce collisions because buckets never contain it in practice
// and the map is process-local anyway.
func docKey(bucket, key string) string {
	return bucket + "\x00" + key
}

func (m *MemoryStore) FetchSet(bucket, key string) ([]string, error) {
	members, ok := m.docs.Get(docKey(bucket, key))
	if !ok {
		return nil, nil
	}
	return copyMembers(members), nil
}

func (m *MemoryStore) FetchSets(bucket string, keys []string) ([][]string, error) {
	sets := make([][]string, len(keys))
	for i, key := range keys {
		members, err := m.FetchSet(bucket, key)
		if err != nil {
			return nil, err
		}
		sets[i] = members
	}
	return sets, nil
}

func (m *MemoryStore) AddMembers(bucket, key string, members []string) error {
	// Upsert runs the callback under the shard lock, which gives the
	// per-document atomicity the contract asks for.
	m.docs.Upsert(docKey(bucket, key), members, func(exist bool, current, added []string) []string {
		if !exist {
			return mergeMembers(nil, added)
		}
		return mergeMembers(current, added)
	})
	return nil
}

func (m *MemoryStore) RemoveMembers(bucket, key string, members []string) error {
	m.docs.Upsert(docKey(bucket, key), nil, func(exist bool, current, _ []string) []string {
		if !exist {
			return nil
		}
		return pullMembers(current, members)
	})
	return nil
}

func (m *MemoryStore) DeleteKeys(bucket string, keys []string) error {
	for _, key := range keys {
		m.docs.Remove(docKey(bucket, key))
	}
	return nil
}

func (m *MemoryStore) DeleteAll() error {
	m.docs.Clear()
	return nil
}

func copyMembers(members []string) []string {
	if members == nil {
		return nil
	}
	res := make([]string, len(members))
	copy(res, members)
	return res
}
