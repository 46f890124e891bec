package db

import (
	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

// BoltStore is a bolt-backed document store. The collection maps to a
// root bbolt bucket; each logical bucket becomes a nested bucket whose
// keys hold JSON member arrays.
type BoltStore struct {
	db         *bolt.DB
	collection []byte
}

// NewBoltStore returns an instance of a bolt-backed store.
func NewBoltStore(path, collection string) (store *BoltStore, closeFunc func() error, err error) {
	boltDb, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "opening bolt db %q", path)
	}

	store = &BoltStore{db: boltDb, collection: []byte(collection)}
	closeFunc = boltDb.Close

	if err := store.createCollection(); err != nil {
		// return closefunc instead
		closeFunc()
		return nil, nil, errors.Wrap(err, "creating collection bucket")
	}

	return store, closeFunc, nil
}

func (s *BoltStore) createCollection() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(s.collection)
		return err
	})
}

func (s *BoltStore) FetchSet(bucket, key string) ([]string, error) {
	var members []string

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.collection).Bucket([]byte(bucket))
		if b == nil {
			return nil
		}

		var err error
		members, err = decodeMembers(copyByteSlice(b.Get([]byte(key))))
		return err
	})

	if err != nil {
		return nil, errors.Wrapf(err, "bolt: fetching set %s/%s", bucket, key)
	}
	return members, nil
}

func (s *BoltStore) FetchSets(bucket string, keys []string) ([][]string, error) {
	sets := make([][]string, len(keys))

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.collection).Bucket([]byte(bucket))
		if b == nil {
			return nil
		}

		for i, key := range keys {
			members, err := decodeMembers(copyByteSlice(b.Get([]byte(key))))
			if err != nil {
				return err
			}
			sets[i] = members
		}
		return nil
	})

	if err != nil {
		return nil, errors.Wrapf(err, "bolt: fetching sets in %s", bucket)
	}
	return sets, nil
}

func (s *BoltStore) AddMembers(bucket, key string, members []string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.Bucket(s.collection).CreateBucketIfNotExists([]byte(bucket))
		if err != nil {
			return err
		}

		existing, err := decodeMembers(b.Get([]byte(key)))
		if err != nil {
			return err
		}

		data, err := encodeMembers(mergeMembers(existing, members))
		if err != nil {
			return err
		}
		return b.Put([]byte(key), data)
	})

	return errors.Wrapf(err, "bolt: adding members to %s/%s", bucket, key)
}

func (s *BoltStore) RemoveMembers(bucket, key string, members []string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.collection).Bucket([]byte(bucket))
		if b == nil {
			return nil
		}

		data := b.Get([]byte(key))
		if data == nil {
			return nil
		}

		existing, err := decodeMembers(data)
		if err != nil {
			return err
		}

		// The emptied document stays behind; reads treat it the same
		// as a missing one.
		updated, err := encodeMembers(pullMembers(existing, members))
		if err != nil {
			return err
		}
		return b.Put([]byte(key), updated)
	})

	return errors.Wrapf(err, "bolt: removing members from %s/%s", bucket, key)
}

func (s *BoltStore) DeleteKeys(bucket string, keys []string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.collection).Bucket([]byte(bucket))
		if b == nil {
			return nil
		}

		for _, key := range keys {
			if err := b.Delete([]byte(key)); err != nil {
				return err
			}
		}
		return nil
	})

	return errors.Wrapf(err, "bolt: deleting keys in %s", bucket)
}

func (s *BoltStore) DeleteAll() error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		root := tx.Bucket(s.collection)

		var buckets [][]byte
		err := root.ForEach(func(k, v []byte) error {
			if v == nil { // nested buckets carry a nil value
				buckets = append(buckets, copyByteSlice(k))
			}
			return nil
		})
		if err != nil {
			return err
		}

		for _, name := range buckets {
			if err := root.DeleteBucket(name); err != nil {
				return err
			}
		}
		return nil
	})

	return errors.Wrap(err, "bolt: deleting all entries")
}

func copyByteSlice(b []byte) []byte {
	if b == nil {
		return nil
	}
	res := make([]byte, len(b))
	copy(res, b)
	return res
}
