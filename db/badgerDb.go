package db

import (
	"encoding/binary"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"
)

// BadgerStore is a badger-backed document store. Documents live under a
// length-delimited composite key so arbitrary bucket and key strings
// cannot collide, and the whole collection shares one scannable prefix.
type BadgerStore struct {
	db     *badger.DB
	prefix []byte
}

func NewBadgerStore(path, collection string) (store *BadgerStore, closeFunc func() error, err error) {
	badgerDb, err := badger.Open(badger.DefaultOptions(path))
	if err != nil {
		return nil, nil, errors.Wrapf(err, "opening badger db %q", path)
	}

	store = &BadgerStore{
		db:     badgerDb,
		prefix: lengthDelimited(nil, collection),
	}
	closeFunc = badgerDb.Close

	// garbage collection once in a while
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()

		for range ticker.C {
		again:
			err := badgerDb.RunValueLogGC(0.7)
			if err == nil {
				goto again
			}
		}
	}()

	return store, closeFunc, nil
}

func lengthDelimited(dst []byte, s string) []byte {
	dst = binary.AppendUvarint(dst, uint64(len(s)))
	return append(dst, s...)
}

func (s *BadgerStore) docKey(bucket, key string) []byte {
	k := append([]byte(nil), s.prefix...)
	k = lengthDelimited(k, bucket)
	return append(k, key...)
}

func (s *BadgerStore) FetchSet(bucket, key string) ([]string, error) {
	var members []string

	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		members, err = fetchMembers(txn, s.docKey(bucket, key))
		return err
	})

	if err != nil {
		return nil, errors.Wrapf(err, "badger: fetching set %s/%s", bucket, key)
	}
	return members, nil
}

func (s *BadgerStore) FetchSets(bucket string, keys []string) ([][]string, error) {
	sets := make([][]string, len(keys))

	err := s.db.View(func(txn *badger.Txn) error {
		for i, key := range keys {
			members, err := fetchMembers(txn, s.docKey(bucket, key))
			if err != nil {
				return err
			}
			sets[i] = members
		}
		return nil
	})

	if err != nil {
		return nil, errors.Wrapf(err, "badger: fetching sets in %s", bucket)
	}
	return sets, nil
}

func fetchMembers(txn *badger.Txn, docKey []byte) ([]string, error) {
	item, err := txn.Get(docKey)

	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	data, err := item.ValueCopy(nil)
	if err != nil {
		return nil, err
	}

	return decodeMembers(data)
}

func (s *BadgerStore) AddMembers(bucket, key string, members []string) error {
	docKey := s.docKey(bucket, key)

	err := s.db.Update(func(txn *badger.Txn) error {
		existing, err := fetchMembers(txn, docKey)
		if err != nil {
			return err
		}

		data, err := encodeMembers(mergeMembers(existing, members))
		if err != nil {
			return err
		}
		return txn.Set(docKey, data)
	})

	return errors.Wrapf(err, "badger: adding members to %s/%s", bucket, key)
}

func (s *BadgerStore) RemoveMembers(bucket, key string, members []string) error {
	docKey := s.docKey(bucket, key)

	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(docKey)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		} else if err != nil {
			return err
		}

		data, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}

		existing, err := decodeMembers(data)
		if err != nil {
			return err
		}

		updated, err := encodeMembers(pullMembers(existing, members))
		if err != nil {
			return err
		}
		return txn.Set(docKey, updated)
	})

	return errors.Wrapf(err, "badger: removing members from %s/%s", bucket, key)
}

func (s *BadgerStore) DeleteKeys(bucket string, keys []string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		for _, key := range keys {
			if err := txn.Delete(s.docKey(bucket, key)); err != nil {
				return err
			}
		}
		return nil
	})

	return errors.Wrapf(err, "badger: deleting keys in %s", bucket)
}

func (s *BadgerStore) DeleteAll() error {
	var docKeys [][]byte

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(s.prefix); it.ValidForPrefix(s.prefix); it.Next() {
			docKeys = append(docKeys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "badger: scanning collection")
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		for _, k := range docKeys {
			if err = txn.Delete(k); err != nil {
				if errors.Is(err, badger.ErrTxnTooBig) {
					_ = txn.Commit()
					txn = s.db.NewTransaction(true)
					_ = txn.Delete(k)
					continue
				}
				return err
			}
		}
		return nil
	})

	return errors.Wrap(err, "badger: deleting all entries")
}
