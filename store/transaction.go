package store

import (
	"fmt"

	"bucketset/db"

	"github.com/google/uuid"
	"github.com/gookit/slog"
	"github.com/pkg/errors"
)

// Transaction is an ordered batch of deferred mutations. It is created
// empty by Begin, grows only through Add, Remove and Del, and is
// consumed exactly once by End. Reads never go through a Transaction.
//
// A Transaction is not safe for concurrent use; it belongs to one
// logical flow of control.
type Transaction struct {
	id    uuid.UUID
	ops   []operation
	ended bool
}

// operation is one deferred mutation together with its parameters.
// Representing the batch as tagged records instead of closures keeps
// the queue inspectable for logging and error context.
type operation interface {
	apply(docs db.Store) error
	describe() string
}

type addOp struct {
	bucket, key string
	values      []string
}

func (o addOp) apply(docs db.Store) error { return docs.AddMembers(o.bucket, o.key, o.values) }
func (o addOp) describe() string          { return fmt.Sprintf("add %s/%s", o.bucket, o.key) }

type removeOp struct {
	bucket, key string
	values      []string
}

func (o removeOp) apply(docs db.Store) error { return docs.RemoveMembers(o.bucket, o.key, o.values) }
func (o removeOp) describe() string          { return fmt.Sprintf("remove %s/%s", o.bucket, o.key) }

type delOp struct {
	bucket string
	keys   []string
}

func (o delOp) apply(docs db.Store) error { return docs.DeleteKeys(o.bucket, o.keys) }
func (o delOp) describe() string          { return fmt.Sprintf("del %s/%v", o.bucket, o.keys) }

// Begin opens an empty transaction.
func (s *SetStore) Begin() *Transaction {
	return &Transaction{id: uuid.New()}
}

// Add defers inserting values into the set at (bucket, key), creating
// the entry if needed. Inserting an already-present value has no effect.
func (s *SetStore) Add(txn *Transaction, bucket, key string, values ...string) error {
	if err := txn.open(); err != nil {
		return err
	}
	if key == reservedKey {
		return validationErrorf("key name %q is reserved", reservedKey)
	}
	if len(values) == 0 {
		return validationErrorf("add requires at least one value")
	}

	txn.append(addOp{bucket: bucket, key: key, values: copyValues(values)})
	return nil
}

// Remove defers removing values from the set at (bucket, key). Values
// not in the set, or a missing entry, are tolerated as no-ops.
func (s *SetStore) Remove(txn *Transaction, bucket, key string, values ...string) error {
	if err := txn.open(); err != nil {
		return err
	}
	if len(values) == 0 {
		return validationErrorf("remove requires at least one value")
	}

	txn.append(removeOp{bucket: bucket, key: key, values: copyValues(values)})
	return nil
}

// Del defers deleting every listed key from bucket. Missing keys are
// tolerated.
func (s *SetStore) Del(txn *Transaction, bucket string, keys ...string) error {
	if err := txn.open(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return validationErrorf("del requires at least one key")
	}

	txn.append(delOp{bucket: bucket, keys: copyValues(keys)})
	return nil
}

// End executes the transaction's operations strictly in append order,
// each one completing before the next starts, and reports one outcome.
// Execution stops at the first failing operation and its error becomes
// the transaction's error; operations already applied stay committed.
// There is no rollback and no retry at this layer.
func (s *SetStore) End(txn *Transaction) error {
	if txn.ended {
		return validationErrorf("transaction %s already ended", txn.id)
	}
	txn.ended = true

	for i, op := range txn.ops {
		if err := op.apply(s.docs); err != nil {
			slog.Errorf("transaction %s failed at operation %d (%s): %v", txn.id, i, op.describe(), err)
			return errors.Wrapf(err, "transaction %s: operation %d (%s)", txn.id, i, op.describe())
		}
	}

	slog.Debugf("transaction %s committed %d operations", txn.id, len(txn.ops))
	return nil
}

func (t *Transaction) open() error {
	if t.ended {
		return validationErrorf("transaction %s already ended", t.id)
	}
	return nil
}

func (t *Transaction) append(op operation) {
	t.ops = append(t.ops, op)
}

// copyValues detaches the queued parameters from the caller's slice.
func copyValues(values []string) []string {
	return append([]string(nil), values...)
}
