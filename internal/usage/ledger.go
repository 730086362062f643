// Package usage implements an idempotent usage-event ledger: recording
// that a billable unit (one streamed segment, one synthesis call) has
// already been counted, so a retried enqueue or duplicate remote event
// never double-bills a tenant. Grounded on
// _examples/haivivi-giztoy/go/pkg/kv/badger.go's BadgerDB wrapper,
// repurposed from a general key/value store into a single-purpose
// write-once ledger.
package usage

import (
	"errors"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"
)

// Ledger records usage events exactly once. It is backed by an
// in-memory BadgerDB instance: usage counting only needs to survive
// the process, not a restart, per spec.md §9's "usage emission is
// fire-and-forget, not transactionally tied to delivery" note.
type Ledger struct {
	db *badger.DB
}

// New opens an in-memory usage ledger.
func New() (*Ledger, error) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("usage: open ledger: %w", err)
	}
	return &Ledger{db: db}, nil
}

// Record marks key as billed. It returns firstTime=true the first time
// key is recorded, and false on every subsequent call for the same
// key, letting callers skip emitting a duplicate billing event.
func (l *Ledger) Record(key string) (firstTime bool, err error) {
	err = l.db.Update(func(txn *badger.Txn) error {
		_, getErr := txn.Get([]byte(key))
		if getErr == nil {
			firstTime = false
			return nil
		}
		if !errors.Is(getErr, badger.ErrKeyNotFound) {
			return getErr
		}
		firstTime = true
		return txn.SetEntry(badger.NewEntry([]byte(key), []byte{1}).WithTTL(recordTTL))
	})
	if err != nil {
		return false, fmt.Errorf("usage: record %q: %w", key, err)
	}
	return firstTime, nil
}

// recordTTL bounds ledger growth: a key older than this can be
// billed again, trading perfect idempotency for a process that never
// needs manual compaction.
const recordTTL = 24 * time.Hour

// Close releases the underlying BadgerDB instance.
func (l *Ledger) Close() error {
	return l.db.Close()
}
