package lifecycle

import (
	"context"
	"encoding/json"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	qerrors "github.com/qshield/qshield-go/internal/errors"
)

// BadgerStore is a Store backed by a Badger key-value database. Envelopes are
// written with a native Badger TTL matching their own, so the database drops
// lapsed records even if no sweep runs; the manager's expiry checks remain
// authoritative for the window between lapse and compaction.
//
// Atomicity comes from Badger's serializable transactions: conflicting
// compare-and-* calls on one token abort with ErrConflict and are retried,
// so exactly one concurrent delete wins.
type BadgerStore struct {
	db *badger.DB
}

// BadgerOptions configures a BadgerStore.
type BadgerOptions struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path string

	// InMemory keeps the whole store in memory (tests, demo relay).
	InMemory bool

	// Logger receives Badger's internal logging. Nil silences it.
	Logger badger.Logger
}

// NewBadgerStore opens (or creates) a Badger-backed envelope store.
func NewBadgerStore(opts BadgerOptions) (*BadgerStore, error) {
	bopts := badger.DefaultOptions(opts.Path)
	if opts.InMemory {
		bopts = bopts.WithInMemory(true)
	}
	bopts = bopts.WithLogger(opts.Logger)

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, err
	}
	return &BadgerStore{db: db}, nil
}

// casRetries bounds transaction retries under contention.
const casRetries = 8

// Put creates the record for a new token.
func (s *BadgerStore) Put(ctx context.Context, env *SecureEnvelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	val, err := json.Marshal(env)
	if err != nil {
		return err
	}
	key := []byte(env.Token)

	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key); err == nil {
			return qerrors.ErrInvalidTransition
		} else if err != badger.ErrKeyNotFound {
			return err
		}
		entry := badger.NewEntry(key, val).WithTTL(time.Duration(env.TTLSeconds) * time.Second)
		return txn.SetEntry(entry)
	})
}

// Get returns the envelope for the token.
func (s *BadgerStore) Get(ctx context.Context, token string) (*SecureEnvelope, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var env SecureEnvelope
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(token))
		if err == badger.ErrKeyNotFound {
			return qerrors.ErrMessageNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &env)
		})
	})
	if err != nil {
		return nil, err
	}
	return &env, nil
}

// CompareAndSetState transitions the token's state in one transaction.
func (s *BadgerStore) CompareAndSetState(ctx context.Context, token string, from, to MessageState) error {
	return s.retryCAS(ctx, func(txn *badger.Txn) error {
		env, remaining, err := s.load(txn, token)
		if err != nil {
			return err
		}
		if env.State != from {
			return qerrors.ErrInvalidTransition
		}

		env.State = to
		val, err := json.Marshal(env)
		if err != nil {
			return err
		}
		return txn.SetEntry(badger.NewEntry([]byte(token), val).WithTTL(remaining))
	})
}

// CompareAndDelete removes the record only if it is in the expected state.
func (s *BadgerStore) CompareAndDelete(ctx context.Context, token string, from MessageState) error {
	return s.retryCAS(ctx, func(txn *badger.Txn) error {
		env, _, err := s.load(txn, token)
		if err != nil {
			return err
		}
		if env.State != from {
			return qerrors.ErrInvalidTransition
		}
		return txn.Delete([]byte(token))
	})
}

// Sweep removes records whose envelope TTL lapsed before now. Badger's own
// entry TTL usually gets there first; this pass covers the gap.
func (s *BadgerStore) Sweep(ctx context.Context, now time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var lapsed []string
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			var env SecureEnvelope
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &env)
			}); err != nil {
				continue // skip undecodable records, badger TTL will reap them
			}
			if env.Expired(now) {
				lapsed = append(lapsed, string(item.KeyCopy(nil)))
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	purged := 0
	for _, token := range lapsed {
		err := s.db.Update(func(txn *badger.Txn) error {
			return txn.Delete([]byte(token))
		})
		if err == nil {
			purged++
		}
	}
	return purged, nil
}

// Close closes the underlying database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// load reads and decodes an envelope inside a transaction, returning the
// remaining badger TTL to preserve on rewrite.
func (s *BadgerStore) load(txn *badger.Txn, token string) (*SecureEnvelope, time.Duration, error) {
	item, err := txn.Get([]byte(token))
	if err == badger.ErrKeyNotFound {
		return nil, 0, qerrors.ErrMessageNotFound
	}
	if err != nil {
		return nil, 0, err
	}

	var env SecureEnvelope
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &env)
	}); err != nil {
		return nil, 0, err
	}

	remaining := env.TTLRemaining(time.Now())
	if remaining <= 0 {
		remaining = time.Second // let the entry linger briefly for the expiry path
	}
	return &env, remaining, nil
}

// retryCAS runs fn in an update transaction, retrying on commit conflicts.
// A retry that finds the record gone reports ErrMessageNotFound, which is
// exactly what the losing side of a concurrent read must observe.
func (s *BadgerStore) retryCAS(ctx context.Context, fn func(txn *badger.Txn) error) error {
	var err error
	for i := 0; i < casRetries; i++ {
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		err = s.db.Update(fn)
		if err != badger.ErrConflict {
			return err
		}
	}
	return err
}
