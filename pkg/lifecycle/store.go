package lifecycle

import (
	"context"
	"sync"
	"time"

	qerrors "github.com/qshield/qshield-go/internal/errors"
)

// Store is the envelope store contract the lifecycle manager drives. All
// mutations are atomic per token; the compare-and-* operations are the
// linearization points that make concurrent reads race-free.
//
// Implementations return ErrMessageNotFound for absent tokens and
// ErrInvalidTransition when a compare precondition fails.
type Store interface {
	// Put creates the record for a new token. Fails if the token exists.
	Put(ctx context.Context, env *SecureEnvelope) error

	// Get returns the envelope for the token without mutating it.
	Get(ctx context.Context, token string) (*SecureEnvelope, error)

	// CompareAndSetState transitions the token from one state to another,
	// failing if the current state is not the expected one.
	CompareAndSetState(ctx context.Context, token string, from, to MessageState) error

	// CompareAndDelete removes the record only if it is in the expected
	// state. Exactly one of any set of concurrent callers succeeds.
	CompareAndDelete(ctx context.Context, token string, from MessageState) error

	// Sweep purges records whose TTL lapsed before now, returning how many
	// were removed.
	Sweep(ctx context.Context, now time.Time) (int, error)

	// Close releases the store's resources.
	Close() error
}

// MemoryStore is an in-memory Store guarded by a single mutex. It is the
// reference implementation used by tests and the demo relay; the badger
// store provides the same contract on disk.
type MemoryStore struct {
	mu     sync.Mutex
	seen   map[string]*SecureEnvelope
	closed bool
}

// NewMemoryStore creates an empty in-memory envelope store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		seen: make(map[string]*SecureEnvelope),
	}
}

// Put creates the record for a new token.
func (s *MemoryStore) Put(ctx context.Context, env *SecureEnvelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return qerrors.ErrStoreClosed
	}
	if _, exists := s.seen[env.Token]; exists {
		return qerrors.ErrInvalidTransition
	}

	s.seen[env.Token] = env.clone()
	return nil
}

// Get returns a copy of the envelope for the token.
func (s *MemoryStore) Get(ctx context.Context, token string) (*SecureEnvelope, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, qerrors.ErrStoreClosed
	}
	env, ok := s.seen[token]
	if !ok {
		return nil, qerrors.ErrMessageNotFound
	}
	return env.clone(), nil
}

// CompareAndSetState transitions the token's state under the store lock.
func (s *MemoryStore) CompareAndSetState(ctx context.Context, token string, from, to MessageState) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return qerrors.ErrStoreClosed
	}
	env, ok := s.seen[token]
	if !ok {
		return qerrors.ErrMessageNotFound
	}
	if env.State != from {
		return qerrors.ErrInvalidTransition
	}

	env.State = to
	return nil
}

// CompareAndDelete removes the record if it is in the expected state.
func (s *MemoryStore) CompareAndDelete(ctx context.Context, token string, from MessageState) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return qerrors.ErrStoreClosed
	}
	env, ok := s.seen[token]
	if !ok {
		return qerrors.ErrMessageNotFound
	}
	if env.State != from {
		return qerrors.ErrInvalidTransition
	}

	s.wipe(env)
	delete(s.seen, token)
	return nil
}

// Sweep purges every record whose TTL lapsed before now.
func (s *MemoryStore) Sweep(ctx context.Context, now time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, qerrors.ErrStoreClosed
	}

	purged := 0
	for token, env := range s.seen {
		if env.Expired(now) {
			s.wipe(env)
			delete(s.seen, token)
			purged++
		}
	}
	return purged, nil
}

// Close drops all records.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for token, env := range s.seen {
		s.wipe(env)
		delete(s.seen, token)
	}
	s.closed = true
	return nil
}

// Len returns the number of live records.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}

// wipe overwrites the ciphertext before dropping the record. Best-effort
// memory hygiene for short-lived message data.
func (s *MemoryStore) wipe(env *SecureEnvelope) {
	for i := range env.Ciphertext {
		env.Ciphertext[i] = 0
	}
}
