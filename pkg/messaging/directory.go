// Package messaging ties the crypto pipeline and the message lifecycle into
// a sender/recipient facade: recipient key lookup, send-time policy, and the
// send / fetch-and-decrypt / mark-read operations.
package messaging

import (
	"context"
	"sync"

	"github.com/qshield/qshield-go/internal/constants"
	qerrors "github.com/qshield/qshield-go/internal/errors"
	"github.com/qshield/qshield-go/pkg/crypto"
	"github.com/qshield/qshield-go/pkg/hybrid"
	"github.com/qshield/qshield-go/pkg/observe"
)

// Directory resolves a recipient's long-term public keys. The Kyber key is
// mandatory; a recipient without an X25519 key on file receives messages in
// KEM-only mode.
type Directory interface {
	// PublicKeys returns the recipient's keys, or ErrRecipientKeyUnavailable
	// when the recipient is unknown or has no Kyber key.
	PublicKeys(ctx context.Context, recipientID string) (hybrid.RecipientKeys, error)
}

// MemoryDirectory is an in-memory Directory for recipients who register
// externally generated public keys.
type MemoryDirectory struct {
	mu   sync.RWMutex
	keys map[string]hybrid.RecipientKeys
}

// NewMemoryDirectory creates an empty directory.
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		keys: make(map[string]hybrid.RecipientKeys),
	}
}

// Register stores a recipient's public keys, replacing any previous set.
// The Kyber key must be present and well-sized; X25519 is optional.
func (d *MemoryDirectory) Register(recipientID string, keys hybrid.RecipientKeys) error {
	if len(keys.KyberPublicKey) != constants.KyberPublicKeySize {
		return qerrors.ErrInvalidPublicKey
	}
	if keys.X25519PublicKey != nil && len(keys.X25519PublicKey) != constants.X25519PublicKeySize {
		return qerrors.ErrInvalidPublicKey
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.keys[recipientID] = hybrid.RecipientKeys{
		KyberPublicKey:  append([]byte(nil), keys.KyberPublicKey...),
		X25519PublicKey: append([]byte(nil), keys.X25519PublicKey...),
	}
	return nil
}

// Remove drops a recipient's keys.
func (d *MemoryDirectory) Remove(recipientID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.keys, recipientID)
}

// PublicKeys returns the registered keys for the recipient.
func (d *MemoryDirectory) PublicKeys(ctx context.Context, recipientID string) (hybrid.RecipientKeys, error) {
	if err := ctx.Err(); err != nil {
		return hybrid.RecipientKeys{}, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	keys, ok := d.keys[recipientID]
	if !ok {
		return hybrid.RecipientKeys{}, qerrors.ErrRecipientKeyUnavailable
	}
	return keys, nil
}

// KeyRegistry owns full key pairs on behalf of its recipients and serves
// their public halves as a Directory. It is the moving part behind tests,
// the demo CLI, and any deployment where the message service also holds the
// decryption keys.
type KeyRegistry struct {
	mu      sync.RWMutex
	entries map[string]*registryEntry
	metrics *observe.Collector
}

type registryEntry struct {
	kyber  *crypto.KyberKeyPair
	x25519 *crypto.X25519KeyPair // nil for KEM-only recipients
}

// NewKeyRegistry creates an empty registry reporting to the given collector.
// A nil collector falls back to the global one.
func NewKeyRegistry(metrics *observe.Collector) *KeyRegistry {
	if metrics == nil {
		metrics = observe.Global()
	}
	return &KeyRegistry{
		entries: make(map[string]*registryEntry),
		metrics: metrics,
	}
}

// Enroll generates a fresh hybrid key pair set for the recipient. With
// withECDH false the recipient gets only a Kyber pair and all messages to
// them derive in KEM-only mode.
func (r *KeyRegistry) Enroll(recipientID string, withECDH bool) error {
	kyber, err := crypto.GenerateKyberKeyPair()
	if err != nil {
		return err
	}

	entry := &registryEntry{kyber: kyber}
	if withECDH {
		x, err := crypto.GenerateX25519KeyPair()
		if err != nil {
			return err
		}
		entry.x25519 = x
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.entries[recipientID]; ok {
		old.kyber.Zeroize()
		if old.x25519 != nil {
			old.x25519.Zeroize()
		}
	}
	r.entries[recipientID] = entry
	return nil
}

// Rotate replaces the recipient's key pairs with fresh ones, keeping the
// ECDH capability as it was. Messages sealed against the old keys become
// undecryptable, which is the point.
func (r *KeyRegistry) Rotate(recipientID string) error {
	r.mu.RLock()
	entry, ok := r.entries[recipientID]
	r.mu.RUnlock()
	if !ok {
		return qerrors.ErrRecipientKeyUnavailable
	}

	if err := r.Enroll(recipientID, entry.x25519 != nil); err != nil {
		return err
	}
	r.metrics.RecordKeyRotation()
	return nil
}

// PublicKeys serves the recipient's public halves.
func (r *KeyRegistry) PublicKeys(ctx context.Context, recipientID string) (hybrid.RecipientKeys, error) {
	if err := ctx.Err(); err != nil {
		return hybrid.RecipientKeys{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[recipientID]
	if !ok {
		return hybrid.RecipientKeys{}, qerrors.ErrRecipientKeyUnavailable
	}

	keys := hybrid.RecipientKeys{
		KyberPublicKey: entry.kyber.PublicKeyBytes(),
	}
	if entry.x25519 != nil {
		keys.X25519PublicKey = entry.x25519.PublicKeyBytes()
	}
	return keys, nil
}

// DecryptionKeys returns the recipient's private keys for local decryption.
// The X25519 key is nil for KEM-only recipients.
func (r *KeyRegistry) DecryptionKeys(recipientID string) (*crypto.KyberPrivateKey, *crypto.X25519KeyPair, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[recipientID]
	if !ok {
		return nil, nil, qerrors.ErrRecipientKeyUnavailable
	}
	return entry.kyber.DecapsulationKey, entry.x25519, nil
}

// Close zeroizes every key pair the registry holds.
func (r *KeyRegistry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, entry := range r.entries {
		entry.kyber.Zeroize()
		if entry.x25519 != nil {
			entry.x25519.Zeroize()
		}
		delete(r.entries, id)
	}
}
