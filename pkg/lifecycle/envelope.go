package lifecycle

import (
	"time"

	"github.com/google/uuid"

	"github.com/qshield/qshield-go/internal/constants"
	qerrors "github.com/qshield/qshield-go/internal/errors"
	"github.com/qshield/qshield-go/pkg/crypto"
	"github.com/qshield/qshield-go/pkg/hybrid"
)

// SecureEnvelope is the stored representation of one message: the ciphertext,
// the key-agreement material the decryptor needs, and the lifecycle metadata.
// Byte fields serialize as base64 at the JSON boundary; the token is the sole
// lookup key and is globally unique.
type SecureEnvelope struct {
	Token                    string                `json:"token"`
	RecipientID              string                `json:"recipient_id"`
	Ciphertext               []byte                `json:"ciphertext"`
	Nonce                    []byte                `json:"nonce"`
	SenderEphemeralPublicKey []byte                `json:"sender_ephemeral_public_key"`
	KEMCiphertext            []byte                `json:"kem_ciphertext"`
	Mode                     crypto.DerivationMode `json:"mode"`
	CreatedAt                time.Time             `json:"created_at"`
	TTLSeconds               int                   `json:"ttl_seconds"`
	State                    MessageState          `json:"state"`
}

// NewEnvelope builds an envelope around the crypto fields of one encrypted
// message, assigning a fresh random token. TTL defaulting and state are the
// manager's job at send time.
func NewEnvelope(recipientID string, fields *hybrid.CryptoFields) (*SecureEnvelope, error) {
	if fields == nil {
		return nil, qerrors.ErrInvalidCiphertext
	}

	token, err := uuid.NewRandom()
	if err != nil {
		return nil, qerrors.NewCryptoError("NewEnvelope", err)
	}

	return &SecureEnvelope{
		Token:                    token.String(),
		RecipientID:              recipientID,
		Ciphertext:               fields.Ciphertext,
		Nonce:                    fields.Nonce,
		SenderEphemeralPublicKey: fields.SenderEphemeralPublicKey,
		KEMCiphertext:            fields.KEMCiphertext,
		Mode:                     fields.Mode,
	}, nil
}

// CryptoFields extracts the key-agreement and ciphertext material for the
// decryption engine.
func (e *SecureEnvelope) CryptoFields() *hybrid.CryptoFields {
	return &hybrid.CryptoFields{
		Ciphertext:               e.Ciphertext,
		Nonce:                    e.Nonce,
		SenderEphemeralPublicKey: e.SenderEphemeralPublicKey,
		KEMCiphertext:            e.KEMCiphertext,
		Mode:                     e.Mode,
	}
}

// ExpiresAt returns the instant the envelope's TTL lapses.
func (e *SecureEnvelope) ExpiresAt() time.Time {
	return e.CreatedAt.Add(time.Duration(e.TTLSeconds) * time.Second)
}

// TTLRemaining returns how long the envelope remains fetchable at now,
// floored at zero.
func (e *SecureEnvelope) TTLRemaining(now time.Time) time.Duration {
	remaining := e.ExpiresAt().Sub(now)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Expired reports whether the TTL has lapsed at now.
func (e *SecureEnvelope) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt())
}

// clone returns a copy the caller may hand out without aliasing store memory.
// The ciphertext is deep-copied because deletion wipes the stored buffer;
// the remaining byte fields are public material and immutable after Put.
func (e *SecureEnvelope) clone() *SecureEnvelope {
	c := *e
	c.Ciphertext = append([]byte(nil), e.Ciphertext...)
	return &c
}

// validateTTL normalizes a requested TTL: zero selects the default, negative
// or oversized values are rejected.
func validateTTL(ttlSeconds int) (int, error) {
	if ttlSeconds == 0 {
		return constants.DefaultTTLSeconds, nil
	}
	if ttlSeconds < 0 || ttlSeconds > constants.MaxTTLSeconds {
		return 0, qerrors.ErrInvalidTTL
	}
	return ttlSeconds, nil
}
