// Package errors defines the error taxonomy for the QShield messaging core.
// Errors carry enough context to tell which phase of an operation failed
// (key lookup, encapsulation, derivation, AEAD, store) without ever placing
// key material or plaintext in an error message.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for key agreement operations
var (
	// ErrKeyGenerationFailed indicates the underlying primitive could not produce a keypair
	ErrKeyGenerationFailed = errors.New("kem: key generation failed")

	// ErrInvalidKeySize indicates that a key has an incorrect size
	ErrInvalidKeySize = errors.New("kem: invalid key size")

	// ErrInvalidPublicKey indicates that a public key is malformed or missing
	ErrInvalidPublicKey = errors.New("kem: invalid public key")

	// ErrInvalidPrivateKey indicates that a private key is malformed or missing
	ErrInvalidPrivateKey = errors.New("kem: invalid private key")

	// ErrInvalidCiphertext indicates a KEM ciphertext of the wrong shape
	ErrInvalidCiphertext = errors.New("kem: invalid ciphertext")

	// ErrDecapsulationFailed indicates that KEM decapsulation failed
	ErrDecapsulationFailed = errors.New("kem: decapsulation failed")
)

// Sentinel errors for the hybrid encrypt/decrypt engines
var (
	// ErrRecipientKeyUnavailable indicates the recipient has no KEM public key on file
	ErrRecipientKeyUnavailable = errors.New("hybrid: recipient key unavailable")

	// ErrEncryptionFailed indicates AEAD sealing failed
	ErrEncryptionFailed = errors.New("hybrid: encryption failed")

	// ErrDecryptionFailed indicates AEAD opening failed. The cause is deliberately
	// undifferentiated (tamper, wrong key, derivation mode mismatch) to avoid
	// giving an attacker a decryption oracle.
	ErrDecryptionFailed = errors.New("hybrid: decryption failed")

	// ErrPlaintextTooLarge indicates the plaintext exceeds the per-message limit
	ErrPlaintextTooLarge = errors.New("hybrid: plaintext too large")
)

// Sentinel errors for AEAD operations
var (
	// ErrAuthenticationFailed indicates AEAD tag verification failed
	ErrAuthenticationFailed = errors.New("aead: authentication failed")

	// ErrInvalidNonce indicates the nonce size is incorrect
	ErrInvalidNonce = errors.New("aead: invalid nonce size")

	// ErrCiphertextTooShort indicates ciphertext is too short to be valid
	ErrCiphertextTooShort = errors.New("aead: ciphertext too short")

	// ErrUnsupportedCipherSuite indicates an unknown cipher suite identifier
	ErrUnsupportedCipherSuite = errors.New("aead: unsupported cipher suite")
)

// Sentinel errors for the message lifecycle
var (
	// ErrMessageNotFound indicates the token resolves to nothing: never stored,
	// already read, or already purged. Indistinguishable by design.
	ErrMessageNotFound = errors.New("lifecycle: message not found")

	// ErrMessageExpired indicates the envelope's TTL lapsed before it was read
	ErrMessageExpired = errors.New("lifecycle: message expired")

	// ErrMessageNotReadable indicates the envelope exists but is not in a
	// fetchable state (pending approval or awaiting reauthentication)
	ErrMessageNotReadable = errors.New("lifecycle: message not readable")

	// ErrInvalidTransition indicates a state transition the lifecycle forbids
	ErrInvalidTransition = errors.New("lifecycle: invalid state transition")

	// ErrInvalidTTL indicates a TTL outside the accepted range
	ErrInvalidTTL = errors.New("lifecycle: invalid ttl")

	// ErrStoreClosed indicates the envelope store has been shut down
	ErrStoreClosed = errors.New("lifecycle: store closed")
)

// Sentinel errors for send policy
var (
	// ErrPolicyBlocked indicates the send policy refused the message outright
	ErrPolicyBlocked = errors.New("policy: message blocked")
)

// CryptoError wraps a cryptographic error with the operation that failed
type CryptoError struct {
	Op  string // Operation that failed
	Err error  // Underlying error
}

func (e *CryptoError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *CryptoError) Unwrap() error {
	return e.Err
}

// NewCryptoError creates a new CryptoError
func NewCryptoError(op string, err error) *CryptoError {
	return &CryptoError{Op: op, Err: err}
}

// PhaseError wraps an error with the protocol phase that failed. Phases are
// coarse by design: "key lookup", "encapsulation", "derivation", "aead",
// "store". User-visible failure reports name the phase, nothing finer.
type PhaseError struct {
	Phase string
	Err   error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("phase %s: %v", e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() error {
	return e.Err
}

// NewPhaseError creates a new PhaseError
func NewPhaseError(phase string, err error) *PhaseError {
	return &PhaseError{Phase: phase, Err: err}
}

// Is reports whether any error in err's chain matches target.
// This is a convenience wrapper around errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
// This is a convenience wrapper around errors.As.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
