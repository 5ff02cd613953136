// Package constants defines security parameters and protocol constants for the
// QShield ephemeral messaging core.
//
// The hybrid construction combines Kyber512 (post-quantum KEM) with X25519
// (classical ECDH) and derives a single AEAD key per message. Parameters here
// are fixed for protocol version 1; changing any of them is a wire break.
package constants

// Protocol identification
const (
	// ProtocolVersion is the current version of the QShield envelope format
	ProtocolVersion uint16 = 0x0001

	// ProtocolName is used for domain separation in key derivation
	ProtocolName = "qshield-v1"
)

// Kyber512 Parameters (CRYSTALS-Kyber, NIST security level 1)
const (
	// KyberPublicKeySize is the size of a Kyber512 encapsulation key in bytes
	KyberPublicKeySize = 800

	// KyberPrivateKeySize is the size of a Kyber512 decapsulation key in bytes
	KyberPrivateKeySize = 1632

	// KyberCiphertextSize is the size of a Kyber512 ciphertext in bytes
	KyberCiphertextSize = 768

	// KyberSharedSecretSize is the size of the shared secret from Kyber in bytes
	KyberSharedSecretSize = 32

	// KyberEncapsulationSeedSize is the size of the encapsulation randomness
	KyberEncapsulationSeedSize = 32
)

// X25519 Parameters (RFC 7748)
const (
	// X25519PublicKeySize is the size of an X25519 public key in bytes
	X25519PublicKeySize = 32

	// X25519PrivateKeySize is the size of an X25519 private key in bytes
	X25519PrivateKeySize = 32

	// X25519SharedSecretSize is the size of the X25519 shared secret in bytes
	X25519SharedSecretSize = 32
)

// Symmetric Encryption Parameters
const (
	// MessageKeySize is the size of the derived per-message AEAD key in bytes
	MessageKeySize = 32

	// NonceSize is the AEAD nonce size in bytes (96 bits, fresh random per message)
	NonceSize = 12

	// TagSize is the AEAD authentication tag size in bytes
	TagSize = 16
)

// Key Derivation Parameters (SHAKE-256)
const (
	// DomainSeparatorHybrid labels derivation from both the ECDH and KEM secrets
	DomainSeparatorHybrid = "qshield-hybrid-v1"

	// DomainSeparatorKEMOnly labels the degraded derivation from the KEM secret alone,
	// used when the recipient has no X25519 key on file
	DomainSeparatorKEMOnly = "qshield-kem-only-v1"
)

// Message Lifecycle Parameters
const (
	// DefaultTTLSeconds is the time-to-live applied when the caller passes zero
	DefaultTTLSeconds = 90

	// MaxTTLSeconds bounds how long an envelope may outlive its send
	MaxTTLSeconds = 86400

	// SweepIntervalSeconds is how often the background sweeper purges lapsed envelopes
	SweepIntervalSeconds = 5
)

// Message Size Limits
const (
	// MaxPlaintextSize is the maximum plaintext accepted for a single message
	MaxPlaintextSize = 65536

	// MinCiphertextSize is the smallest well-formed AEAD ciphertext (empty plaintext + tag)
	MinCiphertextSize = TagSize
)

// CipherSuite identifiers for the AEAD layer
type CipherSuite uint16

const (
	// CipherSuiteChaCha20Poly1305 uses ChaCha20-Poly1305 for message sealing
	CipherSuiteChaCha20Poly1305 CipherSuite = 0x0001

	// CipherSuiteAES256GCM uses AES-256-GCM for message sealing
	CipherSuiteAES256GCM CipherSuite = 0x0002
)

// String returns a human-readable name for the cipher suite
func (cs CipherSuite) String() string {
	switch cs {
	case CipherSuiteChaCha20Poly1305:
		return "ChaCha20-Poly1305"
	case CipherSuiteAES256GCM:
		return "AES-256-GCM"
	default:
		return "Unknown"
	}
}

// IsSupported returns true if the cipher suite is supported
func (cs CipherSuite) IsSupported() bool {
	return cs == CipherSuiteChaCha20Poly1305 || cs == CipherSuiteAES256GCM
}
