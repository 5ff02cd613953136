// kyber.go implements the Kyber512 key encapsulation mechanism adapter.
//
// Kyber (CRYSTALS-Kyber) is a lattice-based KEM whose security rests on the
// Module Learning With Errors (MLWE) problem over the polynomial ring
// R_q = Z_q[X]/(X^n + 1) with n = 256, q = 3329 and module rank k = 2 for
// Kyber512 (NIST security level 1).
//
// The adapter exposes a single fixed contract (generate, encapsulate,
// decapsulate) with byte lengths validated against the Kyber512 parameter
// set before any primitive call, and normalizes the primitive's output into
// EncapsulationResult so callers never handle bare tuples. Mis-ordered tuple
// members silently produce protocol-breaking key material, so the
// normalization here is a correctness responsibility, not cosmetics.
package crypto

import (
	"github.com/cloudflare/circl/kem/kyber/kyber512"

	"github.com/qshield/qshield-go/internal/constants"
	qerrors "github.com/qshield/qshield-go/internal/errors"
)

// KyberPublicKey wraps a Kyber512 encapsulation key
type KyberPublicKey struct {
	key *kyber512.PublicKey
}

// KyberPrivateKey wraps a Kyber512 decapsulation key
type KyberPrivateKey struct {
	key *kyber512.PrivateKey
}

// KyberKeyPair represents a Kyber512 key pair for post-quantum key encapsulation.
type KyberKeyPair struct {
	// EncapsulationKey is the public key used by senders to encapsulate secrets
	EncapsulationKey *KyberPublicKey

	// DecapsulationKey is the private key used to decapsulate secrets
	DecapsulationKey *KyberPrivateKey
}

// EncapsulationResult is the normalized output of a KEM encapsulation:
// the ciphertext to transmit and the shared secret it encodes.
// It is transient and must be consumed immediately by key derivation;
// call Zeroize when done.
type EncapsulationResult struct {
	// KEMCiphertext is the Kyber ciphertext (768 bytes for Kyber512)
	KEMCiphertext []byte

	// SharedSecret is the 32-byte encapsulated secret
	SharedSecret []byte
}

// Zeroize erases the shared secret. The ciphertext is public material.
func (r *EncapsulationResult) Zeroize() {
	Zeroize(r.SharedSecret)
}

// GenerateKyberKeyPair generates a new Kyber512 key pair.
//
// Returns ErrKeyGenerationFailed (wrapped) if the system's CSPRNG fails.
func GenerateKyberKeyPair() (*KyberKeyPair, error) {
	pk, sk, err := kyber512.GenerateKeyPair(Reader)
	if err != nil {
		return nil, qerrors.NewCryptoError("KyberKeyPair.Generate", qerrors.ErrKeyGenerationFailed)
	}

	return &KyberKeyPair{
		EncapsulationKey: &KyberPublicKey{key: pk},
		DecapsulationKey: &KyberPrivateKey{key: sk},
	}, nil
}

// KyberEncapsulate performs key encapsulation against a recipient's public key.
//
// Each call draws fresh randomness, so encapsulating twice against the same
// public key yields distinct ciphertexts and (with overwhelming probability)
// distinct secrets. The scheme's secret recovery remains deterministic given
// the ciphertext and private key.
//
// Returns:
//   - EncapsulationResult holding the ciphertext and 32-byte shared secret
//   - error: Non-nil if the public key is invalid or the CSPRNG fails
func KyberEncapsulate(ek *KyberPublicKey) (*EncapsulationResult, error) {
	if ek == nil || ek.key == nil {
		return nil, qerrors.ErrInvalidPublicKey
	}

	ct := make([]byte, kyber512.CiphertextSize)
	ss := make([]byte, kyber512.SharedKeySize)

	seed := make([]byte, constants.KyberEncapsulationSeedSize)
	if err := SecureRandom(seed); err != nil {
		return nil, qerrors.NewCryptoError("KyberEncapsulate", err)
	}

	ek.key.EncapsulateTo(ct, ss, seed)

	return &EncapsulationResult{
		KEMCiphertext: ct,
		SharedSecret:  ss,
	}, nil
}

// KyberDecapsulate recovers the shared secret an honest encapsulation produced.
//
// The ciphertext length is validated before invoking the primitive. Kyber's
// implicit rejection means a tampered ciphertext still yields a pseudorandom
// secret rather than an error here; the mismatch surfaces later as an AEAD
// authentication failure. This layer adds no branches on secret-dependent data.
//
// Returns:
//   - sharedSecret: The 32-byte shared secret
//   - error: Non-nil if the ciphertext or key is malformed
func KyberDecapsulate(dk *KyberPrivateKey, ciphertext []byte) ([]byte, error) {
	if dk == nil || dk.key == nil {
		return nil, qerrors.ErrInvalidPrivateKey
	}

	if len(ciphertext) != constants.KyberCiphertextSize {
		return nil, qerrors.ErrInvalidCiphertext
	}

	ss := make([]byte, kyber512.SharedKeySize)
	dk.key.DecapsulateTo(ss, ciphertext)

	return ss, nil
}

// Bytes returns the encoded bytes of the public key.
func (pk *KyberPublicKey) Bytes() []byte {
	if pk == nil || pk.key == nil {
		return nil
	}
	buf, _ := pk.key.MarshalBinary() // never fails for a valid key
	return buf
}

// PublicKeyBytes returns the encoded bytes of the encapsulation key.
func (kp *KyberKeyPair) PublicKeyBytes() []byte {
	return kp.EncapsulationKey.Bytes()
}

// PrivateKeyBytes returns the encoded bytes of the decapsulation key.
// Warning: Handle with care - this exposes the secret key material.
func (kp *KyberKeyPair) PrivateKeyBytes() []byte {
	if kp.DecapsulationKey == nil || kp.DecapsulationKey.key == nil {
		return nil
	}
	buf, _ := kp.DecapsulationKey.key.MarshalBinary()
	return buf
}

// ParseKyberPublicKey parses a Kyber512 public key from its encoded form.
func ParseKyberPublicKey(data []byte) (*KyberPublicKey, error) {
	if len(data) != constants.KyberPublicKeySize {
		return nil, qerrors.ErrInvalidPublicKey
	}

	k, err := kyber512.Scheme().UnmarshalBinaryPublicKey(data)
	if err != nil {
		return nil, qerrors.NewCryptoError("ParseKyberPublicKey", qerrors.ErrInvalidPublicKey)
	}

	return &KyberPublicKey{key: k.(*kyber512.PublicKey)}, nil
}

// ParseKyberPrivateKey parses a Kyber512 private key from its encoded form.
func ParseKyberPrivateKey(data []byte) (*KyberPrivateKey, error) {
	if len(data) != constants.KyberPrivateKeySize {
		return nil, qerrors.ErrInvalidPrivateKey
	}

	k, err := kyber512.Scheme().UnmarshalBinaryPrivateKey(data)
	if err != nil {
		return nil, qerrors.NewCryptoError("ParseKyberPrivateKey", qerrors.ErrInvalidPrivateKey)
	}

	return &KyberPrivateKey{key: k.(*kyber512.PrivateKey)}, nil
}

// Zeroize drops the private key material.
// CIRCL does not expose in-place erasure, so we clear our references and let
// the collector reclaim the backing memory.
func (kp *KyberKeyPair) Zeroize() {
	kp.DecapsulationKey = nil
	kp.EncapsulationKey = nil
}
