// aead.go implements Authenticated Encryption with Associated Data (AEAD)
// for message sealing.
//
// Two suites are supported:
//   - ChaCha20-Poly1305: the default; fast without hardware support
//   - AES-256-GCM: hardware-accelerated on modern CPUs
//
// Both use a 96-bit nonce and a 128-bit authentication tag. Unlike a
// session-oriented transport, every message here is sealed under a key that
// is used exactly once, so nonces are drawn fresh from the CSPRNG per message
// rather than counted. The nonce travels beside the ciphertext in the
// envelope and uniqueness per key is an invariant of the protocol.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/qshield/qshield-go/internal/constants"
	qerrors "github.com/qshield/qshield-go/internal/errors"
)

// AEAD represents an authenticated encryption cipher bound to one message key.
type AEAD struct {
	cipher cipher.AEAD
	suite  constants.CipherSuite
}

// NewAEAD creates a new AEAD cipher with the specified suite and 32-byte key.
func NewAEAD(suite constants.CipherSuite, key []byte) (*AEAD, error) {
	if len(key) != constants.MessageKeySize {
		return nil, qerrors.ErrInvalidKeySize
	}

	var aeadCipher cipher.AEAD
	var err error

	switch suite {
	case constants.CipherSuiteChaCha20Poly1305:
		aeadCipher, err = chacha20poly1305.New(key)
		if err != nil {
			return nil, qerrors.NewCryptoError("NewAEAD", err)
		}

	case constants.CipherSuiteAES256GCM:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, qerrors.NewCryptoError("NewAEAD", err)
		}
		aeadCipher, err = cipher.NewGCM(block)
		if err != nil {
			return nil, qerrors.NewCryptoError("NewAEAD", err)
		}

	default:
		return nil, qerrors.ErrUnsupportedCipherSuite
	}

	return &AEAD{
		cipher: aeadCipher,
		suite:  suite,
	}, nil
}

// NewNonce returns a fresh random 12-byte nonce.
// Returns an error only if the system's CSPRNG fails.
func NewNonce() ([]byte, error) {
	return SecureRandomBytes(constants.NonceSize)
}

// Seal encrypts and authenticates plaintext under an explicit nonce.
//
// The caller owns nonce uniqueness: draw it from NewNonce and never reuse it
// under the same key. The returned ciphertext is encrypted_data || auth_tag;
// the nonce is not included.
func (a *AEAD) Seal(nonce, plaintext, additionalData []byte) ([]byte, error) {
	if len(nonce) != constants.NonceSize {
		return nil, qerrors.ErrInvalidNonce
	}

	return a.cipher.Seal(nil, nonce, plaintext, additionalData), nil
}

// Open decrypts and verifies ciphertext under an explicit nonce.
//
// Any failure, whether tampered ciphertext, wrong key, wrong nonce or
// mismatched additional data, returns the same ErrAuthenticationFailed. The underlying
// cause is deliberately not distinguished.
func (a *AEAD) Open(nonce, ciphertext, additionalData []byte) ([]byte, error) {
	if len(nonce) != constants.NonceSize {
		return nil, qerrors.ErrInvalidNonce
	}

	if len(ciphertext) < constants.MinCiphertextSize {
		return nil, qerrors.ErrCiphertextTooShort
	}

	plaintext, err := a.cipher.Open(nil, nonce, ciphertext, additionalData)
	if err != nil {
		return nil, qerrors.ErrAuthenticationFailed
	}

	return plaintext, nil
}

// Suite returns the cipher suite identifier.
func (a *AEAD) Suite() constants.CipherSuite {
	return a.suite
}

// Overhead returns the number of bytes added to a plaintext by sealing.
func (a *AEAD) Overhead() int {
	return a.cipher.Overhead()
}

// NonceSize returns the required nonce size in bytes.
func (a *AEAD) NonceSize() int {
	return a.cipher.NonceSize()
}
