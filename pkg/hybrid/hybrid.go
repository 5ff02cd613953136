// Package hybrid implements the per-message hybrid encryption protocol:
// Kyber512 key encapsulation combined with an ephemeral X25519 exchange,
// SHAKE-256 key derivation, and AEAD sealing.
//
// # Construction
//
// Encryption against a recipient holding (pk_kyber, pk_x25519?):
//
//	(sk_eph, pk_eph) ← X25519.KeyGen()                    (fresh per message)
//	(ct_kem, ss_kem) ← Kyber512.Encaps(pk_kyber)
//	ss_x             ← X25519.DH(sk_eph, pk_x25519)       (hybrid mode only)
//	K, mode          ← SHAKE-256 derive(ss_x?, ss_kem)
//	n                ← random 96-bit nonce
//	c                ← AEAD.Seal(K, n, plaintext, ad(mode))
//
// The wire material is (c, n, pk_eph, ct_kem). Decryption mirrors the path
// with the recipient's private keys. Fresh ephemeral keys and nonces make
// two encryptions of the same plaintext to the same recipient unlinkable,
// and compromise of one message's ephemeral key exposes no other message.
//
// # Derivation modes
//
// When the recipient published no X25519 key, derivation runs from the KEM
// secret alone under a distinct domain label (crypto.ModeKEMOnly). The mode
// is part of the AEAD associated data, so a sender/receiver mode mismatch
// fails authentication instead of yielding garbage plaintext. Which mode the
// encryptor used is knowledge the decryptor must carry out of band (it holds
// or does not hold an X25519 private key); a wrong assumption surfaces as
// ErrDecryptionFailed, indistinguishable from tampering.
package hybrid

import (
	"crypto/ecdh"

	"github.com/qshield/qshield-go/internal/constants"
	qerrors "github.com/qshield/qshield-go/internal/errors"
	"github.com/qshield/qshield-go/pkg/crypto"
)

// CryptoFields is the key-agreement and ciphertext material of one envelope:
// everything the decryptor needs besides its own private keys.
type CryptoFields struct {
	// Ciphertext is the AEAD-sealed plaintext (includes the auth tag)
	Ciphertext []byte

	// Nonce is the fresh 96-bit AEAD nonce for this message
	Nonce []byte

	// SenderEphemeralPublicKey is the sender's per-message X25519 public key
	SenderEphemeralPublicKey []byte

	// KEMCiphertext is the Kyber512 encapsulation ciphertext
	KEMCiphertext []byte

	// Mode records which key derivation the encryptor executed
	Mode crypto.DerivationMode
}

// RecipientKeys holds a recipient's long-term public keys as fetched from the
// key directory. X25519 is optional; Kyber is not.
type RecipientKeys struct {
	KyberPublicKey  []byte
	X25519PublicKey []byte // nil when the recipient has no ECDH key on file
}

// Encrypt seals plaintext for a recipient identified by its public keys.
//
// A fresh ephemeral X25519 key pair is generated on every call and never
// reused. If recipientX25519 is nil the message key is derived from the KEM
// secret alone (ModeKEMOnly) and the decryptor must not supply an X25519
// private key.
//
// Failure conditions:
//   - missing/invalid Kyber public key → ErrRecipientKeyUnavailable
//   - primitive failures → PhaseError naming the phase, no secret material
func Encrypt(plaintext []byte, recipientKyber *crypto.KyberPublicKey, recipientX25519 *ecdh.PublicKey) (*CryptoFields, error) {
	if recipientKyber == nil {
		return nil, qerrors.ErrRecipientKeyUnavailable
	}
	if len(plaintext) > constants.MaxPlaintextSize {
		return nil, qerrors.ErrPlaintextTooLarge
	}

	ephemeral, err := crypto.GenerateX25519KeyPair()
	if err != nil {
		return nil, qerrors.NewPhaseError("key agreement", err)
	}
	defer ephemeral.Zeroize()

	encapsulation, err := crypto.KyberEncapsulate(recipientKyber)
	if err != nil {
		return nil, qerrors.NewPhaseError("encapsulation", err)
	}
	defer encapsulation.Zeroize()

	var ecdhSecret []byte
	if recipientX25519 != nil {
		ecdhSecret, err = crypto.X25519(ephemeral.PrivateKey, recipientX25519)
		if err != nil {
			return nil, qerrors.NewPhaseError("key agreement", err)
		}
	}

	key, mode, err := crypto.DeriveMessageKey(ecdhSecret, encapsulation.SharedSecret)
	crypto.Zeroize(ecdhSecret)
	if err != nil {
		return nil, qerrors.NewPhaseError("derivation", err)
	}
	defer crypto.Zeroize(key)

	aead, err := crypto.NewAEAD(constants.CipherSuiteChaCha20Poly1305, key)
	if err != nil {
		return nil, qerrors.NewPhaseError("aead", qerrors.ErrEncryptionFailed)
	}

	nonce, err := crypto.NewNonce()
	if err != nil {
		return nil, qerrors.NewPhaseError("aead", err)
	}

	ciphertext, err := aead.Seal(nonce, plaintext, additionalData(mode))
	if err != nil {
		return nil, qerrors.NewPhaseError("aead", qerrors.ErrEncryptionFailed)
	}

	return &CryptoFields{
		Ciphertext:               ciphertext,
		Nonce:                    nonce,
		SenderEphemeralPublicKey: ephemeral.PublicKeyBytes(),
		KEMCiphertext:            encapsulation.KEMCiphertext,
		Mode:                     mode,
	}, nil
}

// EncryptFor is Encrypt taking raw key bytes as handed out by a key
// directory, validating and parsing them first.
func EncryptFor(plaintext []byte, keys RecipientKeys) (*CryptoFields, error) {
	if len(keys.KyberPublicKey) == 0 {
		return nil, qerrors.ErrRecipientKeyUnavailable
	}

	kyberPub, err := crypto.ParseKyberPublicKey(keys.KyberPublicKey)
	if err != nil {
		return nil, qerrors.ErrRecipientKeyUnavailable
	}

	var x25519Pub *ecdh.PublicKey
	if len(keys.X25519PublicKey) != 0 {
		x25519Pub, err = crypto.ParseX25519PublicKey(keys.X25519PublicKey)
		if err != nil {
			return nil, qerrors.ErrRecipientKeyUnavailable
		}
	}

	return Encrypt(plaintext, kyberPub, x25519Pub)
}

// Decrypt opens the envelope's ciphertext with the recipient's private keys.
//
// Supply recipientX25519 only if the encryptor ran in hybrid mode; supply nil
// only for KEM-only envelopes. Every authentication failure (tampered
// ciphertext, nonce or KEM ciphertext, wrong key, mode mismatch) returns the
// same ErrDecryptionFailed so the error is useless as an oracle.
func Decrypt(fields *CryptoFields, recipientKyber *crypto.KyberPrivateKey, recipientX25519 *ecdh.PrivateKey) ([]byte, error) {
	if fields == nil || len(fields.Ciphertext) == 0 || len(fields.KEMCiphertext) == 0 {
		return nil, qerrors.ErrInvalidCiphertext
	}
	if recipientKyber == nil {
		return nil, qerrors.ErrInvalidPrivateKey
	}

	kemSecret, err := crypto.KyberDecapsulate(recipientKyber, fields.KEMCiphertext)
	if err != nil {
		return nil, qerrors.NewPhaseError("decapsulation", qerrors.ErrDecapsulationFailed)
	}
	defer crypto.Zeroize(kemSecret)

	var ecdhSecret []byte
	if recipientX25519 != nil {
		ephemeralPub, err := crypto.ParseX25519PublicKey(fields.SenderEphemeralPublicKey)
		if err != nil {
			return nil, qerrors.ErrDecryptionFailed
		}
		ecdhSecret, err = crypto.X25519(recipientX25519, ephemeralPub)
		if err != nil {
			return nil, qerrors.ErrDecryptionFailed
		}
	}

	key, mode, err := crypto.DeriveMessageKey(ecdhSecret, kemSecret)
	crypto.Zeroize(ecdhSecret)
	if err != nil {
		return nil, qerrors.ErrDecryptionFailed
	}
	defer crypto.Zeroize(key)

	aead, err := crypto.NewAEAD(constants.CipherSuiteChaCha20Poly1305, key)
	if err != nil {
		return nil, qerrors.ErrDecryptionFailed
	}

	plaintext, err := aead.Open(fields.Nonce, fields.Ciphertext, additionalData(mode))
	if err != nil {
		return nil, qerrors.ErrDecryptionFailed
	}

	return plaintext, nil
}

// additionalData binds the protocol version and derivation mode into the
// AEAD tag. A decryptor authenticating under the wrong mode fails closed.
func additionalData(mode crypto.DerivationMode) []byte {
	return []byte(constants.ProtocolName + "/" + mode.String())
}
