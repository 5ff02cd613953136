// Package fuzz provides fuzz tests for security-critical parsing and
// decryption paths.
//
// Run fuzz tests with:
//
//	go test -fuzz=FuzzParseKyberPublicKey -fuzztime=30s ./test/fuzz/
//	go test -fuzz=FuzzParseX25519PublicKey -fuzztime=30s ./test/fuzz/
//	go test -fuzz=FuzzAEADOpen -fuzztime=30s ./test/fuzz/
//	go test -fuzz=FuzzDecrypt -fuzztime=30s ./test/fuzz/
//	go test -fuzz=FuzzEnvelopeJSON -fuzztime=30s ./test/fuzz/
package fuzz

import (
	"encoding/json"
	"testing"

	"github.com/qshield/qshield-go/internal/constants"
	"github.com/qshield/qshield-go/pkg/crypto"
	"github.com/qshield/qshield-go/pkg/hybrid"
	"github.com/qshield/qshield-go/pkg/lifecycle"
)

// FuzzParseKyberPublicKey fuzzes the Kyber public key parser. Recipient keys
// arrive from an untrusted directory, so the parser must never panic.
func FuzzParseKyberPublicKey(f *testing.F) {
	kp, _ := crypto.GenerateKyberKeyPair()
	f.Add(kp.PublicKeyBytes())

	f.Add([]byte{})
	f.Add(make([]byte, constants.KyberPublicKeySize-1))
	f.Add(make([]byte, constants.KyberPublicKeySize+1))
	f.Add(make([]byte, constants.KyberPublicKeySize))

	f.Fuzz(func(t *testing.T, data []byte) {
		pk, err := crypto.ParseKyberPublicKey(data)
		if err != nil {
			return
		}

		// If parsing succeeded, re-serialization should match.
		if pk != nil {
			reserialized := pk.Bytes()
			if len(reserialized) != constants.KyberPublicKeySize {
				t.Errorf("reserialized public key has wrong size: %d", len(reserialized))
			}
		}
	})
}

// FuzzParseX25519PublicKey fuzzes the X25519 public key parser.
func FuzzParseX25519PublicKey(f *testing.F) {
	kp, _ := crypto.GenerateX25519KeyPair()
	f.Add(kp.PublicKeyBytes())

	f.Add([]byte{})
	f.Add(make([]byte, constants.X25519PublicKeySize-1))
	f.Add(make([]byte, constants.X25519PublicKeySize))

	f.Fuzz(func(t *testing.T, data []byte) {
		pk, err := crypto.ParseX25519PublicKey(data)
		if err != nil {
			return
		}
		if pk != nil && len(pk.Bytes()) != constants.X25519PublicKeySize {
			t.Errorf("parsed key has wrong size: %d", len(pk.Bytes()))
		}
	})
}

// FuzzKyberDecapsulate fuzzes decapsulation with arbitrary ciphertexts.
// Well-sized garbage must decapsulate to an implicit-rejection secret, not
// panic or error.
func FuzzKyberDecapsulate(f *testing.F) {
	kp, _ := crypto.GenerateKyberKeyPair()
	res, _ := crypto.KyberEncapsulate(kp.EncapsulationKey)
	f.Add(res.KEMCiphertext)
	f.Add(make([]byte, constants.KyberCiphertextSize))
	f.Add([]byte{})

	f.Fuzz(func(t *testing.T, data []byte) {
		secret, err := crypto.KyberDecapsulate(kp.DecapsulationKey, data)
		if err != nil {
			return
		}
		if len(secret) != constants.KyberSharedSecretSize {
			t.Errorf("shared secret has wrong size: %d", len(secret))
		}
	})
}

// FuzzAEADOpen fuzzes AEAD opening with tampered ciphertexts.
func FuzzAEADOpen(f *testing.F) {
	key := make([]byte, constants.MessageKeySize)
	aead, _ := crypto.NewAEAD(constants.CipherSuiteChaCha20Poly1305, key)
	nonce := make([]byte, constants.NonceSize)
	valid, _ := aead.Seal(nonce, []byte("fuzz seed plaintext"), nil)

	f.Add(nonce, valid)
	f.Add(nonce, []byte{})
	f.Add([]byte{}, valid)

	f.Fuzz(func(t *testing.T, n, ct []byte) {
		plaintext, err := aead.Open(n, ct, nil)
		if err != nil {
			return
		}
		// The only input that may open is the untampered seed.
		if string(plaintext) != "fuzz seed plaintext" {
			t.Errorf("forged ciphertext opened: %q", plaintext)
		}
	})
}

// FuzzDecrypt fuzzes the full hybrid decryption path with mutated envelope
// fields. No input may panic; only the genuine fields may decrypt.
func FuzzDecrypt(f *testing.F) {
	kp, _ := crypto.GenerateKyberKeyPair()
	xkp, _ := crypto.GenerateX25519KeyPair()
	fields, _ := hybrid.Encrypt([]byte("fuzz seed plaintext"), kp.EncapsulationKey, xkp.PublicKey)

	f.Add(fields.Ciphertext, fields.Nonce, fields.SenderEphemeralPublicKey, fields.KEMCiphertext, uint8(fields.Mode))
	f.Add([]byte{}, []byte{}, []byte{}, []byte{}, uint8(0))

	f.Fuzz(func(t *testing.T, ct, nonce, eph, kemCT []byte, mode uint8) {
		mutated := &hybrid.CryptoFields{
			Ciphertext:               ct,
			Nonce:                    nonce,
			SenderEphemeralPublicKey: eph,
			KEMCiphertext:            kemCT,
			Mode:                     crypto.DerivationMode(mode),
		}
		plaintext, err := hybrid.Decrypt(mutated, kp.DecapsulationKey, xkp.PrivateKey)
		if err != nil {
			return
		}
		if string(plaintext) != "fuzz seed plaintext" {
			t.Errorf("mutated envelope decrypted: %q", plaintext)
		}
	})
}

// FuzzEnvelopeJSON fuzzes envelope deserialization as it happens when the
// badger store decodes a stored value.
func FuzzEnvelopeJSON(f *testing.F) {
	f.Add([]byte(`{"token":"t","state":"stored","ttl_seconds":90}`))
	f.Add([]byte(`{"state":"bogus"}`))
	f.Add([]byte(`{}`))
	f.Add([]byte(`null`))

	f.Fuzz(func(t *testing.T, data []byte) {
		var env lifecycle.SecureEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			return
		}
		// Whatever decoded must re-encode.
		if _, err := json.Marshal(&env); err != nil {
			t.Errorf("decoded envelope does not re-encode: %v", err)
		}
	})
}
