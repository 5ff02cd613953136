package crypto_test

import (
	"bytes"
	"testing"

	"github.com/cloudflare/circl/kem/kyber/kyber512"

	"github.com/qshield/qshield-go/internal/constants"
	qerrors "github.com/qshield/qshield-go/internal/errors"
	"github.com/qshield/qshield-go/pkg/crypto"
)

func TestKyberKeyPairGeneration(t *testing.T) {
	kp, err := crypto.GenerateKyberKeyPair()
	if err != nil {
		t.Fatalf("GenerateKyberKeyPair failed: %v", err)
	}

	pkBytes := kp.PublicKeyBytes()
	if len(pkBytes) != constants.KyberPublicKeySize {
		t.Errorf("Public key size: got %d, want %d", len(pkBytes), constants.KyberPublicKeySize)
	}

	skBytes := kp.PrivateKeyBytes()
	if len(skBytes) != constants.KyberPrivateKeySize {
		t.Errorf("Private key size: got %d, want %d", len(skBytes), constants.KyberPrivateKeySize)
	}
}

func TestKyberEncapsulateDecapsulate(t *testing.T) {
	kp, err := crypto.GenerateKyberKeyPair()
	if err != nil {
		t.Fatalf("GenerateKyberKeyPair failed: %v", err)
	}

	result, err := crypto.KyberEncapsulate(kp.EncapsulationKey)
	if err != nil {
		t.Fatalf("KyberEncapsulate failed: %v", err)
	}

	if len(result.KEMCiphertext) != constants.KyberCiphertextSize {
		t.Errorf("Ciphertext size: got %d, want %d", len(result.KEMCiphertext), constants.KyberCiphertextSize)
	}
	if len(result.SharedSecret) != constants.KyberSharedSecretSize {
		t.Errorf("Shared secret size: got %d, want %d", len(result.SharedSecret), constants.KyberSharedSecretSize)
	}

	recovered, err := crypto.KyberDecapsulate(kp.DecapsulationKey, result.KEMCiphertext)
	if err != nil {
		t.Fatalf("KyberDecapsulate failed: %v", err)
	}

	if !bytes.Equal(result.SharedSecret, recovered) {
		t.Error("Decapsulated secret does not match encapsulated secret")
	}
}

func TestKyberEncapsulationFreshness(t *testing.T) {
	kp, err := crypto.GenerateKyberKeyPair()
	if err != nil {
		t.Fatalf("GenerateKyberKeyPair failed: %v", err)
	}

	r1, err := crypto.KyberEncapsulate(kp.EncapsulationKey)
	if err != nil {
		t.Fatalf("First KyberEncapsulate failed: %v", err)
	}
	r2, err := crypto.KyberEncapsulate(kp.EncapsulationKey)
	if err != nil {
		t.Fatalf("Second KyberEncapsulate failed: %v", err)
	}

	if bytes.Equal(r1.KEMCiphertext, r2.KEMCiphertext) {
		t.Error("Two encapsulations produced identical ciphertexts")
	}
	if bytes.Equal(r1.SharedSecret, r2.SharedSecret) {
		t.Error("Two encapsulations produced identical shared secrets")
	}
}

func TestKyberDecapsulateValidation(t *testing.T) {
	kp, err := crypto.GenerateKyberKeyPair()
	if err != nil {
		t.Fatalf("GenerateKyberKeyPair failed: %v", err)
	}

	tests := []struct {
		name string
		ct   []byte
	}{
		{"nil ciphertext", nil},
		{"empty ciphertext", []byte{}},
		{"short ciphertext", make([]byte, constants.KyberCiphertextSize-1)},
		{"long ciphertext", make([]byte, constants.KyberCiphertextSize+1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := crypto.KyberDecapsulate(kp.DecapsulationKey, tt.ct); !qerrors.Is(err, qerrors.ErrInvalidCiphertext) {
				t.Errorf("got %v, want ErrInvalidCiphertext", err)
			}
		})
	}

	if _, err := crypto.KyberDecapsulate(nil, make([]byte, constants.KyberCiphertextSize)); !qerrors.Is(err, qerrors.ErrInvalidPrivateKey) {
		t.Errorf("nil key: got %v, want ErrInvalidPrivateKey", err)
	}
}

func TestKyberPublicKeySerialization(t *testing.T) {
	kp, err := crypto.GenerateKyberKeyPair()
	if err != nil {
		t.Fatalf("GenerateKyberKeyPair failed: %v", err)
	}

	pkBytes := kp.PublicKeyBytes()
	parsed, err := crypto.ParseKyberPublicKey(pkBytes)
	if err != nil {
		t.Fatalf("ParseKyberPublicKey failed: %v", err)
	}

	if !bytes.Equal(pkBytes, parsed.Bytes()) {
		t.Error("Public key serialization roundtrip failed")
	}

	// Encapsulating against the parsed key must still decapsulate correctly
	result, err := crypto.KyberEncapsulate(parsed)
	if err != nil {
		t.Fatalf("KyberEncapsulate against parsed key failed: %v", err)
	}
	recovered, err := crypto.KyberDecapsulate(kp.DecapsulationKey, result.KEMCiphertext)
	if err != nil {
		t.Fatalf("KyberDecapsulate failed: %v", err)
	}
	if !bytes.Equal(result.SharedSecret, recovered) {
		t.Error("Shared secret mismatch after serialization roundtrip")
	}

	if _, err := crypto.ParseKyberPublicKey(pkBytes[:10]); !qerrors.Is(err, qerrors.ErrInvalidPublicKey) {
		t.Errorf("short key: got %v, want ErrInvalidPublicKey", err)
	}
}

func TestX25519SharedSecret(t *testing.T) {
	alice, err := crypto.GenerateX25519KeyPair()
	if err != nil {
		t.Fatalf("GenerateX25519KeyPair failed: %v", err)
	}
	bob, err := crypto.GenerateX25519KeyPair()
	if err != nil {
		t.Fatalf("GenerateX25519KeyPair failed: %v", err)
	}

	s1, err := crypto.X25519(alice.PrivateKey, bob.PublicKey)
	if err != nil {
		t.Fatalf("X25519 failed: %v", err)
	}
	s2, err := crypto.X25519(bob.PrivateKey, alice.PublicKey)
	if err != nil {
		t.Fatalf("X25519 failed: %v", err)
	}

	if !bytes.Equal(s1, s2) {
		t.Error("X25519 shared secrets do not agree")
	}
	if len(s1) != constants.X25519SharedSecretSize {
		t.Errorf("Shared secret size: got %d, want %d", len(s1), constants.X25519SharedSecretSize)
	}
}

func TestX25519PublicKeyParsing(t *testing.T) {
	kp, err := crypto.GenerateX25519KeyPair()
	if err != nil {
		t.Fatalf("GenerateX25519KeyPair failed: %v", err)
	}

	parsed, err := crypto.ParseX25519PublicKey(kp.PublicKeyBytes())
	if err != nil {
		t.Fatalf("ParseX25519PublicKey failed: %v", err)
	}
	if !bytes.Equal(parsed.Bytes(), kp.PublicKeyBytes()) {
		t.Error("X25519 public key roundtrip failed")
	}

	if _, err := crypto.ParseX25519PublicKey([]byte{1, 2, 3}); !qerrors.Is(err, qerrors.ErrInvalidPublicKey) {
		t.Errorf("short key: got %v, want ErrInvalidPublicKey", err)
	}
}

func TestDeriveMessageKeyHybrid(t *testing.T) {
	ecdh := make([]byte, constants.X25519SharedSecretSize)
	kem := make([]byte, constants.KyberSharedSecretSize)
	for i := range ecdh {
		ecdh[i] = byte(i)
	}
	for i := range kem {
		kem[i] = byte(0xFF - i)
	}

	key, mode, err := crypto.DeriveMessageKey(ecdh, kem)
	if err != nil {
		t.Fatalf("DeriveMessageKey failed: %v", err)
	}
	if mode != crypto.ModeHybrid {
		t.Errorf("mode: got %v, want ModeHybrid", mode)
	}
	if len(key) != constants.MessageKeySize {
		t.Errorf("key size: got %d, want %d", len(key), constants.MessageKeySize)
	}

	// Deterministic for identical inputs
	key2, _, err := crypto.DeriveMessageKey(ecdh, kem)
	if err != nil {
		t.Fatalf("DeriveMessageKey failed: %v", err)
	}
	if !bytes.Equal(key, key2) {
		t.Error("Derivation is not deterministic")
	}
}

func TestDeriveMessageKeyKEMOnly(t *testing.T) {
	kem := make([]byte, constants.KyberSharedSecretSize)
	for i := range kem {
		kem[i] = byte(i * 3)
	}

	key, mode, err := crypto.DeriveMessageKey(nil, kem)
	if err != nil {
		t.Fatalf("DeriveMessageKey failed: %v", err)
	}
	if mode != crypto.ModeKEMOnly {
		t.Errorf("mode: got %v, want ModeKEMOnly", mode)
	}

	// KEM-only and hybrid derivations from overlapping material must diverge
	ecdh := make([]byte, constants.X25519SharedSecretSize)
	hybridKey, _, err := crypto.DeriveMessageKey(ecdh, kem)
	if err != nil {
		t.Fatalf("DeriveMessageKey failed: %v", err)
	}
	if bytes.Equal(key, hybridKey) {
		t.Error("KEM-only key equals hybrid key; domain separation broken")
	}
}

func TestDeriveMessageKeyValidation(t *testing.T) {
	tests := []struct {
		name string
		ecdh []byte
		kem  []byte
	}{
		{"short kem secret", nil, make([]byte, 16)},
		{"nil kem secret", nil, nil},
		{"short ecdh secret", make([]byte, 16), make([]byte, constants.KyberSharedSecretSize)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := crypto.DeriveMessageKey(tt.ecdh, tt.kem); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestDeriveKeyDomainSeparation(t *testing.T) {
	input := [][]byte{[]byte("same input")}

	k1, err := crypto.DeriveKey("domain-a", input, 32)
	if err != nil {
		t.Fatalf("DeriveKey failed: %v", err)
	}
	k2, err := crypto.DeriveKey("domain-b", input, 32)
	if err != nil {
		t.Fatalf("DeriveKey failed: %v", err)
	}

	if bytes.Equal(k1, k2) {
		t.Error("Different domains produced the same key")
	}
}

func TestAEADSealOpen(t *testing.T) {
	suites := []struct {
		name  string
		suite constants.CipherSuite
	}{
		{"ChaCha20-Poly1305", constants.CipherSuiteChaCha20Poly1305},
		{"AES-256-GCM", constants.CipherSuiteAES256GCM},
	}

	for _, tc := range suites {
		t.Run(tc.name, func(t *testing.T) {
			key, err := crypto.SecureRandomBytes(constants.MessageKeySize)
			if err != nil {
				t.Fatalf("SecureRandomBytes failed: %v", err)
			}

			aead, err := crypto.NewAEAD(tc.suite, key)
			if err != nil {
				t.Fatalf("NewAEAD failed: %v", err)
			}

			nonce, err := crypto.NewNonce()
			if err != nil {
				t.Fatalf("NewNonce failed: %v", err)
			}

			plaintext := []byte("ephemeral message body")
			ad := []byte("envelope-header")

			ct, err := aead.Seal(nonce, plaintext, ad)
			if err != nil {
				t.Fatalf("Seal failed: %v", err)
			}

			pt, err := aead.Open(nonce, ct, ad)
			if err != nil {
				t.Fatalf("Open failed: %v", err)
			}
			if !bytes.Equal(pt, plaintext) {
				t.Error("Roundtrip plaintext mismatch")
			}
		})
	}
}

func TestAEADTamperDetection(t *testing.T) {
	key, _ := crypto.SecureRandomBytes(constants.MessageKeySize)
	aead, err := crypto.NewAEAD(constants.CipherSuiteChaCha20Poly1305, key)
	if err != nil {
		t.Fatalf("NewAEAD failed: %v", err)
	}

	nonce, _ := crypto.NewNonce()
	ct, err := aead.Seal(nonce, []byte("payload"), nil)
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}

	// Flip one bit in each ciphertext byte position and in the nonce
	for i := range ct {
		tampered := append([]byte(nil), ct...)
		tampered[i] ^= 0x01
		if _, err := aead.Open(nonce, tampered, nil); !qerrors.Is(err, qerrors.ErrAuthenticationFailed) {
			t.Fatalf("tampered ciphertext byte %d: got %v, want ErrAuthenticationFailed", i, err)
		}
	}

	badNonce := append([]byte(nil), nonce...)
	badNonce[0] ^= 0x01
	if _, err := aead.Open(badNonce, ct, nil); !qerrors.Is(err, qerrors.ErrAuthenticationFailed) {
		t.Errorf("tampered nonce: got %v, want ErrAuthenticationFailed", err)
	}

	if _, err := aead.Open(nonce, ct, []byte("wrong-ad")); !qerrors.Is(err, qerrors.ErrAuthenticationFailed) {
		t.Errorf("wrong additional data: got %v, want ErrAuthenticationFailed", err)
	}
}

func TestAEADValidation(t *testing.T) {
	key, _ := crypto.SecureRandomBytes(constants.MessageKeySize)

	if _, err := crypto.NewAEAD(constants.CipherSuiteChaCha20Poly1305, key[:16]); !qerrors.Is(err, qerrors.ErrInvalidKeySize) {
		t.Errorf("short key: got %v, want ErrInvalidKeySize", err)
	}
	if _, err := crypto.NewAEAD(constants.CipherSuite(0x7777), key); !qerrors.Is(err, qerrors.ErrUnsupportedCipherSuite) {
		t.Errorf("unknown suite: got %v, want ErrUnsupportedCipherSuite", err)
	}

	aead, err := crypto.NewAEAD(constants.CipherSuiteChaCha20Poly1305, key)
	if err != nil {
		t.Fatalf("NewAEAD failed: %v", err)
	}
	if _, err := aead.Open(make([]byte, 4), []byte("x"), nil); !qerrors.Is(err, qerrors.ErrInvalidNonce) {
		t.Errorf("short nonce: got %v, want ErrInvalidNonce", err)
	}
	nonce, _ := crypto.NewNonce()
	if _, err := aead.Open(nonce, []byte("x"), nil); !qerrors.Is(err, qerrors.ErrCiphertextTooShort) {
		t.Errorf("short ciphertext: got %v, want ErrCiphertextTooShort", err)
	}
}

func TestSecureRandomBytes(t *testing.T) {
	a, err := crypto.SecureRandomBytes(32)
	if err != nil {
		t.Fatalf("SecureRandomBytes failed: %v", err)
	}
	b, err := crypto.SecureRandomBytes(32)
	if err != nil {
		t.Fatalf("SecureRandomBytes failed: %v", err)
	}
	if bytes.Equal(a, b) {
		t.Error("Two random draws are identical")
	}
}

func TestZeroize(t *testing.T) {
	b := []byte{1, 2, 3, 4}
	crypto.Zeroize(b)
	for i, v := range b {
		if v != 0 {
			t.Errorf("byte %d not zeroed", i)
		}
	}
}

func TestConstantTimeCompare(t *testing.T) {
	if !crypto.ConstantTimeCompare([]byte("abc"), []byte("abc")) {
		t.Error("equal slices compared unequal")
	}
	if crypto.ConstantTimeCompare([]byte("abc"), []byte("abd")) {
		t.Error("unequal slices compared equal")
	}
	if crypto.ConstantTimeCompare([]byte("abc"), []byte("ab")) {
		t.Error("different lengths compared equal")
	}
}

func TestKyberParameterPinning(t *testing.T) {
	tests := []struct {
		name string
		got  int
		want int
	}{
		{"public key size", kyber512.PublicKeySize, constants.KyberPublicKeySize},
		{"private key size", kyber512.PrivateKeySize, constants.KyberPrivateKeySize},
		{"ciphertext size", kyber512.CiphertextSize, constants.KyberCiphertextSize},
		{"shared secret size", kyber512.SharedKeySize, constants.KyberSharedSecretSize},
		{"encapsulation seed size", kyber512.EncapsulationSeedSize, constants.KyberEncapsulationSeedSize},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("kyber512 %s = %d, pinned constant is %d", tt.name, tt.got, tt.want)
			}
		})
	}
}
