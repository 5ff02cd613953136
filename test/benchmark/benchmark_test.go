// Package benchmark provides performance benchmarks for the qshield crypto
// pipeline and message lifecycle.
//
// Run benchmarks with:
//
//	go test -bench=. -benchmem ./test/benchmark/
//
// For profiling:
//
//	go test -bench=. -cpuprofile=cpu.prof -memprofile=mem.prof ./test/benchmark/
package benchmark

import (
	"context"
	"testing"

	"github.com/qshield/qshield-go/internal/constants"
	"github.com/qshield/qshield-go/pkg/crypto"
	"github.com/qshield/qshield-go/pkg/hybrid"
	"github.com/qshield/qshield-go/pkg/lifecycle"
	"github.com/qshield/qshield-go/pkg/messaging"
	"github.com/qshield/qshield-go/pkg/observe"
)

// --- Cryptographic Primitive Benchmarks ---

func BenchmarkSecureRandom32(b *testing.B) {
	buf := make([]byte, 32)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		crypto.SecureRandom(buf)
	}
}

func BenchmarkKyberKeyGeneration(b *testing.B) {
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := crypto.GenerateKyberKeyPair(); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkKyberEncapsulate(b *testing.B) {
	kp, err := crypto.GenerateKyberKeyPair()
	if err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := crypto.KyberEncapsulate(kp.EncapsulationKey); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkKyberDecapsulate(b *testing.B) {
	kp, err := crypto.GenerateKyberKeyPair()
	if err != nil {
		b.Fatal(err)
	}
	res, err := crypto.KyberEncapsulate(kp.EncapsulationKey)
	if err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := crypto.KyberDecapsulate(kp.DecapsulationKey, res.KEMCiphertext); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkX25519KeyGeneration(b *testing.B) {
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := crypto.GenerateX25519KeyPair(); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkDeriveMessageKey(b *testing.B) {
	ecdhSecret := make([]byte, constants.X25519SharedSecretSize)
	kemSecret := make([]byte, constants.KyberSharedSecretSize)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, _, err := crypto.DeriveMessageKey(ecdhSecret, kemSecret); err != nil {
			b.Fatal(err)
		}
	}
}

// --- AEAD Benchmarks ---

func benchmarkSeal(b *testing.B, suite constants.CipherSuite, size int) {
	key := make([]byte, constants.MessageKeySize)
	aead, err := crypto.NewAEAD(suite, key)
	if err != nil {
		b.Fatal(err)
	}
	nonce := make([]byte, constants.NonceSize)
	plaintext := make([]byte, size)

	b.SetBytes(int64(size))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := aead.Seal(nonce, plaintext, nil); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkChaCha20Seal1K(b *testing.B) {
	benchmarkSeal(b, constants.CipherSuiteChaCha20Poly1305, 1024)
}

func BenchmarkChaCha20Seal64K(b *testing.B) {
	benchmarkSeal(b, constants.CipherSuiteChaCha20Poly1305, 64*1024)
}

func BenchmarkAESGCMSeal1K(b *testing.B) {
	benchmarkSeal(b, constants.CipherSuiteAES256GCM, 1024)
}

func BenchmarkAESGCMSeal64K(b *testing.B) {
	benchmarkSeal(b, constants.CipherSuiteAES256GCM, 64*1024)
}

// --- Hybrid Pipeline Benchmarks ---

func BenchmarkHybridEncrypt1K(b *testing.B) {
	kp, err := crypto.GenerateKyberKeyPair()
	if err != nil {
		b.Fatal(err)
	}
	xkp, err := crypto.GenerateX25519KeyPair()
	if err != nil {
		b.Fatal(err)
	}
	plaintext := make([]byte, 1024)

	b.SetBytes(1024)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := hybrid.Encrypt(plaintext, kp.EncapsulationKey, xkp.PublicKey); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkHybridDecrypt1K(b *testing.B) {
	kp, err := crypto.GenerateKyberKeyPair()
	if err != nil {
		b.Fatal(err)
	}
	xkp, err := crypto.GenerateX25519KeyPair()
	if err != nil {
		b.Fatal(err)
	}
	fields, err := hybrid.Encrypt(make([]byte, 1024), kp.EncapsulationKey, xkp.PublicKey)
	if err != nil {
		b.Fatal(err)
	}

	b.SetBytes(1024)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := hybrid.Decrypt(fields, kp.DecapsulationKey, xkp.PrivateKey); err != nil {
			b.Fatal(err)
		}
	}
}

// --- Lifecycle Benchmarks ---

func BenchmarkStorePutGet(b *testing.B) {
	store := lifecycle.NewMemoryStore()
	defer store.Close()
	ctx := context.Background()

	fields := &hybrid.CryptoFields{
		Ciphertext:               make([]byte, 1024),
		Nonce:                    make([]byte, constants.NonceSize),
		SenderEphemeralPublicKey: make([]byte, constants.X25519PublicKeySize),
		KEMCiphertext:            make([]byte, constants.KyberCiphertextSize),
		Mode:                     crypto.ModeHybrid,
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		env, err := lifecycle.NewEnvelope("bob", fields)
		if err != nil {
			b.Fatal(err)
		}
		env.TTLSeconds = 90
		env.State = lifecycle.StateStored
		if err := store.Put(ctx, env); err != nil {
			b.Fatal(err)
		}
		if _, err := store.Get(ctx, env.Token); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkSendReceive measures the full facade round trip: policy, hybrid
// encryption, store, fetch, decrypt, destroy.
func BenchmarkSendReceive(b *testing.B) {
	registry := messaging.NewKeyRegistry(observe.NewCollector(nil))
	defer registry.Close()
	if err := registry.Enroll("bob", true); err != nil {
		b.Fatal(err)
	}

	mgr := lifecycle.NewManager(lifecycle.NewMemoryStore(),
		lifecycle.WithLogger(observe.NullLogger()),
		lifecycle.WithMetrics(observe.NewCollector(nil)),
	)
	defer mgr.Close()
	svc := messaging.NewService(registry, mgr,
		messaging.WithServiceLogger(observe.NullLogger()),
		messaging.WithServiceMetrics(observe.NewCollector(nil)),
	)

	kyberPriv, xkp, err := registry.DecryptionKeys("bob")
	if err != nil {
		b.Fatal(err)
	}
	plaintext := make([]byte, 1024)
	ctx := context.Background()

	b.SetBytes(1024)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		token, err := svc.SendSecureMessage(ctx, plaintext, "bob", 90)
		if err != nil {
			b.Fatal(err)
		}
		if _, err := svc.ReceiveOnce(ctx, token, kyberPriv, xkp.PrivateKey); err != nil {
			b.Fatal(err)
		}
	}
}
