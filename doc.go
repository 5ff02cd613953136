// Package qshield provides hybrid post-quantum encryption for
// self-destructing messages.
//
// QShield combines Kyber512 post-quantum key encapsulation with X25519
// classical ECDH; the two shared secrets feed a SHAKE-256 derivation that
// produces one 256-bit message key per message. Each message is sealed with
// an AEAD, stored under an opaque token, and destroyed on first read or
// when its TTL lapses, whichever comes first.
//
// # Quick Start
//
// For the end-to-end messaging facade:
//
//	import (
//		"github.com/qshield/qshield-go/pkg/lifecycle"
//		"github.com/qshield/qshield-go/pkg/messaging"
//	)
//
//	registry := messaging.NewKeyRegistry(nil)
//	registry.Enroll("bob", true)
//
//	mgr := lifecycle.NewManager(lifecycle.NewMemoryStore())
//	svc := messaging.NewService(registry, mgr)
//
//	token, _ := svc.SendSecureMessage(ctx, []byte("Hello Bob from Alice!"), "bob", 15)
//
//	kyberPriv, x25519, _ := registry.DecryptionKeys("bob")
//	msg, _ := svc.ReceiveOnce(ctx, token, kyberPriv, x25519.PrivateKey)
//
// For the low-level hybrid encryption engine:
//
//	import "github.com/qshield/qshield-go/pkg/hybrid"
//
//	fields, _ := hybrid.EncryptFor(plaintext, recipientKeys)
//	plaintext, _ := hybrid.Decrypt(fields, kyberPriv, x25519Priv)
//
// # Package Structure
//
// The library is organized into several packages:
//
//   - pkg/hybrid: Hybrid encryption engine (Kyber512 + X25519 -> AEAD)
//   - pkg/crypto: Low-level primitives (Kyber KEM, X25519, SHAKE-256 KDF, AEAD)
//   - pkg/lifecycle: Message state machine, TTL expiry, envelope stores
//   - pkg/messaging: Key directory, send policy, service facade
//   - pkg/observe: Structured logging, metrics, tracing
//   - internal/constants: Primitive sizes and protocol constants
//   - internal/errors: Error types shared across the library
//
// # Security Properties
//
// The hybrid construction provides:
//
//   - Post-quantum security: Kyber512 (NIST Category 1)
//   - Classical security: X25519 ECDH (128-bit security)
//   - Hybrid guarantee: the message key is secret if EITHER input secret is
//   - Forward secrecy: a fresh ephemeral X25519 pair per message
//   - Authenticated encryption: ChaCha20-Poly1305 or AES-256-GCM
//   - At-most-once delivery: a message is destroyed on first read
//   - Bounded lifetime: every message carries a TTL and lapses unread
//
// A message sealed for a recipient without a classical key on file derives
// its key from the KEM secret alone; the derivation mode is recorded in the
// envelope and bound into the AEAD, never inferred.
//
// # Testing
//
//	go test ./...                                  # All tests
//	go test -fuzz=FuzzDecrypt ./test/fuzz          # Fuzz tests
//	go test -bench=. ./test/benchmark              # Benchmarks
//
// # References
//
//   - CRYSTALS-Kyber: IND-CCA2-secure module-lattice KEM
//   - RFC 7748: Elliptic Curves for Security
//   - NIST FIPS 202: SHA-3 Standard (SHAKE-256)
//   - RFC 8439: ChaCha20 and Poly1305 for IETF Protocols
package qshield
