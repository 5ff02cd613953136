package messaging_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	qerrors "github.com/qshield/qshield-go/internal/errors"
	"github.com/qshield/qshield-go/pkg/crypto"
	"github.com/qshield/qshield-go/pkg/hybrid"
	"github.com/qshield/qshield-go/pkg/lifecycle"
	"github.com/qshield/qshield-go/pkg/messaging"
	"github.com/qshield/qshield-go/pkg/observe"
)

func newTestService(t *testing.T, opts ...messaging.ServiceOption) (*messaging.Service, *messaging.KeyRegistry) {
	t.Helper()

	registry := messaging.NewKeyRegistry(observe.NewCollector(nil))
	t.Cleanup(registry.Close)

	mgr := lifecycle.NewManager(lifecycle.NewMemoryStore(),
		lifecycle.WithLogger(observe.NullLogger()),
		lifecycle.WithMetrics(observe.NewCollector(nil)),
	)
	t.Cleanup(func() { mgr.Close() })

	base := []messaging.ServiceOption{
		messaging.WithServiceLogger(observe.NullLogger()),
		messaging.WithServiceMetrics(observe.NewCollector(nil)),
	}
	return messaging.NewService(registry, mgr, append(base, opts...)...), registry
}

func TestSendFetchReadScenario(t *testing.T) {
	svc, registry := newTestService(t)
	ctx := context.Background()

	if err := registry.Enroll("bob", true); err != nil {
		t.Fatalf("Enroll failed: %v", err)
	}

	plaintext := []byte("Hello Bob from Alice!")
	token, err := svc.SendSecureMessage(ctx, plaintext, "bob", 15)
	if err != nil {
		t.Fatalf("SendSecureMessage failed: %v", err)
	}
	if token == "" {
		t.Fatal("expected a non-empty token")
	}

	kyberPriv, x25519, err := registry.DecryptionKeys("bob")
	if err != nil {
		t.Fatalf("DecryptionKeys failed: %v", err)
	}

	// Fetch twice; both succeed with the same plaintext.
	for i := 0; i < 2; i++ {
		msg, err := svc.FetchAndDecrypt(ctx, token, kyberPriv, x25519.PrivateKey)
		if err != nil {
			t.Fatalf("FetchAndDecrypt %d failed: %v", i, err)
		}
		if !bytes.Equal(msg.Plaintext, plaintext) {
			t.Fatalf("FetchAndDecrypt %d plaintext = %q, want %q", i, msg.Plaintext, plaintext)
		}
		if msg.Mode != crypto.ModeHybrid {
			t.Errorf("mode = %v, want hybrid", msg.Mode)
		}
		if msg.TTLRemaining <= 0 {
			t.Errorf("TTLRemaining = %v, want positive", msg.TTLRemaining)
		}
	}

	if err := svc.MarkRead(ctx, token); err != nil {
		t.Fatalf("MarkRead failed: %v", err)
	}
	if _, err := svc.FetchAndDecrypt(ctx, token, kyberPriv, x25519.PrivateKey); !errors.Is(err, qerrors.ErrMessageNotFound) {
		t.Errorf("fetch after read = %v, want ErrMessageNotFound", err)
	}
}

func TestKEMOnlyRecipient(t *testing.T) {
	svc, registry := newTestService(t)
	ctx := context.Background()

	if err := registry.Enroll("legacy", false); err != nil {
		t.Fatalf("Enroll failed: %v", err)
	}

	plaintext := []byte("no classical key on file")
	res, err := svc.Send(ctx, messaging.SendRequest{
		RecipientID: "legacy",
		Plaintext:   plaintext,
		TTLSeconds:  30,
		TrustScore:  100,
	})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if res.Mode != crypto.ModeKEMOnly {
		t.Fatalf("mode = %v, want kem-only", res.Mode)
	}

	kyberPriv, x25519, err := registry.DecryptionKeys("legacy")
	if err != nil {
		t.Fatalf("DecryptionKeys failed: %v", err)
	}
	if x25519 != nil {
		t.Fatal("KEM-only recipient has an X25519 pair")
	}

	msg, err := svc.FetchAndDecrypt(ctx, res.Token, kyberPriv, nil)
	if err != nil {
		t.Fatalf("FetchAndDecrypt failed: %v", err)
	}
	if !bytes.Equal(msg.Plaintext, plaintext) {
		t.Errorf("plaintext mismatch")
	}
}

func TestUnknownRecipient(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.SendSecureMessage(context.Background(), []byte("hi"), "nobody", 15)
	if !errors.Is(err, qerrors.ErrRecipientKeyUnavailable) {
		t.Errorf("send to unknown recipient = %v, want ErrRecipientKeyUnavailable", err)
	}

	var phase *qerrors.PhaseError
	if !errors.As(err, &phase) || phase.Phase != "key lookup" {
		t.Errorf("error does not name the key lookup phase: %v", err)
	}
}

func TestWrongKeysDoNotConsumeMessage(t *testing.T) {
	svc, registry := newTestService(t)
	ctx := context.Background()

	if err := registry.Enroll("bob", true); err != nil {
		t.Fatalf("Enroll failed: %v", err)
	}

	token, err := svc.SendSecureMessage(ctx, []byte("for bob only"), "bob", 60)
	if err != nil {
		t.Fatalf("SendSecureMessage failed: %v", err)
	}

	// Eve brings her own keys.
	eveKyber, err := crypto.GenerateKyberKeyPair()
	if err != nil {
		t.Fatalf("GenerateKyberKeyPair failed: %v", err)
	}
	eveX, err := crypto.GenerateX25519KeyPair()
	if err != nil {
		t.Fatalf("GenerateX25519KeyPair failed: %v", err)
	}

	if _, err := svc.ReceiveOnce(ctx, token, eveKyber.DecapsulationKey, eveX.PrivateKey); !errors.Is(err, qerrors.ErrDecryptionFailed) {
		t.Fatalf("ReceiveOnce with wrong keys = %v, want ErrDecryptionFailed", err)
	}

	// The failed read must not have consumed the message.
	kyberPriv, x25519, err := registry.DecryptionKeys("bob")
	if err != nil {
		t.Fatalf("DecryptionKeys failed: %v", err)
	}
	msg, err := svc.ReceiveOnce(ctx, token, kyberPriv, x25519.PrivateKey)
	if err != nil {
		t.Fatalf("legitimate ReceiveOnce failed: %v", err)
	}
	if string(msg.Plaintext) != "for bob only" {
		t.Errorf("plaintext mismatch after failed snoop")
	}
}

func TestKeyRotationInvalidatesOldMessages(t *testing.T) {
	svc, registry := newTestService(t)
	ctx := context.Background()

	if err := registry.Enroll("bob", true); err != nil {
		t.Fatalf("Enroll failed: %v", err)
	}
	token, err := svc.SendSecureMessage(ctx, []byte("sealed before rotation"), "bob", 60)
	if err != nil {
		t.Fatalf("SendSecureMessage failed: %v", err)
	}

	if err := registry.Rotate("bob"); err != nil {
		t.Fatalf("Rotate failed: %v", err)
	}

	kyberPriv, x25519, err := registry.DecryptionKeys("bob")
	if err != nil {
		t.Fatalf("DecryptionKeys failed: %v", err)
	}
	if _, err := svc.FetchAndDecrypt(ctx, token, kyberPriv, x25519.PrivateKey); !errors.Is(err, qerrors.ErrDecryptionFailed) {
		t.Errorf("decrypt with rotated keys = %v, want ErrDecryptionFailed", err)
	}
}

func TestThresholdPolicy(t *testing.T) {
	policy := messaging.DefaultThresholdPolicy()
	ctx := context.Background()

	tests := []struct {
		name      string
		score     int
		exception bool
		want      lifecycle.MessageState
	}{
		{"high trust", 95, false, lifecycle.StateStored},
		{"allow boundary", 70, false, lifecycle.StateStored},
		{"reauth range", 55, false, lifecycle.StateRequireReauth},
		{"reauth boundary", 40, false, lifecycle.StateRequireReauth},
		{"low trust", 39, false, lifecycle.StateBlocked},
		{"zero trust", 0, false, lifecycle.StateBlocked},
		{"exception softens block to pending", 10, true, lifecycle.StatePendingApproval},
		{"exception leaves allow verdict alone", 85, true, lifecycle.StateStored},
		{"exception leaves reauth verdict alone", 55, true, lifecycle.StateRequireReauth},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := policy.Decide(ctx, messaging.PolicyRequest{RecipientID: "bob", TrustScore: tt.score, ExceptionFlag: tt.exception})
			if d.State != tt.want {
				t.Errorf("Decide(score=%d, exception=%v) = %v, want %v", tt.score, tt.exception, d.State, tt.want)
			}
		})
	}
}

func TestPolicyBlockedSendStoresNothing(t *testing.T) {
	svc, registry := newTestService(t, messaging.WithPolicy(messaging.DefaultThresholdPolicy()))
	ctx := context.Background()

	if err := registry.Enroll("bob", true); err != nil {
		t.Fatalf("Enroll failed: %v", err)
	}

	_, err := svc.Send(ctx, messaging.SendRequest{
		RecipientID: "bob",
		Plaintext:   []byte("suspicious"),
		TTLSeconds:  15,
		TrustScore:  5,
	})
	if !errors.Is(err, qerrors.ErrPolicyBlocked) {
		t.Fatalf("low-trust send = %v, want ErrPolicyBlocked", err)
	}
}

func TestModerationFlowThroughService(t *testing.T) {
	svc, registry := newTestService(t, messaging.WithPolicy(messaging.DefaultThresholdPolicy()))
	ctx := context.Background()

	if err := registry.Enroll("bob", true); err != nil {
		t.Fatalf("Enroll failed: %v", err)
	}

	res, err := svc.Send(ctx, messaging.SendRequest{
		RecipientID:   "bob",
		Plaintext:     []byte("needs review"),
		TTLSeconds:    60,
		TrustScore:    20,
		ExceptionFlag: true,
	})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if res.State != lifecycle.StatePendingApproval {
		t.Fatalf("state = %v, want pending_approval", res.State)
	}

	kyberPriv, x25519, err := registry.DecryptionKeys("bob")
	if err != nil {
		t.Fatalf("DecryptionKeys failed: %v", err)
	}

	if _, err := svc.FetchAndDecrypt(ctx, res.Token, kyberPriv, x25519.PrivateKey); !errors.Is(err, qerrors.ErrMessageNotReadable) {
		t.Errorf("fetch pending message = %v, want ErrMessageNotReadable", err)
	}

	if err := svc.Approve(ctx, res.Token); err != nil {
		t.Fatalf("Approve failed: %v", err)
	}
	msg, err := svc.FetchAndDecrypt(ctx, res.Token, kyberPriv, x25519.PrivateKey)
	if err != nil {
		t.Fatalf("fetch after approve failed: %v", err)
	}
	if string(msg.Plaintext) != "needs review" {
		t.Errorf("plaintext mismatch after approval")
	}
}

func TestReauthHoldThroughService(t *testing.T) {
	svc, registry := newTestService(t, messaging.WithPolicy(messaging.DefaultThresholdPolicy()))
	ctx := context.Background()

	if err := registry.Enroll("bob", true); err != nil {
		t.Fatalf("Enroll failed: %v", err)
	}

	res, err := svc.Send(ctx, messaging.SendRequest{
		RecipientID: "bob",
		Plaintext:   []byte("prove it is you"),
		TTLSeconds:  60,
		TrustScore:  50,
	})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if res.State != lifecycle.StateRequireReauth {
		t.Fatalf("state = %v, want require_reauth", res.State)
	}

	if err := svc.Reauthorize(ctx, res.Token); err != nil {
		t.Fatalf("Reauthorize failed: %v", err)
	}

	kyberPriv, x25519, err := registry.DecryptionKeys("bob")
	if err != nil {
		t.Fatalf("DecryptionKeys failed: %v", err)
	}
	if _, err := svc.FetchAndDecrypt(ctx, res.Token, kyberPriv, x25519.PrivateKey); err != nil {
		t.Errorf("fetch after reauthorize failed: %v", err)
	}
}

func TestMemoryDirectory(t *testing.T) {
	dir := messaging.NewMemoryDirectory()
	ctx := context.Background()

	kp, err := crypto.GenerateKyberKeyPair()
	if err != nil {
		t.Fatalf("GenerateKyberKeyPair failed: %v", err)
	}
	defer kp.Zeroize()

	if err := dir.Register("carol", hybrid.RecipientKeys{KyberPublicKey: kp.PublicKeyBytes()}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	keys, err := dir.PublicKeys(ctx, "carol")
	if err != nil {
		t.Fatalf("PublicKeys failed: %v", err)
	}
	if !bytes.Equal(keys.KyberPublicKey, kp.PublicKeyBytes()) {
		t.Error("registered key does not round-trip")
	}

	if err := dir.Register("bad", hybrid.RecipientKeys{KyberPublicKey: []byte("short")}); !errors.Is(err, qerrors.ErrInvalidPublicKey) {
		t.Errorf("Register with short key = %v, want ErrInvalidPublicKey", err)
	}

	dir.Remove("carol")
	if _, err := dir.PublicKeys(ctx, "carol"); !errors.Is(err, qerrors.ErrRecipientKeyUnavailable) {
		t.Errorf("lookup after remove = %v, want ErrRecipientKeyUnavailable", err)
	}
}
