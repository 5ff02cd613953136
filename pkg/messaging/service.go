package messaging

import (
	"context"
	"crypto/ecdh"
	"errors"
	"time"

	qerrors "github.com/qshield/qshield-go/internal/errors"
	"github.com/qshield/qshield-go/pkg/crypto"
	"github.com/qshield/qshield-go/pkg/hybrid"
	"github.com/qshield/qshield-go/pkg/lifecycle"
	"github.com/qshield/qshield-go/pkg/observe"
)

// Service is the end-to-end facade: it resolves recipient keys, runs the
// send policy, seals plaintext with the hybrid engine, and drives the
// message lifecycle. The service never persists plaintext or key material;
// only the sealed envelope reaches the store.
type Service struct {
	directory Directory
	manager   *lifecycle.Manager
	policy    Policy
	log       *observe.Logger
	metrics   *observe.Collector
	tracer    observe.Tracer
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithPolicy sets the send policy. Default is AllowAll.
func WithPolicy(p Policy) ServiceOption {
	return func(s *Service) {
		s.policy = p
	}
}

// WithServiceLogger sets the service logger.
func WithServiceLogger(l *observe.Logger) ServiceOption {
	return func(s *Service) {
		s.log = l
	}
}

// WithServiceMetrics sets the metrics collector.
func WithServiceMetrics(c *observe.Collector) ServiceOption {
	return func(s *Service) {
		s.metrics = c
	}
}

// WithServiceTracer sets the tracer.
func WithServiceTracer(t observe.Tracer) ServiceOption {
	return func(s *Service) {
		s.tracer = t
	}
}

// NewService wires a service over a key directory and a lifecycle manager.
func NewService(directory Directory, manager *lifecycle.Manager, opts ...ServiceOption) *Service {
	s := &Service{
		directory: directory,
		manager:   manager,
		policy:    AllowAll{},
		log:       observe.NullLogger(),
		metrics:   observe.Global(),
		tracer:    observe.NoOpTracer{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.Named("messaging")
	return s
}

// SendRequest describes one outgoing message.
type SendRequest struct {
	RecipientID string
	Plaintext   []byte

	// TTLSeconds bounds the message lifetime; zero selects the default.
	TTLSeconds int

	// TrustScore and ExceptionFlag feed the send policy. A zero-value
	// request under the default AllowAll policy is always admitted.
	TrustScore    int
	ExceptionFlag bool
}

// SendResult reports the outcome of an admitted send.
type SendResult struct {
	Token  string
	State  lifecycle.MessageState
	Mode   crypto.DerivationMode
	Reason string
}

// Send seals and stores one message. The policy verdict decides the initial
// state; a blocked verdict returns ErrPolicyBlocked and nothing touches the
// store. The plaintext buffer is not retained.
func (s *Service) Send(ctx context.Context, req SendRequest) (*SendResult, error) {
	keys, err := s.directory.PublicKeys(ctx, req.RecipientID)
	if err != nil {
		return nil, qerrors.NewPhaseError("key lookup", err)
	}

	decision := s.policy.Decide(ctx, PolicyRequest{
		RecipientID:   req.RecipientID,
		TrustScore:    req.TrustScore,
		PlaintextSize: len(req.Plaintext),
		ExceptionFlag: req.ExceptionFlag,
	})
	if decision.State == lifecycle.StateBlocked {
		s.metrics.RecordPolicyBlock()
		s.log.Warn("send rejected by policy", observe.Fields{
			"recipient_id": req.RecipientID,
			"reason":       decision.Reason,
		})
		return nil, qerrors.ErrPolicyBlocked
	}

	start := time.Now()
	_, end := s.tracer.StartSpan(ctx, observe.SpanEncrypt, observe.WithAttributes(observe.SpanAttributes{
		RecipientID: req.RecipientID,
	}.ToMap()))
	fields, err := hybrid.EncryptFor(req.Plaintext, keys)
	end(err)
	if err != nil {
		s.metrics.RecordEncryptError()
		return nil, err
	}
	s.metrics.RecordEncryptLatency(time.Since(start))
	if fields.Mode == crypto.ModeKEMOnly {
		s.metrics.RecordKEMOnlyDerivation()
	}

	env, err := s.manager.Send(ctx, req.RecipientID, fields, req.TTLSeconds, decision.State)
	if err != nil {
		return nil, err
	}

	return &SendResult{
		Token:  env.Token,
		State:  env.State,
		Mode:   fields.Mode,
		Reason: decision.Reason,
	}, nil
}

// SendSecureMessage is the plain path: seal plaintext for a recipient with
// the given TTL and return the message token. The policy sees a fully
// trusted send.
func (s *Service) SendSecureMessage(ctx context.Context, plaintext []byte, recipientID string, ttlSeconds int) (string, error) {
	res, err := s.Send(ctx, SendRequest{
		RecipientID: recipientID,
		Plaintext:   plaintext,
		TTLSeconds:  ttlSeconds,
		TrustScore:  100,
	})
	if err != nil {
		return "", err
	}
	return res.Token, nil
}

// ReceivedMessage is a decrypted message and its remaining lifetime at the
// moment of the fetch.
type ReceivedMessage struct {
	Plaintext    []byte
	Mode         crypto.DerivationMode
	TTLRemaining time.Duration
}

// FetchAndDecrypt retrieves and opens a message without consuming it. The
// recipient supplies their own private keys; x25519Priv must be nil exactly
// when the message was sealed in KEM-only mode.
func (s *Service) FetchAndDecrypt(ctx context.Context, token string, kyberPriv *crypto.KyberPrivateKey, x25519Priv *ecdh.PrivateKey) (*ReceivedMessage, error) {
	res, err := s.manager.Fetch(ctx, token)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	_, end := s.tracer.StartSpan(ctx, observe.SpanDecrypt, observe.WithAttributes(observe.SpanAttributes{
		Mode: res.Fields.Mode.String(),
	}.ToMap()))
	plaintext, err := hybrid.Decrypt(res.Fields, kyberPriv, x25519Priv)
	end(err)
	if err != nil {
		s.metrics.RecordDecryptError()
		if errors.Is(err, qerrors.ErrDecryptionFailed) {
			s.metrics.RecordAuthFailure()
		}
		return nil, err
	}
	s.metrics.RecordDecryptLatency(time.Since(start))

	return &ReceivedMessage{
		Plaintext:    plaintext,
		Mode:         res.Fields.Mode,
		TTLRemaining: res.TTLRemaining,
	}, nil
}

// MarkRead consumes the message: the stored record is destroyed and the
// token becomes unknown. At most one concurrent caller succeeds.
func (s *Service) MarkRead(ctx context.Context, token string) error {
	return s.manager.Read(ctx, token)
}

// ReceiveOnce is fetch, decrypt, and destroy in one call. The message is
// consumed only after decryption succeeds, so a recipient with the wrong
// keys cannot burn a message they could not read.
func (s *Service) ReceiveOnce(ctx context.Context, token string, kyberPriv *crypto.KyberPrivateKey, x25519Priv *ecdh.PrivateKey) (*ReceivedMessage, error) {
	msg, err := s.FetchAndDecrypt(ctx, token, kyberPriv, x25519Priv)
	if err != nil {
		return nil, err
	}
	if err := s.manager.Read(ctx, token); err != nil {
		// Lost the race against a concurrent read; treat this copy as
		// never delivered.
		crypto.Zeroize(msg.Plaintext)
		return nil, err
	}
	return msg, nil
}

// Approve releases a message held for moderation.
func (s *Service) Approve(ctx context.Context, token string) error {
	return s.manager.Approve(ctx, token)
}

// Deny blocks a message held for moderation.
func (s *Service) Deny(ctx context.Context, token string) error {
	return s.manager.Deny(ctx, token)
}

// Reauthorize clears a reauthentication hold.
func (s *Service) Reauthorize(ctx context.Context, token string) error {
	return s.manager.Reauthorize(ctx, token)
}
