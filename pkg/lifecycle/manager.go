package lifecycle

import (
	"context"
	"sync"
	"time"

	"github.com/qshield/qshield-go/internal/constants"
	qerrors "github.com/qshield/qshield-go/internal/errors"
	"github.com/qshield/qshield-go/pkg/hybrid"
	"github.com/qshield/qshield-go/pkg/observe"
)

// Manager enforces the message lifecycle on top of a Store: admission,
// idempotent fetches, destructive at-most-once reads, moderation
// transitions, and expiry.
//
// Expiry is evaluated lazily on every access against the manager's clock,
// so a lapsed message is unreachable even if no sweep has run yet. The
// optional background sweeper only reclaims storage.
type Manager struct {
	store   Store
	log     *observe.Logger
	metrics *observe.Collector
	tracer  observe.Tracer
	now     func() time.Time

	sweepInterval time.Duration
	sweepCancel   context.CancelFunc
	sweepWG       sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithLogger sets the manager's logger.
func WithLogger(l *observe.Logger) ManagerOption {
	return func(m *Manager) {
		m.log = l
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(c *observe.Collector) ManagerOption {
	return func(m *Manager) {
		m.metrics = c
	}
}

// WithTracer sets the tracer.
func WithTracer(t observe.Tracer) ManagerOption {
	return func(m *Manager) {
		m.tracer = t
	}
}

// WithClock overrides the time source. Tests use this to force expiry
// without sleeping.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.now = now
	}
}

// WithSweepInterval overrides the background sweep cadence.
func WithSweepInterval(d time.Duration) ManagerOption {
	return func(m *Manager) {
		m.sweepInterval = d
	}
}

// NewManager creates a lifecycle manager over the given store.
func NewManager(store Store, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:         store,
		log:           observe.NullLogger(),
		metrics:       observe.Global(),
		tracer:        observe.NoOpTracer{},
		now:           time.Now,
		sweepInterval: SweepInterval,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.log = m.log.Named("lifecycle")
	return m
}

// SweepInterval is the default cadence of the background expiry sweeper.
const SweepInterval = constants.SweepIntervalSeconds * time.Second

// FetchResult is the observable view of a live message.
type FetchResult struct {
	Fields       *hybrid.CryptoFields
	State        MessageState
	TTLRemaining time.Duration
}

// Send admits an encrypted message into the store under a fresh token.
// The initial state comes from policy evaluation; StateBlocked rejects the
// message outright and nothing is persisted.
func (m *Manager) Send(ctx context.Context, recipientID string, fields *hybrid.CryptoFields, ttlSeconds int, initial MessageState) (*SecureEnvelope, error) {
	ctx, end := m.tracer.StartSpan(ctx, observe.SpanSend, observe.WithAttributes(observe.SpanAttributes{
		RecipientID: recipientID,
		State:       initial.String(),
		TTLSeconds:  int64(ttlSeconds),
	}.ToMap()))
	var err error
	defer func() { end(err) }()

	if initial == StateBlocked {
		m.metrics.RecordPolicyBlock()
		m.log.Warn("message blocked by policy", observe.Fields{"recipient_id": recipientID})
		err = qerrors.ErrPolicyBlocked
		return nil, err
	}
	if initial.IsTerminal() || initial == 0 {
		err = qerrors.ErrInvalidTransition
		return nil, err
	}

	ttl, err := validateTTL(ttlSeconds)
	if err != nil {
		return nil, err
	}

	env, err := NewEnvelope(recipientID, fields)
	if err != nil {
		return nil, err
	}
	env.CreatedAt = m.now()
	env.TTLSeconds = ttl
	env.State = initial

	start := m.now()
	if err = m.store.Put(ctx, env); err != nil {
		m.metrics.RecordStoreError()
		return nil, qerrors.NewPhaseError("store", err)
	}
	m.metrics.RecordStoreLatency(m.now().Sub(start))
	m.metrics.MessageStored()

	m.log.Info("message stored", observe.Fields{
		"token":        env.Token,
		"recipient_id": recipientID,
		"state":        env.State.String(),
		"ttl_seconds":  env.TTLSeconds,
	})
	return env, nil
}

// Fetch returns the crypto fields and remaining lifetime of a message
// without consuming it. Only StateStored messages are fetchable; a lapsed
// message is purged and reported expired, after which the token is unknown.
func (m *Manager) Fetch(ctx context.Context, token string) (*FetchResult, error) {
	ctx, end := m.tracer.StartSpan(ctx, observe.SpanFetch)
	var err error
	defer func() { end(err) }()

	env, err := m.store.Get(ctx, token)
	if err != nil {
		return nil, err
	}

	now := m.now()
	if env.Expired(now) {
		m.expire(ctx, env)
		err = qerrors.ErrMessageExpired
		return nil, err
	}
	if env.State != StateStored {
		err = qerrors.ErrMessageNotReadable
		return nil, err
	}

	m.metrics.MessageFetched()
	return &FetchResult{
		Fields:       env.CryptoFields(),
		State:        env.State,
		TTLRemaining: env.TTLRemaining(now),
	}, nil
}

// Read consumes a message: the record is deleted and the stored ciphertext
// wiped in the same step. Of any number of concurrent reads for one token,
// exactly one succeeds; the rest observe ErrMessageNotFound.
func (m *Manager) Read(ctx context.Context, token string) error {
	ctx, end := m.tracer.StartSpan(ctx, observe.SpanRead)
	var err error
	defer func() { end(err) }()

	env, err := m.store.Get(ctx, token)
	if err != nil {
		return err
	}

	if env.Expired(m.now()) {
		m.expire(ctx, env)
		err = qerrors.ErrMessageExpired
		return err
	}
	if env.State != StateStored {
		err = qerrors.ErrMessageNotReadable
		return err
	}

	// The store linearizes competing reads on this compare-and-delete.
	err = m.store.CompareAndDelete(ctx, token, StateStored)
	switch err {
	case nil:
		m.metrics.MessageRead()
		m.log.Info("message read and destroyed", observe.Fields{"token": token})
		return nil
	case qerrors.ErrInvalidTransition:
		err = qerrors.ErrMessageNotReadable
		return err
	default:
		return err
	}
}

// Approve releases a message held for moderation, making it fetchable.
func (m *Manager) Approve(ctx context.Context, token string) error {
	err := m.transition(ctx, token, StatePendingApproval, StateStored)
	if err == nil {
		m.metrics.MessageApproved()
		m.log.Info("message approved", observe.Fields{"token": token})
	}
	return err
}

// Deny rejects a message held for moderation. The record moves to the
// terminal blocked state and stays unreadable until its TTL reaps it.
func (m *Manager) Deny(ctx context.Context, token string) error {
	err := m.transition(ctx, token, StatePendingApproval, StateBlocked)
	if err == nil {
		m.metrics.MessageDenied()
		m.log.Info("message denied", observe.Fields{"token": token})
	}
	return err
}

// Reauthorize clears the reauthentication hold on a message after the
// recipient has proven their identity again.
func (m *Manager) Reauthorize(ctx context.Context, token string) error {
	err := m.transition(ctx, token, StateRequireReauth, StateStored)
	if err == nil {
		m.log.Info("message reauthorized", observe.Fields{"token": token})
	}
	return err
}

// transition applies a guarded state change with the lazy expiry check.
func (m *Manager) transition(ctx context.Context, token string, from, to MessageState) error {
	env, err := m.store.Get(ctx, token)
	if err != nil {
		return err
	}
	if env.Expired(m.now()) {
		m.expire(ctx, env)
		return qerrors.ErrMessageExpired
	}
	return m.store.CompareAndSetState(ctx, token, from, to)
}

// expire purges a lapsed message found during access. A compare-and-delete
// failure means someone else got there first, which is fine.
func (m *Manager) expire(ctx context.Context, env *SecureEnvelope) {
	if err := m.store.CompareAndDelete(ctx, env.Token, env.State); err == nil {
		m.metrics.MessageExpired()
		m.log.Debug("message expired on access", observe.Fields{"token": env.Token})
	}
}

// StartSweeper launches the background expiry sweeper. It runs until Close
// is called or the given context is canceled.
func (m *Manager) StartSweeper(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || m.sweepCancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	m.sweepCancel = cancel

	m.sweepWG.Add(1)
	go func() {
		defer m.sweepWG.Done()
		ticker := time.NewTicker(m.sweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.sweepOnce(ctx)
			}
		}
	}()
	m.log.Debug("expiry sweeper started", observe.Fields{"interval": m.sweepInterval})
}

// sweepOnce runs one expiry pass.
func (m *Manager) sweepOnce(ctx context.Context) {
	_, end := m.tracer.StartSpan(ctx, observe.SpanSweep)
	n, err := m.store.Sweep(ctx, m.now())
	end(err)
	if err != nil {
		m.metrics.RecordStoreError()
		m.log.Error("expiry sweep failed", observe.Fields{"error": err.Error()})
		return
	}
	if n > 0 {
		m.metrics.MessagesSwept(uint64(n))
		m.log.Info("expiry sweep purged messages", observe.Fields{"count": n})
	}
}

// Close stops the sweeper and closes the underlying store. Safe to call
// more than once.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	cancel := m.sweepCancel
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	m.sweepWG.Wait()
	return m.store.Close()
}
