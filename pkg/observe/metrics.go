package observe

import (
	"sync"
	"sync/atomic"
	"time"
)

// Collector aggregates metrics from the crypto pipeline and the message
// lifecycle. Counters move forward only; the envelope count gauge tracks
// live messages in the store.
type Collector struct {
	// Lifecycle metrics
	messagesStored   atomic.Uint64
	messagesFetched  atomic.Uint64
	messagesRead     atomic.Uint64
	messagesExpired  atomic.Uint64
	messagesSwept    atomic.Uint64
	messagesApproved atomic.Uint64
	messagesDenied   atomic.Uint64
	envelopesLive    atomic.Uint64

	// Security metrics
	policyBlocks    atomic.Uint64
	authFailures    atomic.Uint64
	keyRotations    atomic.Uint64
	kemOnlyFallback atomic.Uint64

	// Error metrics
	encryptErrors atomic.Uint64
	decryptErrors atomic.Uint64
	storeErrors   atomic.Uint64

	// Performance histograms
	encryptLatency *Histogram
	decryptLatency *Histogram
	storeLatency   *Histogram

	// Creation time for uptime tracking
	createdAt time.Time

	// Labels for this collector instance
	labels Labels
}

// Labels represents key-value pairs for metric labeling.
type Labels map[string]string

// NewCollector creates a new metrics collector.
func NewCollector(labels Labels) *Collector {
	if labels == nil {
		labels = make(Labels)
	}

	return &Collector{
		encryptLatency: NewHistogram(LatencyBuckets),
		decryptLatency: NewHistogram(LatencyBuckets),
		storeLatency:   NewHistogram(StoreLatencyBuckets),
		createdAt:      time.Now(),
		labels:         labels,
	}
}

// Default bucket configurations for histograms.
var (
	// LatencyBuckets for encrypt/decrypt operations (microseconds).
	LatencyBuckets = []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000}

	// StoreLatencyBuckets for envelope store operations (microseconds).
	StoreLatencyBuckets = []float64{5, 10, 50, 100, 500, 1000, 5000, 25000, 100000}
)

// --- Lifecycle Metrics ---

// MessageStored records a message accepted into the store.
func (c *Collector) MessageStored() {
	c.messagesStored.Add(1)
	c.envelopesLive.Add(1)
}

// MessageFetched records a non-destructive envelope fetch.
func (c *Collector) MessageFetched() {
	c.messagesFetched.Add(1)
}

// MessageRead records a destructive read.
func (c *Collector) MessageRead() {
	c.messagesRead.Add(1)
	c.envelopeGone()
}

// MessageExpired records a message that lapsed before being read.
func (c *Collector) MessageExpired() {
	c.messagesExpired.Add(1)
	c.envelopeGone()
}

// MessagesSwept records messages purged by a background sweep.
func (c *Collector) MessagesSwept(n uint64) {
	c.messagesSwept.Add(n)
	for i := uint64(0); i < n; i++ {
		c.envelopeGone()
	}
}

// MessageApproved records an approval transition.
func (c *Collector) MessageApproved() {
	c.messagesApproved.Add(1)
}

// MessageDenied records a denial transition. The record remains in the
// store until its TTL lapses, so the live gauge is untouched.
func (c *Collector) MessageDenied() {
	c.messagesDenied.Add(1)
}

func (c *Collector) envelopeGone() {
	for {
		current := c.envelopesLive.Load()
		if current == 0 {
			return
		}
		if c.envelopesLive.CompareAndSwap(current, current-1) {
			return
		}
	}
}

// --- Security Metrics ---

// RecordPolicyBlock increments the policy block counter.
func (c *Collector) RecordPolicyBlock() {
	c.policyBlocks.Add(1)
}

// RecordAuthFailure increments the AEAD authentication failure counter.
func (c *Collector) RecordAuthFailure() {
	c.authFailures.Add(1)
}

// RecordKeyRotation records a recipient key rotation.
func (c *Collector) RecordKeyRotation() {
	c.keyRotations.Add(1)
}

// RecordKEMOnlyDerivation records a message keyed without the classical
// ECDH contribution.
func (c *Collector) RecordKEMOnlyDerivation() {
	c.kemOnlyFallback.Add(1)
}

// --- Error Metrics ---

// RecordEncryptError increments the encryption error counter.
func (c *Collector) RecordEncryptError() {
	c.encryptErrors.Add(1)
}

// RecordDecryptError increments the decryption error counter.
func (c *Collector) RecordDecryptError() {
	c.decryptErrors.Add(1)
}

// RecordStoreError increments the envelope store error counter.
func (c *Collector) RecordStoreError() {
	c.storeErrors.Add(1)
}

// --- Performance Metrics ---

// RecordEncryptLatency records hybrid encryption latency.
func (c *Collector) RecordEncryptLatency(d time.Duration) {
	c.encryptLatency.Observe(float64(d.Microseconds()))
}

// RecordDecryptLatency records hybrid decryption latency.
func (c *Collector) RecordDecryptLatency(d time.Duration) {
	c.decryptLatency.Observe(float64(d.Microseconds()))
}

// RecordStoreLatency records envelope store operation latency.
func (c *Collector) RecordStoreLatency(d time.Duration) {
	c.storeLatency.Observe(float64(d.Microseconds()))
}

// Snapshot is a point-in-time view of all metrics.
type Snapshot struct {
	Timestamp time.Time
	Uptime    time.Duration

	MessagesStored   uint64
	MessagesFetched  uint64
	MessagesRead     uint64
	MessagesExpired  uint64
	MessagesSwept    uint64
	MessagesApproved uint64
	MessagesDenied   uint64
	EnvelopesLive    uint64

	PolicyBlocks    uint64
	AuthFailures    uint64
	KeyRotations    uint64
	KEMOnlyFallback uint64

	EncryptErrors uint64
	DecryptErrors uint64
	StoreErrors   uint64

	EncryptLatency HistogramSummary
	DecryptLatency HistogramSummary
	StoreLatency   HistogramSummary

	Labels Labels
}

// Snapshot returns a point-in-time snapshot of all metrics.
func (c *Collector) Snapshot() Snapshot {
	return Snapshot{
		Timestamp:        time.Now(),
		Uptime:           time.Since(c.createdAt),
		MessagesStored:   c.messagesStored.Load(),
		MessagesFetched:  c.messagesFetched.Load(),
		MessagesRead:     c.messagesRead.Load(),
		MessagesExpired:  c.messagesExpired.Load(),
		MessagesSwept:    c.messagesSwept.Load(),
		MessagesApproved: c.messagesApproved.Load(),
		MessagesDenied:   c.messagesDenied.Load(),
		EnvelopesLive:    c.envelopesLive.Load(),
		PolicyBlocks:     c.policyBlocks.Load(),
		AuthFailures:     c.authFailures.Load(),
		KeyRotations:     c.keyRotations.Load(),
		KEMOnlyFallback:  c.kemOnlyFallback.Load(),
		EncryptErrors:    c.encryptErrors.Load(),
		DecryptErrors:    c.decryptErrors.Load(),
		StoreErrors:      c.storeErrors.Load(),
		EncryptLatency:   c.encryptLatency.Summary(),
		DecryptLatency:   c.decryptLatency.Summary(),
		StoreLatency:     c.storeLatency.Summary(),
		Labels:           c.labels,
	}
}

// Reset clears all metrics (useful for testing).
func (c *Collector) Reset() {
	c.messagesStored.Store(0)
	c.messagesFetched.Store(0)
	c.messagesRead.Store(0)
	c.messagesExpired.Store(0)
	c.messagesSwept.Store(0)
	c.messagesApproved.Store(0)
	c.messagesDenied.Store(0)
	c.envelopesLive.Store(0)
	c.policyBlocks.Store(0)
	c.authFailures.Store(0)
	c.keyRotations.Store(0)
	c.kemOnlyFallback.Store(0)
	c.encryptErrors.Store(0)
	c.decryptErrors.Store(0)
	c.storeErrors.Store(0)
	c.encryptLatency.Reset()
	c.decryptLatency.Reset()
	c.storeLatency.Reset()
	c.createdAt = time.Now()
}

// --- Global Collector ---

var (
	globalCollector     *Collector
	globalCollectorOnce sync.Once
)

// Global returns the global metrics collector.
// Creates one with default settings if not already initialized.
func Global() *Collector {
	globalCollectorOnce.Do(func() {
		globalCollector = NewCollector(Labels{"instance": "default"})
	})
	return globalCollector
}

// SetGlobal sets the global metrics collector.
// Should be called during initialization before any metrics are recorded.
func SetGlobal(c *Collector) {
	globalCollector = c
}
