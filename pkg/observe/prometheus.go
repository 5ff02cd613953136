package observe

import (
	"fmt"
	"io"
	"math"
	"net/http"
	"sort"
	"strings"
)

// PrometheusExporter exports metrics in Prometheus text format.
type PrometheusExporter struct {
	collector *Collector
	namespace string
}

// NewPrometheusExporter creates a new Prometheus exporter for the given collector.
// The namespace is prepended to all metric names (e.g., "qshield").
func NewPrometheusExporter(c *Collector, namespace string) *PrometheusExporter {
	return &PrometheusExporter{
		collector: c,
		namespace: namespace,
	}
}

// Handler returns an http.Handler that serves Prometheus metrics.
func (e *PrometheusExporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		e.WriteMetrics(w)
	})
}

// WriteMetrics writes all metrics in Prometheus text format to the writer.
func (e *PrometheusExporter) WriteMetrics(w io.Writer) {
	snap := e.collector.Snapshot()
	labels := e.formatLabels(snap.Labels)

	// --- Lifecycle Metrics ---
	e.writeHelp(w, "messages_stored_total", "Total messages accepted into the store")
	e.writeType(w, "messages_stored_total", "counter")
	e.writeMetric(w, "messages_stored_total", labels, float64(snap.MessagesStored))

	e.writeHelp(w, "messages_fetched_total", "Total non-destructive envelope fetches")
	e.writeType(w, "messages_fetched_total", "counter")
	e.writeMetric(w, "messages_fetched_total", labels, float64(snap.MessagesFetched))

	e.writeHelp(w, "messages_read_total", "Total destructive reads")
	e.writeType(w, "messages_read_total", "counter")
	e.writeMetric(w, "messages_read_total", labels, float64(snap.MessagesRead))

	e.writeHelp(w, "messages_expired_total", "Total messages that lapsed unread")
	e.writeType(w, "messages_expired_total", "counter")
	e.writeMetric(w, "messages_expired_total", labels, float64(snap.MessagesExpired))

	e.writeHelp(w, "messages_swept_total", "Total messages purged by background sweeps")
	e.writeType(w, "messages_swept_total", "counter")
	e.writeMetric(w, "messages_swept_total", labels, float64(snap.MessagesSwept))

	e.writeHelp(w, "messages_approved_total", "Total messages approved for delivery")
	e.writeType(w, "messages_approved_total", "counter")
	e.writeMetric(w, "messages_approved_total", labels, float64(snap.MessagesApproved))

	e.writeHelp(w, "messages_denied_total", "Total messages denied and purged")
	e.writeType(w, "messages_denied_total", "counter")
	e.writeMetric(w, "messages_denied_total", labels, float64(snap.MessagesDenied))

	e.writeHelp(w, "envelopes_live", "Messages currently held in the store")
	e.writeType(w, "envelopes_live", "gauge")
	e.writeMetric(w, "envelopes_live", labels, float64(snap.EnvelopesLive))

	// --- Security Metrics ---
	e.writeHelp(w, "policy_blocks_total", "Total sends rejected by policy")
	e.writeType(w, "policy_blocks_total", "counter")
	e.writeMetric(w, "policy_blocks_total", labels, float64(snap.PolicyBlocks))

	e.writeHelp(w, "auth_failures_total", "Total AEAD authentication failures")
	e.writeType(w, "auth_failures_total", "counter")
	e.writeMetric(w, "auth_failures_total", labels, float64(snap.AuthFailures))

	e.writeHelp(w, "key_rotations_total", "Total recipient key rotations")
	e.writeType(w, "key_rotations_total", "counter")
	e.writeMetric(w, "key_rotations_total", labels, float64(snap.KeyRotations))

	e.writeHelp(w, "kem_only_derivations_total", "Total message keys derived without an ECDH contribution")
	e.writeType(w, "kem_only_derivations_total", "counter")
	e.writeMetric(w, "kem_only_derivations_total", labels, float64(snap.KEMOnlyFallback))

	// --- Error Metrics ---
	e.writeHelp(w, "encrypt_errors_total", "Total encryption errors")
	e.writeType(w, "encrypt_errors_total", "counter")
	e.writeMetric(w, "encrypt_errors_total", labels, float64(snap.EncryptErrors))

	e.writeHelp(w, "decrypt_errors_total", "Total decryption errors")
	e.writeType(w, "decrypt_errors_total", "counter")
	e.writeMetric(w, "decrypt_errors_total", labels, float64(snap.DecryptErrors))

	e.writeHelp(w, "store_errors_total", "Total envelope store errors")
	e.writeType(w, "store_errors_total", "counter")
	e.writeMetric(w, "store_errors_total", labels, float64(snap.StoreErrors))

	// --- Uptime ---
	e.writeHelp(w, "uptime_seconds", "Time since the collector was created")
	e.writeType(w, "uptime_seconds", "gauge")
	e.writeMetric(w, "uptime_seconds", labels, snap.Uptime.Seconds())

	// --- Histograms ---
	e.writeHistogram(w, "encrypt_duration_microseconds", "Hybrid encryption duration in microseconds", labels, snap.EncryptLatency)
	e.writeHistogram(w, "decrypt_duration_microseconds", "Hybrid decryption duration in microseconds", labels, snap.DecryptLatency)
	e.writeHistogram(w, "store_duration_microseconds", "Envelope store operation duration in microseconds", labels, snap.StoreLatency)
}

// writeHelp writes a HELP line.
func (e *PrometheusExporter) writeHelp(w io.Writer, name, help string) {
	fmt.Fprintf(w, "# HELP %s_%s %s\n", e.namespace, name, help)
}

// writeType writes a TYPE line.
func (e *PrometheusExporter) writeType(w io.Writer, name, typ string) {
	fmt.Fprintf(w, "# TYPE %s_%s %s\n", e.namespace, name, typ)
}

// writeMetric writes a single metric line.
func (e *PrometheusExporter) writeMetric(w io.Writer, name, labels string, value float64) {
	if labels != "" {
		fmt.Fprintf(w, "%s_%s{%s} %g\n", e.namespace, name, labels, value)
	} else {
		fmt.Fprintf(w, "%s_%s %g\n", e.namespace, name, value)
	}
}

// writeHistogram writes a histogram in Prometheus format.
func (e *PrometheusExporter) writeHistogram(w io.Writer, name, help, labels string, h HistogramSummary) {
	e.writeHelp(w, name, help)
	e.writeType(w, name, "histogram")

	fullName := e.namespace + "_" + name

	for _, b := range h.Buckets {
		le := fmt.Sprintf("%g", b.UpperBound)
		if math.IsInf(b.UpperBound, 1) {
			le = "+Inf"
		}
		if labels != "" {
			fmt.Fprintf(w, "%s_bucket{%s,le=\"%s\"} %d\n", fullName, labels, le, b.Count)
		} else {
			fmt.Fprintf(w, "%s_bucket{le=\"%s\"} %d\n", fullName, le, b.Count)
		}
	}

	if labels != "" {
		fmt.Fprintf(w, "%s_sum{%s} %g\n", fullName, labels, h.Sum)
		fmt.Fprintf(w, "%s_count{%s} %d\n", fullName, labels, h.Count)
	} else {
		fmt.Fprintf(w, "%s_sum %g\n", fullName, h.Sum)
		fmt.Fprintf(w, "%s_count %d\n", fullName, h.Count)
	}
}

// formatLabels converts Labels to Prometheus label format.
func (e *PrometheusExporter) formatLabels(labels Labels) string {
	if len(labels) == 0 {
		return ""
	}

	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		v := escapePromValue(labels[k])
		parts = append(parts, fmt.Sprintf("%s=\"%s\"", k, v))
	}

	return strings.Join(parts, ",")
}

// escapePromValue escapes a string for use as a Prometheus label value.
func escapePromValue(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "\"", "\\\"")
	s = strings.ReplaceAll(s, "\n", "\\n")
	return s
}

// ServePrometheus starts an HTTP server serving Prometheus metrics.
// This is a convenience function for simple use cases.
func ServePrometheus(addr string, c *Collector, namespace string) error {
	exp := NewPrometheusExporter(c, namespace)
	http.Handle("/metrics", exp.Handler())
	return http.ListenAndServe(addr, nil)
}
