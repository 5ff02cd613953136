// Package observe provides observability primitives for the qshield library.
//
// The package includes:
//   - a Collector with counters and latency histograms for crypto and
//     message lifecycle operations
//   - Prometheus-compatible metrics export
//   - OpenTelemetry tracing support (behind the otel build tag)
//   - Structured logging with levels
//
// All types are safe for concurrent use. The library never logs plaintext,
// key material, or derived secrets; callers should follow the same rule when
// attaching fields.
package observe
