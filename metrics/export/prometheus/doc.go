// Package prometheus exposes examauth metrics as a client_golang collector.
//
// [NewCollector] wraps an [examauth.Engine]. Counters are published as
// examauth_*_total and latency histograms as examauth_*_latency_seconds.
// Nothing is registered on the default registry; callers register the
// collector themselves or mount [Collector.Handler].
package prometheus
