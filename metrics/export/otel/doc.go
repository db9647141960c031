// Package otel exports examauth metrics through an OpenTelemetry meter.
//
// [NewExporter] registers one Int64ObservableCounter per engine counter and a
// set of gauges per latency histogram (one per cumulative bucket plus count
// and sum). The caller owns the MeterProvider.
package otel
