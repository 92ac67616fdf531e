// Package otel publishes authcore Engine metrics through an OpenTelemetry
// Meter. Counters become Int64ObservableCounter instruments and each
// latency bucket an Int64ObservableGauge; one callback reads the Engine
// snapshot per collection. The caller owns the MeterProvider.
package otel
