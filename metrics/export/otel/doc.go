// Package otel publishes greenauth counters and histograms through an
// OpenTelemetry meter.
//
// [NewExporter] registers an Int64ObservableCounter per counter and an
// Int64ObservableGauge per histogram bucket. One callback reads the engine
// snapshot on each collection cycle. Callers own the MeterProvider.
package otel
