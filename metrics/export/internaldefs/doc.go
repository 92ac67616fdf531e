// Package internaldefs holds the metric names, help strings and latency
// bucket bounds shared by the Prometheus and OpenTelemetry exporters, so
// both expose the same series for one Engine.
package internaldefs
