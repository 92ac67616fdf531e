// Package prometheus renders authcore Engine metrics in the Prometheus
// text exposition format. Mount [Exporter.Handler] at the scrape path;
// nothing is registered globally.
package prometheus
