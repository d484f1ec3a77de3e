// Package observability wires zap logging and Prometheus metrics for the
// FAR chat service. The Collector carries every counter and histogram the
// pipeline records, from HTTP totals down to per-stage latency.
package observability
