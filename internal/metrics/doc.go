// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Attached components and handshake outcomes
//   - Handshake latency
//   - Outbound packet counts per sub-domain and send failures
package metrics
