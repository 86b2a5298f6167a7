// Package http provides the HTTP REST API implementation.
//
// The HTTP server exposes endpoints for:
//   - Run submission and cancellation
//   - Status and result queries
//   - Registered graph listing
//   - Health checks
//   - Prometheus metrics
package http
