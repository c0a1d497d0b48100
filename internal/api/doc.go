// Package api implements the local HTTP status server for shadowsync.
//
// This package provides:
//   - GET /healthz: engine state plus database, broker and telemetry checks
//   - GET /shadow: the last submitted report document and engine counters
//   - GET /journal/deltas and GET /journal/acks: journal queries
//   - GET /metrics: Prometheus exposition
//   - Middleware stack (request ID, logging, recovery)
//
// # Architecture
//
// The server never touches the binding registry. It reads the engine through
// the atomically published shadow.Snapshot, so handlers run on HTTP
// goroutines without racing the poll loop.
//
// # Graceful Degradation
//
// The journal and every health check are optional. A missing journal answers
// 503 on the journal routes; a failing check marks /healthz degraded but only
// a stopped or failed engine makes it unavailable.
package api
