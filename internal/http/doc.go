// Package http provides HTTP handlers and middleware for the queue API.
//
// The router exposes the following endpoints:
//   - POST /queue/entries: joins a customer to the queue. Body:
//     {"customer_id","service_type","notes"}. Responds 201 with the entry,
//     including its position and verification code.
//   - GET /queue/entries: lists the active (waiting/called) entries ordered
//     by position.
//   - GET /queue/entries/{id}: returns one entry.
//   - PATCH /queue/entries/{id}/status: applies a state transition. Body:
//     {"status","assigned_to","work_order_id"}.
//   - POST /queue/next: claims the next waiting entry for a technician.
//     Body: {"technician_id"}. Responds 404 when no entry is available.
//   - POST /queue/clear: cancels every active entry (end-of-day reset).
//   - GET /queue/status, PUT /queue/status: the singleton aggregate; PUT
//     accepts {"manual_override","operating_hours"}.
//   - GET /queue/codes/{code}: resolves a verification code to its active
//     entry. GET /queue/codes/{code}/valid returns {"valid":bool}.
//   - POST /queue/validate: validates a scanned QR payload and moves the
//     entry to in_service.
//   - GET /healthz: liveness probe including a store ping.
//   - GET /metrics: Prometheus exposition.
//
// Request/response DTOs live alongside their respective handlers so tests and
// documentation share the same ground truth.
package http
