// Package http provides HTTP handlers and middleware for the live class API.
//
// Every route except GET /healthz and POST /webhooks/meeting requires an
// `Authorization: Bearer <jwt>` header; RequireBearer resolves it into an
// application.Principal. The router exposes:
//   - POST /auth/tokens: administrators mint a token for {"user_id","role"}.
//   - POST /schedules, GET /schedules?active=, GET /schedules/{id}: schedule
//     management exchanging the `scheduleDTO` payload from dto.go. Creation
//     answers with the schedule and its bootstrapped demo session.
//   - PATCH /schedules/{id}: partial edit of days, times, prices, end date
//     (or clear_end_date) and is_active.
//   - POST /schedules/{id}/deactivate, GET /schedules/{id}/preview?weeks=.
//   - POST /schedules/{id}/subscriptions, GET /subscriptions?schedule_id=:
//     entitlement purchase with an attached payment confirmation.
//   - GET /payments?schedule_id=&student_id=&status=&from=&to=: admin ledger.
//   - GET /sessions?schedule_id=&status=&from=&to=&limit=, GET /sessions/upcoming.
//   - POST /sessions/{id}/join, /complete and /cancel.
//   - POST /sessions/{id}/reschedule-requests, GET /reschedule-requests?status=,
//     POST /reschedule-requests/{id}/approve and /deny.
//   - GET /analytics?scope=&id=&from=&to=.
//   - POST /admin/materialize?window_days=, POST /admin/jobs/{name}.
//   - POST /webhooks/meeting: presence callbacks signed with the hex
//     HMAC-SHA256 of the body in X-Meeting-Signature.
//
// Service errors map onto status codes in responder.go: validation 422,
// conflicts and invalid state 409, access denials and missing permissions 403,
// unknown resources 404, meeting provisioning failures 503.
package http
