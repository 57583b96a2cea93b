// Package http provides the HTTP handlers and middleware for the
// synchronization API.
//
// The router exposes the following endpoints:
//   - POST /login: issues a session token. Body: {"username","password"}.
//     The token is returned in the body, the `X-Session-Token` header, and a
//     `session_token` cookie. POST /logout revokes it.
//   - GET /resources: the initial load, every entity visible to the principal
//     plus the synchronization point for later refreshes.
//   - POST /entities: resolves requested references together with their
//     transitive dependencies.
//   - POST /store: dispatches one changeset (stores, removals, preference
//     patches) and answers with the refresh the client must apply.
//   - GET /refresh?since=...: the incremental changeset since the given
//     synchronization point.
//   - POST /merge: folds duplicate allocatables into a canonical one.
//   - POST /identifiers?kind=...&count=...: reserves server-generated ids.
//   - POST /bindings/first, /bindings/all, /bindings/next-date,
//     POST /appointments/query, GET /conflicts: collision and availability
//     queries defined in binding_handler.go.
//   - /account/...: self-service endpoints for password, display name, and
//     email changes defined in account_handler.go.
//   - POST /restart: administrator-triggered server restart.
//
// Entities cross the wire inside kind-tagged envelopes; timestamps use the
// millisecond storage format. Request/response DTOs live alongside their
// handlers so tests and documentation share the same ground truth.
package http
