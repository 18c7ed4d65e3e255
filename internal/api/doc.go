// Package api implements the controller's HTTP status and manual trigger API.
//
// Endpoints (all under /api/v1):
//   - GET  /health   liveness and version
//   - GET  /status   session, trigger state, scene in progress, runtime stats
//   - GET  /scenes   the loaded scene table with selection probabilities
//   - POST /trigger  start a scene now; 409 unless armed, 429 when rate limited
//
// The API is read-mostly and unauthenticated; bind it to the installation's
// local network.
package api
