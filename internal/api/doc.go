// Package api serves lector over HTTP.
//
// NewIntakeRouter exposes the client routes: document upload and listing,
// chunk search, speech requests and task polling. Callers are identified by
// the X-Owner-ID header, set by the gateway in front of the service.
//
// NewHealthRouter exposes the operational endpoints of both binaries:
// liveness, readiness and consumer statistics.
package api
