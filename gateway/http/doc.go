// Package http serves the item store over a JSON HTTP API.
//
// The edge is deliberately thin: it authenticates the request, resolves
// the scope from headers, decodes the wire shapes and hands off to the
// service layer, which owns all validation. Responses carry the item
// metadata envelope plus ETag headers so clients can drive optimistic
// concurrency with standard If-Match semantics.
//
// Routes:
//
//	GET    /v1/healthz           liveness, never touches the backend
//	GET    /v1/readyz            readiness from the health monitor
//	PUT    /v1/items/{key}       store a value
//	GET    /v1/items/{key}       fetch a value
//	DELETE /v1/items/{key}       remove a value
//	POST   /v1/items:batchGet    fetch up to the batch limit in one call
//	POST   /v1/items:batchPut    store up to the batch limit in one call
//	GET    /v1/items             list by prefix with cursor paging
package http
