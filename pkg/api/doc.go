// Package api exposes the HTTP surface of the service.
//
// All routes are tenant-scoped under /api/v1/tenants/{tenant}. Handlers
// translate store errors into a fixed status mapping: duplicate keys and
// write conflicts map to 409, missing keys and versions to 404, validation
// failures to 400. A partially completed cascade still reports 200, with a
// warning body describing what was left behind.
//
// Mutating handlers emit audit events asynchronously; audit I/O never sits
// on the request path.
package api
