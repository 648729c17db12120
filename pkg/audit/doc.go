// Package audit records administrative actions as structured events.
//
// Every mutating API call emits an Event describing who changed what in
// which tenant. Events are written asynchronously so audit I/O never sits on
// the request path; a failed write is logged and dropped rather than failing
// the request.
package audit
