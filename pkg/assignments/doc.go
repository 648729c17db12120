// Package assignments maintains the directed membership graph between
// groups, roles, permissions, and users.
//
// Every edge is stored twice: under a forward key (parent-indexed,
// answering "what does X have") and under an inverse key (child-indexed,
// answering "who has Y"). The two writes are applied in a single atomic
// batch so the graph can never hold only half an edge. The doubled write
// cost buys O(1) partition lookups in both directions, which are the hot
// queries of the consuming authorization service.
//
// Cascade removal of a parent's outgoing edges is the one operation that
// is not fully transactional: it deletes edge pairs one batch at a time
// and reports a CleanupError if it stops partway. By then the parent
// entity is usually already gone upstream, so the error is a signal for
// follow-up, not something to retry blindly.
package assignments
