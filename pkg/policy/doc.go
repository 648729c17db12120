// Package policy manages the append-only version history of access-control
// policies.
//
// Each logical policy is a chain of immutable version rows numbered from 1.
// Every mutation appends a new row and flips the single active pointer;
// nothing is ever rewritten in place, so the full history stays available
// for audit and any past version can be restored. Rollback follows the same
// rule: it manufactures a new latest version whose content is copied from
// the target, rather than reactivating the old row.
//
// Concurrent writers to the same policy are resolved optimistically: the
// append is conditional on the observed current version still being the
// newest. The loser of a race sees ErrConflict and the engine retries a
// bounded number of times with fresh state before surfacing it.
package policy
