// Package store persists the named access-control entities (roles and
// permissions) and defines the error taxonomy shared by the rest of the
// asset store.
//
// Entities are keyed by (tenant, kind, name). Creation is guarded by a
// conditional write on the backend rather than a read-then-insert, so two
// concurrent creates of the same name cannot both succeed. Names are
// immutable identifiers once assigned; updates only touch the description.
//
// The package ships an in-memory backend suitable for tests and local
// development. The production backend lives in the store/dynamo subpackage.
package store
