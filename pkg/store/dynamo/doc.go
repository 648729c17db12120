// Package dynamo persists entities, assignment edges, and policy version
// chains in DynamoDB.
//
// Three tables back the three stores:
//
//   - Entities: pk = TENANT#<tenant>#KIND#<kind>, sk = <name>. Inserts are
//     conditional puts so uniqueness never needs a read-before-write.
//   - Edges: every edge is stored twice, a forward record keyed by parent
//     and an inverse record keyed by child, written in one transaction so
//     the two indexes cannot diverge.
//   - Versions: pk = TENANT#<tenant>#POLICY#<id>, sk = <version>. Appends
//     are transactional: the new row's version number must be unused and the
//     prior active row is flipped inactive in the same batch. A sparse
//     active_tenant attribute feeds a GSI that serves tenant-wide active
//     policy queries without scanning history.
//
// Failed conditions surface as the store package's sentinel errors, never as
// partial writes.
package dynamo
