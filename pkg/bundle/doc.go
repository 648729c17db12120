// Package bundle exports a tenant's active policy set as a compressed
// archive for consumption by an external policy-enforcement engine.
//
// A bundle is a tar.gz whose entries are the active policy definitions,
// one file per policy named {policyID}.{ext}, plus a .manifest.json entry
// carrying the bundle revision and a sha256 digest per file so consumers
// can verify content integrity. The archive is assembled into a buffer and
// only returned once finalized; any failure discards the partial output
// and surfaces a single ExportError, never a truncated archive.
//
// The package also carries the delivery side: a two-level cache (in-process
// LRU in front of Redis) invalidated on policy writes, an S3 publisher,
// and a cron-driven scheduler that rebuilds and publishes bundles for a
// fixed set of tenants.
package bundle
