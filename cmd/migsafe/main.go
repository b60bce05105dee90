// Package main provides the migsafe CLI, a safety and integrity layer
// around Prisma's declarative migration workflow.
//
// The CLI supports:
//   - create: draft a migration via the schema tool, sanitize it, report
//   - drift: compare on-disk migration checksums against the ledger
//   - reconcile: write corrected checksums into the ledger after review
//   - scan: CI gate failing the build when a protected index is dropped
//     without a matching recreate
//
// Commands that touch the migration ledger (drift, reconcile) need a
// database URL via --db, config, or DATABASE_URL. create uses the ledger
// opportunistically for checksum reconciliation and works without one.
package main

func main() {
	Execute()
}
