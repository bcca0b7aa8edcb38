// Package storage persists the delivery ledger: which item locators have
// already been sent to which chat.
//
// Two backends are available:
//   - "file": a single JSON object rewritten atomically (temp file + rename)
//   - "sqlite": a SQLite database (modernc.org/sqlite, no cgo)
package storage
