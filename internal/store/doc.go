// Package store provides the key-value backends for form history.
//
// Store is SQLite-backed and durable; Memory is process-local. Both
// implement history.Backend: Get, Put and Delete over text values, plus
// Keys for listing by prefix.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Two drivers are linked in: "sqlite3" (github.com/mattn/go-sqlite3, cgo,
// the default) and "sqlite" (modernc.org/sqlite, pure Go). Select with
// WithDriver.
//
// All listings use ORDER BY key COLLATE BINARY so output is identical
// across drivers.
package store
