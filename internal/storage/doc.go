// Package storage persists the run history written by the task engine.
//
// Backends:
//   - "file": JSON Lines file, no dependencies
//   - "sqlite": SQLite database file (modernc.org/sqlite)
package storage
