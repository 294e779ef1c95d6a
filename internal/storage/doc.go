// Package storage persists session records.
//
// Open selects the backend from the configured driver:
//
//   - memory: records live in the process (session.MemoryStore)
//   - sqlite: a local file through modernc.org/sqlite
//   - postgres: a shared database through github.com/lib/pq
//
// Both SQL backends keep one row per proxy in the sessions table.
package storage
