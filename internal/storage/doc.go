// Package storage persists small pieces of client state (panel visibility
// preferences) across dashboard sessions.
//
// Drivers:
//   - "memory": process-local map (lost on restart)
//   - "file":   snapshot + append-only journal, compacted periodically
//   - "sqlite": single-table key/value database
//
// Values are opaque bytes; callers own the encoding.
package storage
