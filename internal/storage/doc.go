// Package storage persists what the poll loop must remember between runs.
//
// It currently supports:
//   - The tracker state (last delivered record and the from_date cursor)
//   - A bounded delivery journal (sent and failed notifications)
//
// Drivers: "memory" (default, lost on exit), "file", "sqlite", "redis".
package storage
