// Package store provides the persistence layer for the reminder engine:
// typed collection access over a file or SQLite backend, plus whole-state
// export/import as one JSON document.
package store
