// Package history archives finished batch runs to a SQLite database so
// operators can audit outcomes after the in-memory task table is gone.
package history
