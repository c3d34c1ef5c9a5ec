// Package orchestrator owns the batch task table and drives it through
// three bounded stages: submission fan-out, a single shared polling loop,
// and a synthesis worker pool. All table mutations happen under one mutex;
// network and disk I/O never run while it is held.
package orchestrator
