// Package bitable reads task rows from a Feishu Bitable table and writes
// task status back to it. The table is the system of record for operators;
// the orchestrator treats it as a best-effort status sink.
package bitable
