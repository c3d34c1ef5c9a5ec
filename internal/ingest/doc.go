// Package ingest converts external inputs into task parameters: pending
// rows fetched from the source table, or a local JSON tasks file.
package ingest
