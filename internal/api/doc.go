// Package api defines wire-format types and converters shared by the daemon's
// HTTP status API and the CLI's --json output. It translates queue rows and
// health reports into transport-friendly DTOs so consumers do not couple to
// internal types.
//
// # Key Types
//
// QueueRow: transport representation of a match queue row, including lease
// state and resolution outputs.
//
// QueueHealth / DatabaseHealth: aggregate counters and store diagnostics.
//
// DaemonStatus: lock, store and reclaim information for a running daemon.
//
// # Design Notes
//
// DTOs use camelCase JSON tags. Status, source and review flags are exposed
// as lowercase strings and booleans. Timestamps use RFC3339 with
// milliseconds in UTC. Nil pointers in queue rows become omitted fields
// rather than zero values so "no quantity" and "quantity 0" stay distinct.
package api
