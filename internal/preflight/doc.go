// Package preflight provides readiness checks for the filesystem paths and
// queue store that larder depends on.
//
// The daemon and the worker command call RunAll before starting and refuse
// to run when a required check fails. "larder queue health" prints the same
// results next to the store diagnostics.
package preflight
