// Package daemon hosts the long-running larder process.
//
// It takes a flock-based lock so only one instance sweeps a given data
// directory, then runs the lease reclaimer and the legacy flag backfill
// schedule until stopped. When daemon.api_bind is set it also serves a small
// read-only JSON API with queue status and health.
//
// Keep orchestration here: the sweep and backfill logic live in their own
// packages while the daemon owns startup, shutdown and status.
package daemon
