// Package main hosts the larder CLI entrypoint and command graph.
//
// The Cobra-based command tree gives operators direct access to the ingredient
// match queue: inspecting rows, enqueueing lines, claiming and resolving by
// hand, requeueing expired leases, running the legacy flag backfill, and
// checking store health. It also starts the long-running worker pool and the
// reclaim daemon.
//
// Keep this package lean: add functionality to the internal packages first,
// then surface it through dedicated commands or flags here.
package main
