// Package jobs holds per-job state and drives a conversion through its
// lifecycle.
//
// A Registry entry is created when a conversion is accepted, updated by
// engine progress callbacks, and removed once the outcome is known and the
// artifact (if any) has been delivered. A Limiter bounds how many engine
// processes run at once.
package jobs
