// Package scheduler registers named recurring jobs on top of robfig/cron.
//
// A name identifies at most one job: adding a job under an existing name
// replaces it, and Remove waits for an in-progress run of that job to return.
// Jobs run on the scheduler's own goroutines, so a slow job delays only its
// own next tick (overlapping ticks are skipped).
package scheduler
