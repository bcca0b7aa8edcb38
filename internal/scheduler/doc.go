// Package scheduler runs a job on an interval or a cron schedule.
//
// Runs never overlap: interval schedules wait the full interval after a run
// finishes, cron schedules skip a tick while the previous run is active.
package scheduler
