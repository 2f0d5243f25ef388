// Package scheduler turns cron expressions into engine enqueues.
//
// It only triggers: each firing enqueues an engine.Task named after the schedule,
// and the engine decides whether and where it runs. Removing a schedule is how a
// task is paused; runs already queued or in flight are left alone.
package scheduler
