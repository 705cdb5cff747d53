// Package pool runs batches of independent jobs under a concurrency
// bound with cooperative interruption.
//
// The bound is enforced with a weighted semaphore; jobs that were
// queued when an interruption arrived are marked Skipped while
// in-flight jobs run to completion, so a drained Outcome always
// accounts for every submitted job exactly once.
package pool
