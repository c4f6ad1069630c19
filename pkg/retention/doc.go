// Package retention implements Son-Father-Grandfather (SFG) backup rotation
// decisions.
//
// A Policy combines per-tier retention counts with the calendar boundaries
// that start a week and a month. For a given date it answers two questions
// per tier: is today a trigger date for the tier's pruning pass, and what is
// the age threshold below which the tier's snapshots are expired. Classify
// turns a threshold and a snapshot list into retain and expire sets.
//
// Nothing in this package performs I/O. Listing and deleting snapshots is
// the caller's job; see package storage for drivers.
//
//	policy, err := retention.NewPolicy(retention.Options{
//	    Mode:        retention.ModeBasic,
//	    WeekBegins:  "monday",
//	    MonthBegins: 1,
//	})
//	eval := policy.Evaluate(retention.DateOf(time.Now()))
//	decision, result, err := eval.Classify(retention.Daily, snapshots)
package retention
