// Package qlog provides the structured diagnostic logging used across the
// planner and executor. These logs are opaque strings, not part of the
// query contract (spec.md §6).
package qlog

import "github.com/sirupsen/logrus"

// Log is the package-level logger. Callers may swap it (e.g. in tests) to
// capture output or silence it.
var Log = logrus.New()

func init() {
	Log.SetLevel(logrus.WarnLevel)
}

// ForPartition returns a logger entry scoped to one partition's compilation,
// mirroring the per-partition column enumeration the original engine prints
// at the start of run/run_aggregate.
func ForPartition(partition, partitionLength int) *logrus.Entry {
	return Log.WithFields(logrus.Fields{
		"partition":       partition,
		"partitionLength": partitionLength,
	})
}
