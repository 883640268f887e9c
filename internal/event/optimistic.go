package event

import "time"

// OptimisticWindow bounds how far a locally rendered message may drift
// from its server echo and still be treated as the same message
const OptimisticWindow = 5 * time.Second

// MatchesOptimistic reports whether a broadcast receive-message is the
// server echo of a message the client already rendered locally.
// Identical text sent twice within the window collapses into one.
func MatchesOptimistic(local, echoed Message) bool {
	if local.UserID != echoed.UserID || local.Content != echoed.Content {
		return false
	}
	d := echoed.Timestamp.Sub(local.Timestamp)
	if d < 0 {
		d = -d
	}
	return d <= OptimisticWindow
}
