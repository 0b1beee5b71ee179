package committer

import "time"

// Trigger decides when a periodic action (commit, window) is due. It is polled from a
// single loop and is not safe for concurrent use.
type Trigger interface {
	RecordProcessed(count int)
	Due(now time.Time) bool
	Reset(now time.Time)
}
