package poa

import "time"

// unixTime converts a unix-seconds timestamp into the time.Time the
// events package's Sink.Emit expects.
func unixTime(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}
