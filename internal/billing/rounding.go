package billing

import "time"

const msPerMinute = int64(time.Minute / time.Millisecond)

// BilledMinutes converts an elapsed duration into chargeable minutes. Usage is
// rounded up to whole minutes with a floor of one, then up to the next
// multiple of roundingMinutes when that is greater than one. Zero and negative
// durations bill as the floor.
func BilledMinutes(elapsed time.Duration, roundingMinutes int) int64 {
	ms := elapsed.Milliseconds()
	minutes := int64(1)
	if ms > 0 {
		minutes = (ms + msPerMinute - 1) / msPerMinute
		if minutes < 1 {
			minutes = 1
		}
	}
	if roundingMinutes > 1 {
		r := int64(roundingMinutes)
		minutes = ((minutes + r - 1) / r) * r
	}
	return minutes
}
