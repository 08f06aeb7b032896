package availability

import "time"

// OpenStarts returns candidate start times in [windowStart, windowEnd) for a
// window of length duration, stepping by step, that do not intersect busy and
// do not start before now.
//
// All times are expected to be in the same location.
func OpenStarts(windowStart, windowEnd time.Time, duration, step time.Duration, busy []Interval, now time.Time) []time.Time {
	if duration <= 0 || step <= 0 {
		return nil
	}
	if !windowEnd.After(windowStart) || windowStart.Add(duration).After(windowEnd) {
		return nil
	}

	var starts []time.Time
	for t := windowStart; !t.Add(duration).After(windowEnd); t = t.Add(step) {
		if !t.After(now) {
			continue
		}
		if _, hit := FirstOverlap(t, t.Add(duration), busy, ""); !hit {
			starts = append(starts, t)
		}
	}
	return starts
}

// Suggest lists open starts for a local calendar day inside business hours.
func (b *BusinessHours) Suggest(day time.Time, duration, step time.Duration, busy []Interval, now time.Time) []time.Time {
	return OpenStarts(b.zone.At(day, b.open), b.zone.At(day, b.close), duration, step, busy, now)
}
