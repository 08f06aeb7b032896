package availability

import (
	"context"
	"time"
)

type Interval struct {
	ID    string
	Start time.Time
	End   time.Time
}

// Overlaps is the half-open intersection test: [aStart,aEnd) and [bStart,bEnd)
// intersect iff aStart < bEnd && bStart < aEnd. Back-to-back windows do not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

// FirstOverlap returns the first interval in busy that intersects [start, end),
// ignoring the one whose ID equals excludeID.
func FirstOverlap(start, end time.Time, busy []Interval, excludeID string) (Interval, bool) {
	for _, b := range busy {
		if excludeID != "" && b.ID == excludeID {
			continue
		}
		if Overlaps(start, end, b.Start, b.End) {
			return b, true
		}
	}
	return Interval{}, false
}

// IntervalSource lists a practitioner's active (available or scheduled)
// windows that intersect [from, to).
type IntervalSource interface {
	ActiveIntervals(ctx context.Context, practitionerID string, from, to time.Time) ([]Interval, error)
}

type ConflictDetector struct {
	src IntervalSource
}

func NewConflictDetector(src IntervalSource) *ConflictDetector {
	return &ConflictDetector{src: src}
}

// HasConflict reports whether [start, end) overlaps any other active window of
// the practitioner. Reads are never cached.
func (d *ConflictDetector) HasConflict(ctx context.Context, practitionerID string, start, end time.Time, excludeID string) (bool, error) {
	busy, err := d.src.ActiveIntervals(ctx, practitionerID, start, end)
	if err != nil {
		return false, err
	}
	_, found := FirstOverlap(start, end, busy, excludeID)
	return found, nil
}
