// Package availability computes the windows in which at least two poll
// participants are available at the same time.
//
// The computation is a linear pipeline: collect the distinct interval
// endpoints, cut the observed range into segments between consecutive
// endpoints, keep the segments shared by two or more participants and
// fuse adjacent segments that carry the same participant set. Every stage
// is exported so it can be exercised on its own; Compute chains them.
package availability

import (
	"fmt"
	"time"
)

// BoundKind tells whether an interval endpoint belongs to the interval.
type BoundKind uint8

const (
	Inclusive BoundKind = iota
	Exclusive
)

// Interval is a time range with explicit bound kinds. The engine only ever
// reasons about the half-open form [Start, End), see Normalize.
type Interval struct {
	Start     time.Time
	End       time.Time
	StartKind BoundKind
	EndKind   BoundKind
}

// HalfOpen returns the interval [start, end).
func HalfOpen(start, end time.Time) Interval {
	return Interval{Start: start, End: end, StartKind: Inclusive, EndKind: Exclusive}
}

// Closed returns the interval [start, end]. It normalizes to [start, end).
func Closed(start, end time.Time) Interval {
	return Interval{Start: start, End: end, StartKind: Inclusive, EndKind: Inclusive}
}

// Normalize returns the half-open form of the interval. Instants are kept
// as-is: a single instant carries no duration, so [a,b] and [a,b) cover
// the same time for scheduling purposes.
func (iv Interval) Normalize() Interval {
	return HalfOpen(iv.Start, iv.End)
}

// Valid reports whether End is strictly after Start.
func (iv Interval) Valid() bool {
	return iv.End.After(iv.Start)
}

// Overlaps reports whether the half-open forms of iv and other share a
// non-empty sub-range. Touching intervals do not overlap.
func (iv Interval) Overlaps(other Interval) bool {
	return iv.Start.Before(other.End) && iv.End.After(other.Start)
}

// Duration returns End - Start.
func (iv Interval) Duration() time.Duration {
	return iv.End.Sub(iv.Start)
}

func (iv Interval) String() string {
	left, right := "[", ")"
	if iv.StartKind == Exclusive {
		left = "("
	}
	if iv.EndKind == Inclusive {
		right = "]"
	}
	return fmt.Sprintf("%s%s, %s%s", left, iv.Start.Format(time.RFC3339Nano), iv.End.Format(time.RFC3339Nano), right)
}

// Participant is one poll participant together with the intervals during
// which they declared themselves available.
type Participant struct {
	ID        string
	Name      string
	Intervals []Interval
}

// Segment is a candidate half-open range between two consecutive boundaries.
type Segment struct {
	Start time.Time
	End   time.Time
}

// Slot is a window shared by at least MinParticipants participants.
// Names are distinct and sorted; Count always equals len(Names).
type Slot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Count int       `json:"count"`
	Names []string  `json:"names"`
}
