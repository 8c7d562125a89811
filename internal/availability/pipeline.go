package availability

import (
	"slices"
	"time"

	"github.com/samber/lo"
)

// MinParticipants is the number of simultaneously available participants
// a window needs before it counts as common availability.
const MinParticipants = 2

// Boundaries returns every distinct interval start and end, ascending.
// Instants are compared exactly.
func Boundaries(participants []Participant) []time.Time {
	var points []time.Time
	for _, p := range participants {
		for _, iv := range p.Intervals {
			points = append(points, iv.Start, iv.End)
		}
	}
	slices.SortFunc(points, time.Time.Compare)
	return slices.CompactFunc(points, time.Time.Equal)
}

// Segments pairs each boundary with its successor. The last boundary only
// closes the preceding segment; with fewer than two boundaries there is
// nothing to pair and the result is empty.
func Segments(boundaries []time.Time) []Segment {
	if len(boundaries) < 2 {
		return nil
	}
	out := make([]Segment, 0, len(boundaries)-1)
	for i := 1; i < len(boundaries); i++ {
		out = append(out, Segment{Start: boundaries[i-1], End: boundaries[i]})
	}
	return out
}

type tracked struct {
	name      string
	intervals []Interval
}

// track groups intervals by participant id, keeping first-seen order.
func track(participants []Participant) []tracked {
	byID := make(map[string]int, len(participants))
	out := make([]tracked, 0, len(participants))
	for _, p := range participants {
		i, ok := byID[p.ID]
		if !ok {
			i = len(out)
			byID[p.ID] = i
			out = append(out, tracked{name: p.Name})
		}
		for _, iv := range p.Intervals {
			out[i].intervals = append(out[i].intervals, iv.Normalize())
		}
	}
	return out
}

// Count keeps the segments during which at least MinParticipants distinct
// participants own an interval overlapping the segment. A participant
// whose interval only touches a segment edge is not counted.
func Count(segments []Segment, participants []Participant) []Slot {
	people := track(participants)
	var out []Slot
	for _, seg := range segments {
		window := HalfOpen(seg.Start, seg.End)
		present := lo.Filter(people, func(p tracked, _ int) bool {
			return lo.ContainsBy(p.intervals, window.Overlaps)
		})
		if len(present) < MinParticipants {
			continue
		}
		names := lo.Uniq(lo.Map(present, func(p tracked, _ int) string { return p.name }))
		slices.Sort(names)
		out = append(out, Slot{
			Start: seg.Start,
			End:   seg.End,
			Count: len(present),
			Names: names,
		})
	}
	return out
}

// Merge fuses slots that touch (one ends where the next starts) and carry
// the same participant names, transitively. Slots separated by a gap or
// holding a different group stay apart. The result is ordered by start
// and Merge(Merge(s)) equals Merge(s).
func Merge(slots []Slot) []Slot {
	sorted := slices.Clone(slots)
	slices.SortStableFunc(sorted, byStart)

	out := make([]Slot, 0, len(sorted))
	for _, s := range sorted {
		if n := len(out); n > 0 {
			last := &out[n-1]
			if last.End.Equal(s.Start) && slices.Equal(last.Names, s.Names) {
				last.End = s.End
				continue
			}
		}
		s.Names = slices.Clone(s.Names)
		out = append(out, s)
	}
	return out
}

func byStart(a, b Slot) int {
	if c := a.Start.Compare(b.Start); c != 0 {
		return c
	}
	return a.End.Compare(b.End)
}
