package availability

import "slices"

// Compute returns the windows in which at least MinParticipants of the
// given participants are available, ascending by start. Input that breaks
// the preconditions listed on Validate yields an *InvariantViolation and
// no partial result. No participants or no intervals yield an empty,
// non-nil slice.
func Compute(participants []Participant) ([]Slot, error) {
	if err := Validate(participants); err != nil {
		return nil, err
	}
	segments := Segments(Boundaries(participants))
	return Merge(Count(segments, participants)), nil
}

// RankByParticipants orders slots with the largest group first and by
// start within a group size. It returns a copy and leaves slots untouched.
func RankByParticipants(slots []Slot) []Slot {
	ranked := slices.Clone(slots)
	slices.SortStableFunc(ranked, func(a, b Slot) int {
		if a.Count != b.Count {
			return b.Count - a.Count
		}
		return byStart(a, b)
	})
	return ranked
}
