package availability

import "slices"

// Validate checks the preconditions Compute relies on:
//   - every interval ends strictly after it starts;
//   - a participant's intervals never overlap (touching is allowed, the
//     resulting segments are fused by Merge);
//   - participant ids are unique;
//   - two distinct participants never share a display name.
//
// The first violation found is returned as an *InvariantViolation.
func Validate(participants []Participant) error {
	ids := make(map[string]struct{}, len(participants))
	names := make(map[string]string, len(participants))
	for _, p := range participants {
		if _, dup := ids[p.ID]; dup {
			return violation(p, "duplicate participant id")
		}
		ids[p.ID] = struct{}{}
		if other, dup := names[p.Name]; dup {
			return violation(p, "display name already used by participant %s", other)
		}
		names[p.Name] = p.ID

		if err := validateIntervals(p); err != nil {
			return err
		}
	}
	return nil
}

func validateIntervals(p Participant) error {
	sorted := sortedIntervals(p.Intervals)
	for i, iv := range sorted {
		if !iv.Valid() {
			return violation(p, "interval %s does not end after it starts", iv)
		}
		if i == 0 {
			continue
		}
		if prev := sorted[i-1]; iv.Start.Before(prev.End) {
			return violation(p, "interval %s overlaps %s", iv, prev)
		}
	}
	return nil
}

// sortedIntervals returns a normalized copy ordered by start, then end.
func sortedIntervals(in []Interval) []Interval {
	out := make([]Interval, len(in))
	for i, iv := range in {
		out[i] = iv.Normalize()
	}
	slices.SortFunc(out, func(a, b Interval) int {
		if c := a.Start.Compare(b.Start); c != 0 {
			return c
		}
		return a.End.Compare(b.End)
	})
	return out
}
