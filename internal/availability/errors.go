package availability

import (
	"errors"
	"fmt"
)

// ErrInvariantViolation marks input that breaks the engine's preconditions.
// It signals an upstream data-integrity bug, not a user error.
var ErrInvariantViolation = errors.New("availability: invariant violation")

// InvariantViolation describes which participant broke which precondition.
type InvariantViolation struct {
	ParticipantID string
	Participant   string
	Reason        string
}

func (e *InvariantViolation) Error() string {
	if e.ParticipantID == "" && e.Participant == "" {
		return fmt.Sprintf("%s: %s", ErrInvariantViolation, e.Reason)
	}
	return fmt.Sprintf("%s: participant %q (%s): %s", ErrInvariantViolation, e.Participant, e.ParticipantID, e.Reason)
}

func (e *InvariantViolation) Unwrap() error {
	return ErrInvariantViolation
}

func violation(p Participant, format string, args ...any) error {
	return &InvariantViolation{
		ParticipantID: p.ID,
		Participant:   p.Name,
		Reason:        fmt.Sprintf(format, args...),
	}
}
