package domain

import "time"

// Slot is one declared availability range [Start, End) of a participant.
type Slot struct {
	ID            string
	ParticipantID string
	Start         time.Time
	End           time.Time
	CreatedAt     time.Time
}

// ParticipantSlots bundles a participant with all of their slots.
type ParticipantSlots struct {
	ParticipantID string
	Name          string
	Slots         []Slot
}
