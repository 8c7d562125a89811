package repository

import (
	"context"

	"github.com/alexishuch/availability-poll/internal/domain"
)

// PollRepository persists polls.
type PollRepository interface {
	CreatePoll(ctx context.Context, poll *domain.Poll) error
	GetPollByID(ctx context.Context, id string) (*domain.Poll, error)
	ListPolls(ctx context.Context) ([]domain.Poll, error)
	UpdatePoll(ctx context.Context, poll *domain.Poll) error
	DeletePoll(ctx context.Context, id string) error
}

// ParticipantRepository persists poll participants.
type ParticipantRepository interface {
	CreateParticipant(ctx context.Context, participant *domain.Participant) error
	GetParticipantByID(ctx context.Context, id string) (*domain.Participant, error)
	ListParticipantsByPoll(ctx context.Context, pollID string) ([]domain.Participant, error)
	UpdateParticipant(ctx context.Context, participant *domain.Participant) error
	DeleteParticipant(ctx context.Context, id string) error
}

// SlotRepository persists availability slots and loads a poll's
// availability for the intersection engine.
type SlotRepository interface {
	CreateSlot(ctx context.Context, slot *domain.Slot) error
	GetSlotByID(ctx context.Context, id string) (*domain.Slot, error)
	ListSlotsByParticipant(ctx context.Context, participantID string) ([]domain.Slot, error)
	DeleteSlot(ctx context.Context, id string) error
	ListPollAvailability(ctx context.Context, pollID string) ([]domain.ParticipantSlots, error)
}
