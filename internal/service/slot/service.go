package slot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alexishuch/availability-poll/internal/domain"
	"github.com/alexishuch/availability-poll/internal/repository"
)

// Publisher is notified when a poll's common slots may have changed.
type Publisher interface {
	Publish(ctx context.Context, pollID, reason string)
}

// CreateInput describes a new availability range. End is exclusive.
type CreateInput struct {
	ParticipantID string
	Start         time.Time
	End           time.Time
}

// Service manages participant availability.
type Service struct {
	slots        repository.SlotRepository
	participants repository.ParticipantRepository
	polls        repository.PollRepository
	publisher    Publisher
	logger       *slog.Logger
	now          func() time.Time
}

// New constructs a slot service.
func New(slots repository.SlotRepository, participants repository.ParticipantRepository, polls repository.PollRepository, publisher Publisher, logger *slog.Logger) Service {
	return Service{slots: slots, participants: participants, polls: polls, publisher: publisher, logger: logger, now: time.Now}
}

var (
	errMissingID           = domain.Invalid("slot id required")
	errMissingParticipant  = domain.Invalid("participant id required")
	errEmptyRange          = domain.Invalid("slot end must be after slot start")
	errBeforeCreation      = domain.Invalid("slot cannot start before the poll was created")
	errBeforeWindow        = domain.Invalid("slot cannot start before the poll start date")
	errAfterWindow         = domain.Invalid("slot cannot end after the poll end date")
	errOverlap             = domain.Conflict("participant already has an overlapping or identical slot")
	errSlotNotFound        = domain.NotFound("slot not found")
	errParticipantNotFound = domain.NotFound("participant not found")
)

// Create stores an availability slot after checking it against the poll window.
func (s Service) Create(ctx context.Context, input CreateInput) (*domain.Slot, error) {
	participantID := strings.TrimSpace(input.ParticipantID)
	if participantID == "" {
		return nil, errMissingParticipant
	}
	start, end := input.Start.UTC(), input.End.UTC()
	if !end.After(start) {
		return nil, errEmptyRange
	}

	participant, err := s.participants.GetParticipantByID(ctx, participantID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, errParticipantNotFound
		}
		return nil, err
	}
	poll, err := s.polls.GetPollByID(ctx, participant.PollID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, errParticipantNotFound
		}
		return nil, err
	}
	if err := checkWindow(poll, start, end); err != nil {
		return nil, err
	}

	slot := &domain.Slot{
		ID:            uuid.NewString(),
		ParticipantID: participant.ID,
		Start:         start,
		End:           end,
		CreatedAt:     s.now().UTC(),
	}
	if err := s.slots.CreateSlot(ctx, slot); err != nil {
		switch {
		case errors.Is(err, repository.ErrConflict):
			return nil, errOverlap
		case errors.Is(err, repository.ErrNotFound):
			return nil, errParticipantNotFound
		case errors.Is(err, repository.ErrInvalidArgument):
			return nil, errEmptyRange
		}
		return nil, fmt.Errorf("create slot: %w", err)
	}
	s.logger.Info("slot added", "poll_id", poll.ID, "participant_id", participant.ID, "slot_id", slot.ID)
	s.publisher.Publish(ctx, poll.ID, "slot_added")
	return slot, nil
}

// Get returns a slot by identifier.
func (s Service) Get(ctx context.Context, id string) (*domain.Slot, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errMissingID
	}
	slot, err := s.slots.GetSlotByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, errSlotNotFound
		}
		return nil, err
	}
	return slot, nil
}

// ListByParticipant returns a participant's slots in chronological order.
func (s Service) ListByParticipant(ctx context.Context, participantID string) ([]domain.Slot, error) {
	if _, err := s.participants.GetParticipantByID(ctx, participantID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, errParticipantNotFound
		}
		return nil, err
	}
	return s.slots.ListSlotsByParticipant(ctx, participantID)
}

// Delete removes a slot.
func (s Service) Delete(ctx context.Context, id string) error {
	slot, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	participant, err := s.participants.GetParticipantByID(ctx, slot.ParticipantID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return err
	}
	if err := s.slots.DeleteSlot(ctx, slot.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return errSlotNotFound
		}
		return err
	}
	s.logger.Info("slot removed", "participant_id", slot.ParticipantID, "slot_id", slot.ID)
	if participant != nil {
		s.publisher.Publish(ctx, participant.PollID, "slot_removed")
	}
	return nil
}

// checkWindow enforces the poll's date window on a half-open slot.
func checkWindow(poll *domain.Poll, start, end time.Time) error {
	if start.Before(poll.CreatedAt) {
		return errBeforeCreation
	}
	if windowStart, ok := poll.WindowStart(); ok && start.Before(windowStart) {
		return errBeforeWindow
	}
	if windowEnd, ok := poll.WindowEnd(); ok && end.After(windowEnd) {
		return errAfterWindow
	}
	return nil
}
