package participant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/alexishuch/availability-poll/internal/domain"
	"github.com/alexishuch/availability-poll/internal/repository"
)

const maxNameLength = 50

// Publisher is notified when a poll's common slots may have changed.
type Publisher interface {
	Publish(ctx context.Context, pollID, reason string)
}

// Service manages poll participants.
type Service struct {
	participants repository.ParticipantRepository
	polls        repository.PollRepository
	publisher    Publisher
	logger       *slog.Logger
	now          func() time.Time
}

// New constructs a participant service.
func New(participants repository.ParticipantRepository, polls repository.PollRepository, publisher Publisher, logger *slog.Logger) Service {
	return Service{participants: participants, polls: polls, publisher: publisher, logger: logger, now: time.Now}
}

var (
	errInvalidName         = domain.Invalid("participant name must be between 1 and %d characters", maxNameLength)
	errMissingID           = domain.Invalid("participant id required")
	errMissingPoll         = domain.Invalid("poll id required")
	errPollNotFound        = domain.NotFound("poll not found")
	errParticipantNotFound = domain.NotFound("participant not found")
	errDuplicateName       = domain.Conflict("a participant with this name already exists in the poll")
)

// Create adds a participant to a poll. Names are unique per poll, ignoring case.
func (s Service) Create(ctx context.Context, pollID, name string) (*domain.Participant, error) {
	pollID = strings.TrimSpace(pollID)
	if pollID == "" {
		return nil, errMissingPoll
	}
	name, err := normalizeName(name)
	if err != nil {
		return nil, err
	}
	if _, err := s.polls.GetPollByID(ctx, pollID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, errPollNotFound
		}
		return nil, err
	}

	participant := &domain.Participant{
		ID:        uuid.NewString(),
		PollID:    pollID,
		Name:      name,
		CreatedAt: s.now().UTC(),
	}
	if err := s.participants.CreateParticipant(ctx, participant); err != nil {
		switch {
		case errors.Is(err, repository.ErrConflict):
			return nil, errDuplicateName
		case errors.Is(err, repository.ErrNotFound):
			return nil, errPollNotFound
		}
		return nil, fmt.Errorf("create participant: %w", err)
	}
	s.logger.Info("participant joined", "poll_id", pollID, "participant_id", participant.ID)
	return participant, nil
}

// List returns the participants of a poll.
func (s Service) List(ctx context.Context, pollID string) ([]domain.Participant, error) {
	if _, err := s.polls.GetPollByID(ctx, pollID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, errPollNotFound
		}
		return nil, err
	}
	return s.participants.ListParticipantsByPoll(ctx, pollID)
}

// Get returns a participant by identifier.
func (s Service) Get(ctx context.Context, id string) (*domain.Participant, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errMissingID
	}
	participant, err := s.participants.GetParticipantByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, errParticipantNotFound
		}
		return nil, err
	}
	return participant, nil
}

// Rename changes a participant's display name.
func (s Service) Rename(ctx context.Context, id, name string) (*domain.Participant, error) {
	name, err := normalizeName(name)
	if err != nil {
		return nil, err
	}
	participant, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	participant.Name = name
	if err := s.participants.UpdateParticipant(ctx, participant); err != nil {
		switch {
		case errors.Is(err, repository.ErrConflict):
			return nil, errDuplicateName
		case errors.Is(err, repository.ErrNotFound):
			return nil, errParticipantNotFound
		}
		return nil, fmt.Errorf("rename participant: %w", err)
	}
	s.publisher.Publish(ctx, participant.PollID, "participant_renamed")
	return participant, nil
}

// Delete removes a participant and their slots.
func (s Service) Delete(ctx context.Context, id string) error {
	participant, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.participants.DeleteParticipant(ctx, participant.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return errParticipantNotFound
		}
		return err
	}
	s.logger.Info("participant removed", "poll_id", participant.PollID, "participant_id", participant.ID)
	s.publisher.Publish(ctx, participant.PollID, "participant_removed")
	return nil
}

func normalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if n := utf8.RuneCountInString(name); n == 0 || n > maxNameLength {
		return "", errInvalidName
	}
	return name, nil
}
