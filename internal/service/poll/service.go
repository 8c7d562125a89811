package poll

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/alexishuch/availability-poll/internal/availability"
	"github.com/alexishuch/availability-poll/internal/domain"
	"github.com/alexishuch/availability-poll/internal/repository"
)

const maxNameLength = 50

// Order selects how common slots are presented.
type Order string

const (
	// OrderStart lists slots chronologically.
	OrderStart Order = "start"
	// OrderParticipants lists the largest groups first, then chronologically.
	OrderParticipants Order = "participants"
)

// ParseOrder validates a client supplied order. Empty means OrderStart.
func ParseOrder(value string) (Order, error) {
	switch Order(strings.ToLower(strings.TrimSpace(value))) {
	case "", OrderStart:
		return OrderStart, nil
	case OrderParticipants:
		return OrderParticipants, nil
	}
	return "", domain.Invalid("order must be %q or %q", OrderStart, OrderParticipants)
}

// CreateInput encapsulates poll creation attributes.
type CreateInput struct {
	Name      string
	StartDate *time.Time
	EndDate   *time.Time
}

// UpdateInput lists the attributes to change; nil fields are left as-is.
type UpdateInput struct {
	Name      *string
	StartDate *time.Time
	EndDate   *time.Time
}

// Detail is a poll with its participants and computed common slots.
type Detail struct {
	Poll         domain.Poll
	Participants []domain.Participant
	CommonSlots  []availability.Slot
}

// Option customises a Service.
type Option func(*Service)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithComputeObserver registers a callback receiving the duration of every
// common slot computation.
func WithComputeObserver(observe func(time.Duration)) Option {
	return func(s *Service) {
		s.observe = observe
	}
}

// Service orchestrates poll management and common slot computation.
type Service struct {
	polls        repository.PollRepository
	participants repository.ParticipantRepository
	slots        repository.SlotRepository
	logger       *slog.Logger
	now          func() time.Time
	observe      func(time.Duration)
}

// New returns a poll service.
func New(polls repository.PollRepository, participants repository.ParticipantRepository, slots repository.SlotRepository, logger *slog.Logger, opts ...Option) Service {
	s := Service{polls: polls, participants: participants, slots: slots, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

var (
	errInvalidName  = domain.Invalid("poll name must be between 1 and %d characters", maxNameLength)
	errPastStart    = domain.Invalid("poll start date cannot be in the past")
	errEndBefore    = domain.Invalid("poll end date must be after start date")
	errMissingID    = domain.Invalid("poll id required")
	errPollNotFound = domain.NotFound("poll not found")
)

// Create registers a new poll.
func (s Service) Create(ctx context.Context, input CreateInput) (*domain.Poll, error) {
	name, err := normalizeName(input.Name)
	if err != nil {
		return nil, err
	}
	poll := &domain.Poll{
		ID:        uuid.NewString(),
		Name:      name,
		StartDate: datePtr(input.StartDate),
		EndDate:   datePtr(input.EndDate),
		CreatedAt: s.now().UTC(),
	}
	if err := s.checkWindow(poll, input.StartDate != nil); err != nil {
		return nil, err
	}
	if err := s.polls.CreatePoll(ctx, poll); err != nil {
		return nil, fmt.Errorf("create poll: %w", err)
	}
	s.logger.Info("poll created", "poll_id", poll.ID)
	return poll, nil
}

// List returns every poll, newest first.
func (s Service) List(ctx context.Context) ([]domain.Poll, error) {
	return s.polls.ListPolls(ctx)
}

// Get returns a poll by identifier.
func (s Service) Get(ctx context.Context, id string) (*domain.Poll, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errMissingID
	}
	poll, err := s.polls.GetPollByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, errPollNotFound
		}
		return nil, err
	}
	return poll, nil
}

// Update applies the non-nil fields of input.
func (s Service) Update(ctx context.Context, id string, input UpdateInput) (*domain.Poll, error) {
	poll, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if input.Name != nil {
		name, err := normalizeName(*input.Name)
		if err != nil {
			return nil, err
		}
		poll.Name = name
	}
	if input.StartDate != nil {
		poll.StartDate = datePtr(input.StartDate)
	}
	if input.EndDate != nil {
		poll.EndDate = datePtr(input.EndDate)
	}
	if err := s.checkWindow(poll, input.StartDate != nil); err != nil {
		return nil, err
	}
	if err := s.polls.UpdatePoll(ctx, poll); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, errPollNotFound
		}
		return nil, fmt.Errorf("update poll: %w", err)
	}
	s.logger.Info("poll updated", "poll_id", poll.ID)
	return poll, nil
}

// Delete removes a poll with its participants and slots.
func (s Service) Delete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return errMissingID
	}
	if err := s.polls.DeletePoll(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return errPollNotFound
		}
		return err
	}
	s.logger.Info("poll deleted", "poll_id", id)
	return nil
}

// Detail loads a poll, its participants and its common slots. The three
// reads run concurrently.
func (s Service) Detail(ctx context.Context, id string) (*Detail, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errMissingID
	}
	var (
		detail Detail
		poll   *domain.Poll
		roster []domain.ParticipantSlots
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		poll, err = s.Get(gctx, id)
		return err
	})
	g.Go(func() error {
		var err error
		detail.Participants, err = s.participants.ListParticipantsByPoll(gctx, id)
		return err
	})
	g.Go(func() error {
		var err error
		roster, err = s.slots.ListPollAvailability(gctx, id)
		return err
	})
	if err := g.Wait(); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, errPollNotFound
		}
		return nil, err
	}
	slots, err := s.compute(id, roster)
	if err != nil {
		return nil, err
	}
	detail.Poll = *poll
	detail.CommonSlots = slots
	return &detail, nil
}

// CommonSlots returns the windows where at least two participants of the
// poll are available, in the requested order.
func (s Service) CommonSlots(ctx context.Context, id string, order Order) ([]availability.Slot, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	participants, err := s.slots.ListPollAvailability(ctx, id)
	if err != nil {
		return nil, err
	}
	slots, err := s.compute(id, participants)
	if err != nil {
		return nil, err
	}
	if order == OrderParticipants {
		return availability.RankByParticipants(slots), nil
	}
	return slots, nil
}

func (s Service) compute(pollID string, participants []domain.ParticipantSlots) ([]availability.Slot, error) {
	start := time.Now()
	slots, err := availability.Compute(toEngine(participants))
	if s.observe != nil {
		s.observe(time.Since(start))
	}
	if err != nil {
		// Stored slots violate the engine preconditions: data integrity bug.
		s.logger.Error("common slot computation failed", "poll_id", pollID, "error", err)
		return nil, fmt.Errorf("compute common slots for poll %s: %w", pollID, err)
	}
	return slots, nil
}

func toEngine(participants []domain.ParticipantSlots) []availability.Participant {
	return lo.Map(participants, func(p domain.ParticipantSlots, _ int) availability.Participant {
		return availability.Participant{
			ID:   p.ParticipantID,
			Name: p.Name,
			Intervals: lo.Map(p.Slots, func(slot domain.Slot, _ int) availability.Interval {
				return availability.HalfOpen(slot.Start, slot.End)
			}),
		}
	})
}

// checkWindow validates the poll date window. The start date may only be
// in the past when it was not changed by the current request.
func (s Service) checkWindow(poll *domain.Poll, startChanged bool) error {
	if poll.StartDate != nil && startChanged && poll.StartDate.Before(domain.Date(s.now())) {
		return errPastStart
	}
	if poll.StartDate != nil && poll.EndDate != nil && poll.EndDate.Before(*poll.StartDate) {
		return errEndBefore
	}
	return nil
}

func normalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if n := utf8.RuneCountInString(name); n == 0 || n > maxNameLength {
		return "", errInvalidName
	}
	return name, nil
}

func datePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	d := domain.Date(*t)
	return &d
}
