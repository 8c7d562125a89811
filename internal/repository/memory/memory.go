// Package memory keeps polls in process memory. It mirrors the constraints of
// the PostgreSQL schema and backs local runs and handler tests.
package memory

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/samber/lo"

	"github.com/alexishuch/availability-poll/internal/domain"
	"github.com/alexishuch/availability-poll/internal/repository"
)

// Repository implements the repository interfaces on maps.
type Repository struct {
	mu           sync.RWMutex
	polls        map[string]domain.Poll
	participants map[string]domain.Participant
	slots        map[string]domain.Slot
}

// New returns an empty repository.
func New() *Repository {
	return &Repository{
		polls:        make(map[string]domain.Poll),
		participants: make(map[string]domain.Participant),
		slots:        make(map[string]domain.Slot),
	}
}

var (
	_ repository.PollRepository        = (*Repository)(nil)
	_ repository.ParticipantRepository = (*Repository)(nil)
	_ repository.SlotRepository        = (*Repository)(nil)
)

func (r *Repository) CreatePoll(_ context.Context, poll *domain.Poll) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.polls[poll.ID]; ok {
		return repository.ErrConflict
	}
	r.polls[poll.ID] = *poll
	return nil
}

func (r *Repository) GetPollByID(_ context.Context, id string) (*domain.Poll, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	poll, ok := r.polls[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &poll, nil
}

func (r *Repository) ListPolls(context.Context) ([]domain.Poll, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	polls := lo.Values(r.polls)
	slices.SortFunc(polls, func(a, b domain.Poll) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return polls, nil
}

func (r *Repository) UpdatePoll(_ context.Context, poll *domain.Poll) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.polls[poll.ID]
	if !ok {
		return repository.ErrNotFound
	}
	current.Name, current.StartDate, current.EndDate = poll.Name, poll.StartDate, poll.EndDate
	r.polls[poll.ID] = current
	return nil
}

// DeletePoll removes the poll and cascades to its participants and slots.
func (r *Repository) DeletePoll(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.polls[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.polls, id)
	for pid, p := range r.participants {
		if p.PollID == id {
			r.deleteParticipantLocked(pid)
		}
	}
	return nil
}

func (r *Repository) CreateParticipant(_ context.Context, participant *domain.Participant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.polls[participant.PollID]; !ok {
		return repository.ErrNotFound
	}
	if r.nameTakenLocked(participant.PollID, participant.ID, participant.Name) {
		return repository.ErrConflict
	}
	r.participants[participant.ID] = *participant
	return nil
}

func (r *Repository) GetParticipantByID(_ context.Context, id string) (*domain.Participant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	participant, ok := r.participants[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &participant, nil
}

func (r *Repository) ListParticipantsByPoll(_ context.Context, pollID string) ([]domain.Participant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.participantsLocked(pollID), nil
}

func (r *Repository) UpdateParticipant(_ context.Context, participant *domain.Participant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.participants[participant.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if r.nameTakenLocked(current.PollID, current.ID, participant.Name) {
		return repository.ErrConflict
	}
	current.Name = participant.Name
	r.participants[current.ID] = current
	return nil
}

func (r *Repository) DeleteParticipant(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.participants[id]; !ok {
		return repository.ErrNotFound
	}
	r.deleteParticipantLocked(id)
	return nil
}

// CreateSlot rejects empty ranges and ranges overlapping another slot of the
// same participant, as the schema's check and exclusion constraints do.
func (r *Repository) CreateSlot(_ context.Context, slot *domain.Slot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.participants[slot.ParticipantID]; !ok {
		return repository.ErrNotFound
	}
	if !slot.End.After(slot.Start) {
		return repository.ErrInvalidArgument
	}
	for _, existing := range r.slots {
		if existing.ParticipantID == slot.ParticipantID &&
			slot.Start.Before(existing.End) && slot.End.After(existing.Start) {
			return repository.ErrConflict
		}
	}
	r.slots[slot.ID] = *slot
	return nil
}

func (r *Repository) GetSlotByID(_ context.Context, id string) (*domain.Slot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	slot, ok := r.slots[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &slot, nil
}

func (r *Repository) ListSlotsByParticipant(_ context.Context, participantID string) ([]domain.Slot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.slotsLocked(participantID), nil
}

func (r *Repository) DeleteSlot(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.slots[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.slots, id)
	return nil
}

func (r *Repository) ListPollAvailability(_ context.Context, pollID string) ([]domain.ParticipantSlots, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	participants := r.participantsLocked(pollID)
	slices.SortFunc(participants, func(a, b domain.Participant) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return lo.Map(participants, func(p domain.Participant, _ int) domain.ParticipantSlots {
		return domain.ParticipantSlots{ParticipantID: p.ID, Name: p.Name, Slots: r.slotsLocked(p.ID)}
	}), nil
}

func (r *Repository) participantsLocked(pollID string) []domain.Participant {
	participants := lo.Filter(lo.Values(r.participants), func(p domain.Participant, _ int) bool {
		return p.PollID == pollID
	})
	slices.SortFunc(participants, func(a, b domain.Participant) int {
		if c := cmp.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name)); c != 0 {
			return c
		}
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return participants
}

func (r *Repository) slotsLocked(participantID string) []domain.Slot {
	slots := lo.Filter(lo.Values(r.slots), func(s domain.Slot, _ int) bool {
		return s.ParticipantID == participantID
	})
	slices.SortFunc(slots, func(a, b domain.Slot) int {
		return a.Start.Compare(b.Start)
	})
	return slots
}

func (r *Repository) nameTakenLocked(pollID, selfID, name string) bool {
	return lo.SomeBy(lo.Values(r.participants), func(p domain.Participant) bool {
		return p.PollID == pollID && p.ID != selfID && strings.EqualFold(p.Name, name)
	})
}

func (r *Repository) deleteParticipantLocked(id string) {
	delete(r.participants, id)
	for sid, s := range r.slots {
		if s.ParticipantID == id {
			delete(r.slots, sid)
		}
	}
}
