package postgres

import (
	"context"
	"time"

	"github.com/alexishuch/availability-poll/internal/domain"
	"github.com/alexishuch/availability-poll/internal/repository"
)

const (
	slotInsert = `INSERT INTO slots (id, participant_id, slot, created_at)
		VALUES ($1, $2, tstzrange($3, $4, '[)'), $5)`
	slotSelect = `SELECT id, participant_id, lower(slot), upper(slot), created_at FROM slots`
	// LEFT JOIN keeps participants without slots so callers see the whole roster.
	pollAvailabilitySelect = `SELECT p.id, p.name, s.id, lower(s.slot), upper(s.slot), s.created_at
		FROM participants p
		LEFT JOIN slots s ON s.participant_id = p.id
		WHERE p.poll_id = $1
		ORDER BY p.id, lower(s.slot)`
)

// CreateSlot stores an availability range. Ranges overlapping one of the
// participant's existing slots are rejected with repository.ErrConflict.
func (r *Repository) CreateSlot(ctx context.Context, slot *domain.Slot) error {
	_, err := r.pool.Exec(ctx, slotInsert,
		slot.ID,
		slot.ParticipantID,
		slot.Start.UTC(),
		slot.End.UTC(),
		slot.CreatedAt,
	)
	return translate(err, repository.ErrInvalidArgument)
}

// GetSlotByID fetches a slot.
func (r *Repository) GetSlotByID(ctx context.Context, id string) (*domain.Slot, error) {
	var s domain.Slot
	err := r.pool.QueryRow(ctx, slotSelect+` WHERE id = $1`, id).
		Scan(&s.ID, &s.ParticipantID, &s.Start, &s.End, &s.CreatedAt)
	if err != nil {
		return nil, translate(err, repository.ErrNotFound)
	}
	return &s, nil
}

// ListSlotsByParticipant returns a participant's slots in chronological order.
func (r *Repository) ListSlotsByParticipant(ctx context.Context, participantID string) ([]domain.Slot, error) {
	rows, err := r.pool.Query(ctx, slotSelect+` WHERE participant_id = $1 ORDER BY lower(slot)`, participantID)
	if err != nil {
		return nil, translate(err, repository.ErrNotFound)
	}
	defer rows.Close()

	slots := make([]domain.Slot, 0)
	for rows.Next() {
		var s domain.Slot
		if err := rows.Scan(&s.ID, &s.ParticipantID, &s.Start, &s.End, &s.CreatedAt); err != nil {
			return nil, err
		}
		slots = append(slots, s)
	}
	return slots, rows.Err()
}

// DeleteSlot removes a slot.
func (r *Repository) DeleteSlot(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM slots WHERE id = $1`, id)
	if err != nil {
		return translate(err, repository.ErrNotFound)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// ListPollAvailability returns every participant of the poll with their
// slots. Participants without slots are included with an empty list.
func (r *Repository) ListPollAvailability(ctx context.Context, pollID string) ([]domain.ParticipantSlots, error) {
	rows, err := r.pool.Query(ctx, pollAvailabilitySelect, pollID)
	if err != nil {
		return nil, translate(err, repository.ErrNotFound)
	}
	defer rows.Close()

	out := make([]domain.ParticipantSlots, 0)
	for rows.Next() {
		var (
			participantID, name string
			slotID              *string
			start, end, created *time.Time
		)
		if err := rows.Scan(&participantID, &name, &slotID, &start, &end, &created); err != nil {
			return nil, err
		}
		if n := len(out); n == 0 || out[n-1].ParticipantID != participantID {
			out = append(out, domain.ParticipantSlots{ParticipantID: participantID, Name: name, Slots: make([]domain.Slot, 0)})
		}
		if slotID == nil {
			continue
		}
		current := &out[len(out)-1]
		current.Slots = append(current.Slots, domain.Slot{
			ID:            *slotID,
			ParticipantID: participantID,
			Start:         *start,
			End:           *end,
			CreatedAt:     *created,
		})
	}
	return out, rows.Err()
}
