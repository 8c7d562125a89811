package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alexishuch/availability-poll/internal/domain"
	"github.com/alexishuch/availability-poll/internal/repository"
)

// Repository implements persistence interfaces on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// New constructs a Repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ensure Repository satisfies interfaces.
var (
	_ repository.PollRepository        = (*Repository)(nil)
	_ repository.ParticipantRepository = (*Repository)(nil)
	_ repository.SlotRepository        = (*Repository)(nil)
)

// translate maps PostgreSQL error codes onto repository errors.
//   - 23505 unique_violation, 23P01 exclusion_violation: conflict
//   - 23503 foreign_key_violation: the referenced row is gone
//   - 22P02 invalid_text_representation: malformed uuid
func translate(err error, malformed error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return repository.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505", "23P01":
			return fmt.Errorf("%w: %s", repository.ErrConflict, pgErr.ConstraintName)
		case "23503":
			return repository.ErrNotFound
		case "22P02":
			return malformed
		case "23514":
			return repository.ErrInvalidArgument
		}
	}
	return err
}

// CreatePoll inserts a poll.
func (r *Repository) CreatePoll(ctx context.Context, poll *domain.Poll) error {
	const query = `INSERT INTO polls (id, name, start_date, end_date, created_at)
		VALUES ($1, $2, $3, $4, $5)`
	_, err := r.pool.Exec(ctx, query, poll.ID, poll.Name, poll.StartDate, poll.EndDate, poll.CreatedAt)
	return translate(err, repository.ErrInvalidArgument)
}

// GetPollByID fetches a poll by identifier.
func (r *Repository) GetPollByID(ctx context.Context, id string) (*domain.Poll, error) {
	const query = `SELECT id, name, start_date, end_date, created_at FROM polls WHERE id = $1`
	var p domain.Poll
	err := r.pool.QueryRow(ctx, query, id).Scan(&p.ID, &p.Name, &p.StartDate, &p.EndDate, &p.CreatedAt)
	if err != nil {
		return nil, translate(err, repository.ErrNotFound)
	}
	return &p, nil
}

// ListPolls returns all polls, newest first.
func (r *Repository) ListPolls(ctx context.Context) ([]domain.Poll, error) {
	const query = `SELECT id, name, start_date, end_date, created_at FROM polls ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	polls := make([]domain.Poll, 0)
	for rows.Next() {
		var p domain.Poll
		if err := rows.Scan(&p.ID, &p.Name, &p.StartDate, &p.EndDate, &p.CreatedAt); err != nil {
			return nil, err
		}
		polls = append(polls, p)
	}
	return polls, rows.Err()
}

// UpdatePoll rewrites the mutable poll attributes.
func (r *Repository) UpdatePoll(ctx context.Context, poll *domain.Poll) error {
	const query = `UPDATE polls SET name = $2, start_date = $3, end_date = $4 WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, poll.ID, poll.Name, poll.StartDate, poll.EndDate)
	if err != nil {
		return translate(err, repository.ErrNotFound)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// DeletePoll removes a poll together with its participants and slots.
func (r *Repository) DeletePoll(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM polls WHERE id = $1`, id)
	if err != nil {
		return translate(err, repository.ErrNotFound)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// CreateParticipant inserts a participant. A name already used in the poll
// (ignoring case) yields repository.ErrConflict.
func (r *Repository) CreateParticipant(ctx context.Context, participant *domain.Participant) error {
	const query = `INSERT INTO participants (id, poll_id, name, created_at)
		VALUES ($1, $2, $3, $4)`
	_, err := r.pool.Exec(ctx, query, participant.ID, participant.PollID, participant.Name, participant.CreatedAt)
	return translate(err, repository.ErrInvalidArgument)
}

// GetParticipantByID fetches a participant.
func (r *Repository) GetParticipantByID(ctx context.Context, id string) (*domain.Participant, error) {
	const query = `SELECT id, poll_id, name, created_at FROM participants WHERE id = $1`
	var p domain.Participant
	if err := r.pool.QueryRow(ctx, query, id).Scan(&p.ID, &p.PollID, &p.Name, &p.CreatedAt); err != nil {
		return nil, translate(err, repository.ErrNotFound)
	}
	return &p, nil
}

// ListParticipantsByPoll returns the participants of a poll ordered by name.
func (r *Repository) ListParticipantsByPoll(ctx context.Context, pollID string) ([]domain.Participant, error) {
	const query = `SELECT id, poll_id, name, created_at FROM participants
		WHERE poll_id = $1 ORDER BY lower(name), created_at`
	rows, err := r.pool.Query(ctx, query, pollID)
	if err != nil {
		return nil, translate(err, repository.ErrNotFound)
	}
	defer rows.Close()

	participants := make([]domain.Participant, 0)
	for rows.Next() {
		var p domain.Participant
		if err := rows.Scan(&p.ID, &p.PollID, &p.Name, &p.CreatedAt); err != nil {
			return nil, err
		}
		participants = append(participants, p)
	}
	return participants, rows.Err()
}

// UpdateParticipant renames a participant.
func (r *Repository) UpdateParticipant(ctx context.Context, participant *domain.Participant) error {
	tag, err := r.pool.Exec(ctx, `UPDATE participants SET name = $2 WHERE id = $1`, participant.ID, participant.Name)
	if err != nil {
		return translate(err, repository.ErrNotFound)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// DeleteParticipant removes a participant and their slots.
func (r *Repository) DeleteParticipant(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM participants WHERE id = $1`, id)
	if err != nil {
		return translate(err, repository.ErrNotFound)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}
