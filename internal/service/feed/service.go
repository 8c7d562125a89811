package feed

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/alexishuch/availability-poll/internal/availability"
	"github.com/alexishuch/availability-poll/internal/domain"
	"github.com/alexishuch/availability-poll/internal/service/poll"
	"github.com/alexishuch/availability-poll/internal/ws"
)

// Event names sent to subscribers.
const (
	EventSnapshot = "snapshot"
	EventUpdate   = "common_slots"
)

const publishTimeout = 5 * time.Second

// Source computes the common slots of a poll.
type Source interface {
	CommonSlots(ctx context.Context, pollID string, order poll.Order) ([]availability.Slot, error)
}

// Payload is the message pushed to stream subscribers.
type Payload struct {
	PollID      string              `json:"poll_id"`
	Event       string              `json:"event"`
	Reason      string              `json:"reason,omitempty"`
	CommonSlots []availability.Slot `json:"common_slots"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

// Service recomputes common slots after poll changes and streams them.
type Service struct {
	source Source
	hub    *ws.Hub
	logger *slog.Logger
	now    func() time.Time
}

// New constructs a feed service.
func New(source Source, hub *ws.Hub, logger *slog.Logger) Service {
	return Service{source: source, hub: hub, logger: logger, now: time.Now}
}

// Publish recomputes the poll's common slots and broadcasts them. Nothing is
// computed when the poll has no subscribers. Failures are logged, never
// returned: the write that triggered the update already succeeded.
func (s Service) Publish(ctx context.Context, pollID, reason string) {
	if s.hub.Subscribers(pollID) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	data, err := s.payload(ctx, pollID, EventUpdate, reason)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return
		}
		s.logger.Warn("failed to compute poll update", "poll_id", pollID, "error", err)
		return
	}
	s.hub.Broadcast(pollID, data)
}

// Snapshot returns the current common slots of a poll encoded for a new
// subscriber.
func (s Service) Snapshot(ctx context.Context, pollID string) ([]byte, error) {
	return s.payload(ctx, pollID, EventSnapshot, "")
}

// Hub returns the stream hub (useful for HTTP handlers).
func (s Service) Hub() *ws.Hub {
	return s.hub
}

func (s Service) payload(ctx context.Context, pollID, event, reason string) ([]byte, error) {
	slots, err := s.source.CommonSlots(ctx, pollID, poll.OrderStart)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Payload{
		PollID:      pollID,
		Event:       event,
		Reason:      reason,
		CommonSlots: slots,
		UpdatedAt:   s.now().UTC(),
	})
}
