package httpx

import (
	"net/http"
	"time"

	"github.com/samber/lo"

	"github.com/alexishuch/availability-poll/internal/availability"
	"github.com/alexishuch/availability-poll/internal/domain"
	"github.com/alexishuch/availability-poll/internal/service/poll"
)

const dateLayout = time.DateOnly

type pollResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	StartDate *string   `json:"start_date"`
	EndDate   *string   `json:"end_date"`
	CreatedAt time.Time `json:"created_at"`
}

type pollDetailResponse struct {
	pollResponse
	Participants []participantResponse `json:"participants"`
	CommonSlots  []availability.Slot   `json:"common_slots"`
}

type createPollRequest struct {
	Name      string `json:"name" validate:"required,max=50"`
	StartDate string `json:"start_date" validate:"omitempty,datetime=2006-01-02"`
	EndDate   string `json:"end_date" validate:"omitempty,datetime=2006-01-02"`
}

type updatePollRequest struct {
	Name      *string `json:"name" validate:"omitempty,min=1,max=50"`
	StartDate *string `json:"start_date" validate:"omitempty,datetime=2006-01-02"`
	EndDate   *string `json:"end_date" validate:"omitempty,datetime=2006-01-02"`
}

func toPollResponse(p domain.Poll) pollResponse {
	return pollResponse{
		ID:        p.ID,
		Name:      p.Name,
		StartDate: formatDate(p.StartDate),
		EndDate:   formatDate(p.EndDate),
		CreatedAt: p.CreatedAt.UTC(),
	}
}

func formatDate(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(dateLayout)
	return &s
}

// parseDate reads a date the validator already accepted.
func parseDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return nil
	}
	return &t
}

func (r *Router) handleCreatePoll(w http.ResponseWriter, req *http.Request) {
	var payload createPollRequest
	if !decodeJSON(w, req, &payload) {
		return
	}
	created, err := r.polls.Create(req.Context(), poll.CreateInput{
		Name:      payload.Name,
		StartDate: parseDate(payload.StartDate),
		EndDate:   parseDate(payload.EndDate),
	})
	if err != nil {
		writeServiceError(w, r.logger, req, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPollResponse(*created))
}

func (r *Router) handleListPolls(w http.ResponseWriter, req *http.Request) {
	polls, err := r.polls.List(req.Context())
	if err != nil {
		writeServiceError(w, r.logger, req, err)
		return
	}
	writeJSON(w, http.StatusOK, lo.Map(polls, func(p domain.Poll, _ int) pollResponse {
		return toPollResponse(p)
	}))
}

func (r *Router) handleGetPoll(w http.ResponseWriter, req *http.Request) {
	detail, err := r.polls.Detail(req.Context(), req.PathValue("id"))
	if err != nil {
		writeServiceError(w, r.logger, req, err)
		return
	}
	writeJSON(w, http.StatusOK, pollDetailResponse{
		pollResponse: toPollResponse(detail.Poll),
		Participants: lo.Map(detail.Participants, func(p domain.Participant, _ int) participantResponse {
			return toParticipantResponse(p)
		}),
		CommonSlots: detail.CommonSlots,
	})
}

func (r *Router) handleUpdatePoll(w http.ResponseWriter, req *http.Request) {
	var payload updatePollRequest
	if !decodeJSON(w, req, &payload) {
		return
	}
	input := poll.UpdateInput{Name: payload.Name}
	if payload.StartDate != nil {
		input.StartDate = parseDate(*payload.StartDate)
	}
	if payload.EndDate != nil {
		input.EndDate = parseDate(*payload.EndDate)
	}
	updated, err := r.polls.Update(req.Context(), req.PathValue("id"), input)
	if err != nil {
		writeServiceError(w, r.logger, req, err)
		return
	}
	writeJSON(w, http.StatusOK, toPollResponse(*updated))
}

func (r *Router) handleDeletePoll(w http.ResponseWriter, req *http.Request) {
	if err := r.polls.Delete(req.Context(), req.PathValue("id")); err != nil {
		writeServiceError(w, r.logger, req, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (r *Router) handleCommonSlots(w http.ResponseWriter, req *http.Request) {
	order, err := poll.ParseOrder(req.URL.Query().Get("order"))
	if err != nil {
		writeServiceError(w, r.logger, req, err)
		return
	}
	slots, err := r.polls.CommonSlots(req.Context(), req.PathValue("id"), order)
	if err != nil {
		writeServiceError(w, r.logger, req, err)
		return
	}
	writeJSON(w, http.StatusOK, slots)
}

func (r *Router) handleListParticipants(w http.ResponseWriter, req *http.Request) {
	participants, err := r.participants.List(req.Context(), req.PathValue("id"))
	if err != nil {
		writeServiceError(w, r.logger, req, err)
		return
	}
	writeJSON(w, http.StatusOK, lo.Map(participants, func(p domain.Participant, _ int) participantResponse {
		return toParticipantResponse(p)
	}))
}
