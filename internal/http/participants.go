package httpx

import (
	"net/http"
	"time"

	"github.com/samber/lo"

	"github.com/alexishuch/availability-poll/internal/domain"
)

type participantResponse struct {
	ID        string    `json:"id"`
	PollID    string    `json:"poll_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type participantDetailResponse struct {
	participantResponse
	Slots []slotResponse `json:"slots"`
}

type createParticipantRequest struct {
	PollID string `json:"poll_id" validate:"required,uuid"`
	Name   string `json:"name" validate:"required,max=50"`
}

type renameParticipantRequest struct {
	Name string `json:"name" validate:"required,max=50"`
}

func toParticipantResponse(p domain.Participant) participantResponse {
	return participantResponse{ID: p.ID, PollID: p.PollID, Name: p.Name, CreatedAt: p.CreatedAt.UTC()}
}

func (r *Router) handleCreateParticipant(w http.ResponseWriter, req *http.Request) {
	var payload createParticipantRequest
	if !decodeJSON(w, req, &payload) {
		return
	}
	participant, err := r.participants.Create(req.Context(), payload.PollID, payload.Name)
	if err != nil {
		writeServiceError(w, r.logger, req, err)
		return
	}
	writeJSON(w, http.StatusCreated, toParticipantResponse(*participant))
}

func (r *Router) handleGetParticipant(w http.ResponseWriter, req *http.Request) {
	participant, err := r.participants.Get(req.Context(), req.PathValue("id"))
	if err != nil {
		writeServiceError(w, r.logger, req, err)
		return
	}
	slots, err := r.slots.ListByParticipant(req.Context(), participant.ID)
	if err != nil {
		writeServiceError(w, r.logger, req, err)
		return
	}
	writeJSON(w, http.StatusOK, participantDetailResponse{
		participantResponse: toParticipantResponse(*participant),
		Slots: lo.Map(slots, func(s domain.Slot, _ int) slotResponse {
			return toSlotResponse(s)
		}),
	})
}

func (r *Router) handleRenameParticipant(w http.ResponseWriter, req *http.Request) {
	var payload renameParticipantRequest
	if !decodeJSON(w, req, &payload) {
		return
	}
	participant, err := r.participants.Rename(req.Context(), req.PathValue("id"), payload.Name)
	if err != nil {
		writeServiceError(w, r.logger, req, err)
		return
	}
	writeJSON(w, http.StatusOK, toParticipantResponse(*participant))
}

func (r *Router) handleDeleteParticipant(w http.ResponseWriter, req *http.Request) {
	if err := r.participants.Delete(req.Context(), req.PathValue("id")); err != nil {
		writeServiceError(w, r.logger, req, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
