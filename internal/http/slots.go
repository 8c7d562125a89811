package httpx

import (
	"net/http"
	"time"

	"github.com/alexishuch/availability-poll/internal/domain"
	"github.com/alexishuch/availability-poll/internal/service/slot"
)

type slotResponse struct {
	ID            string    `json:"id"`
	ParticipantID string    `json:"participant_id"`
	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`
	CreatedAt     time.Time `json:"created_at"`
}

type createSlotRequest struct {
	ParticipantID string `json:"participant_id" validate:"required,uuid"`
	Start         string `json:"start" validate:"required,datetime=2006-01-02T15:04:05Z07:00"`
	End           string `json:"end" validate:"required,datetime=2006-01-02T15:04:05Z07:00"`
}

func toSlotResponse(s domain.Slot) slotResponse {
	return slotResponse{
		ID:            s.ID,
		ParticipantID: s.ParticipantID,
		Start:         s.Start.UTC(),
		End:           s.End.UTC(),
		CreatedAt:     s.CreatedAt.UTC(),
	}
}

func (r *Router) handleCreateSlot(w http.ResponseWriter, req *http.Request) {
	var payload createSlotRequest
	if !decodeJSON(w, req, &payload) {
		return
	}
	start, errStart := time.Parse(time.RFC3339, payload.Start)
	end, errEnd := time.Parse(time.RFC3339, payload.End)
	if errStart != nil || errEnd != nil {
		writeError(w, http.StatusBadRequest, "start and end must be RFC 3339 timestamps")
		return
	}
	created, err := r.slots.Create(req.Context(), slot.CreateInput{
		ParticipantID: payload.ParticipantID,
		Start:         start,
		End:           end,
	})
	if err != nil {
		writeServiceError(w, r.logger, req, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSlotResponse(*created))
}

func (r *Router) handleGetSlot(w http.ResponseWriter, req *http.Request) {
	s, err := r.slots.Get(req.Context(), req.PathValue("id"))
	if err != nil {
		writeServiceError(w, r.logger, req, err)
		return
	}
	writeJSON(w, http.StatusOK, toSlotResponse(*s))
}

func (r *Router) handleDeleteSlot(w http.ResponseWriter, req *http.Request) {
	if err := r.slots.Delete(req.Context(), req.PathValue("id")); err != nil {
		writeServiceError(w, r.logger, req, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
