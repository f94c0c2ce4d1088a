package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/carebridge/referral-hub/internal/data"
	"github.com/carebridge/referral-hub/internal/middleware"
	"github.com/carebridge/referral-hub/internal/referrals"
)

type ReferralHandler struct {
	Service *referrals.Service
}

func NewReferralHandler(svc *referrals.Service) *ReferralHandler {
	return &ReferralHandler{Service: svc}
}

// POST /api/v1/referrals
func (h *ReferralHandler) Create(w http.ResponseWriter, r *http.Request) {
	ac, _ := middleware.GetAuthContext(r.Context())

	var in referrals.CreateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	ref, err := h.Service.Create(r.Context(), ac.HospitalID, in)
	if err != nil {
		switch {
		case errors.Is(err, referrals.ErrEmptyRequest),
			errors.Is(err, referrals.ErrBlankSpecialist),
			errors.Is(err, referrals.ErrSelfReferral):
			respondError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, data.ErrRecordNotFound):
			respondError(w, http.StatusNotFound, "hospital not found")
		default:
			respondError(w, http.StatusInternalServerError, "could not create referral")
		}
		return
	}
	respondJSON(w, http.StatusCreated, ref)
}

// GET /api/v1/referrals?direction=incoming|outgoing
func (h *ReferralHandler) List(w http.ResponseWriter, r *http.Request) {
	ac, _ := middleware.GetAuthContext(r.Context())

	var direction data.Direction
	switch r.URL.Query().Get("direction") {
	case "incoming":
		direction = data.DirectionIncoming
	case "outgoing":
		direction = data.DirectionOutgoing
	case "":
		// both
	default:
		respondError(w, http.StatusBadRequest, "direction must be incoming or outgoing")
		return
	}

	mirrors, err := h.Service.ListForHospital(r.Context(), ac.HospitalID, direction)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "could not list referrals")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"referrals": mirrors})
}

// GET /api/v1/referrals/{id}
func (h *ReferralHandler) Get(w http.ResponseWriter, r *http.Request) {
	ac, _ := middleware.GetAuthContext(r.Context())

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid referral id")
		return
	}

	ref, direction, err := h.Service.Get(r.Context(), ac.HospitalID, id)
	if errors.Is(err, data.ErrRecordNotFound) {
		respondError(w, http.StatusNotFound, "referral not found")
		return
	}
	if errors.Is(err, referrals.ErrPermissionDenied) {
		respondError(w, http.StatusForbidden, "not a party to this referral")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "could not load referral")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"referral": ref, "direction": direction})
}

// POST /api/v1/referrals/{id}/accept
func (h *ReferralHandler) Accept(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.Service.Accept)
}

// POST /api/v1/referrals/{id}/reject
func (h *ReferralHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.Service.Reject)
}

func (h *ReferralHandler) transition(w http.ResponseWriter, r *http.Request, op func(context.Context, string, uuid.UUID) (*data.Referral, error)) {
	ac, _ := middleware.GetAuthContext(r.Context())

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid referral id")
		return
	}

	ref, err := op(r.Context(), ac.HospitalID, id)
	if err != nil {
		var insufficient *referrals.InsufficientResourcesError
		switch {
		case errors.Is(err, data.ErrRecordNotFound):
			respondError(w, http.StatusNotFound, "referral not found")
		case errors.Is(err, referrals.ErrPermissionDenied):
			respondError(w, http.StatusForbidden, "only the receiving hospital may decide")
		case errors.Is(err, referrals.ErrNotPending):
			respondError(w, http.StatusConflict, "referral already decided")
		case errors.As(err, &insufficient):
			respondJSON(w, http.StatusConflict, map[string]any{
				"error":     "insufficient resources",
				"shortages": insufficient.Shortages,
			})
		case errors.Is(err, data.ErrConflictRetryExhausted):
			respondError(w, http.StatusConflict, "concurrent update, retry")
		default:
			respondError(w, http.StatusInternalServerError, "could not update referral")
		}
		return
	}
	respondJSON(w, http.StatusOK, ref)
}
