package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/carebridge/referral-hub/internal/data"
	"github.com/carebridge/referral-hub/internal/middleware"
	"github.com/carebridge/referral-hub/internal/resources"
)

type ResourceHandler struct {
	Service *resources.Service
}

func NewResourceHandler(svc *resources.Service) *ResourceHandler {
	return &ResourceHandler{Service: svc}
}

// GET /api/v1/resources
func (h *ResourceHandler) GetOwn(w http.ResponseWriter, r *http.Request) {
	ac, _ := middleware.GetAuthContext(r.Context())

	snap, err := h.Service.Get(r.Context(), ac.HospitalID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "could not load resources")
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

// GET /api/v1/hospitals/{id}/resources — peers see live availability when
// choosing a referral target.
func (h *ResourceHandler) GetForHospital(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	snap, err := h.Service.Get(r.Context(), id)
	if errors.Is(err, data.ErrRecordNotFound) {
		respondError(w, http.StatusNotFound, "hospital not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "could not load resources")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"resources":    snap,
		"availability": snap.Availability(),
	})
}

type SetFieldRequest struct {
	Field string `json:"field"`
	Value int    `json:"value"`
}

// PATCH /api/v1/resources
func (h *ResourceHandler) SetField(w http.ResponseWriter, r *http.Request) {
	ac, _ := middleware.GetAuthContext(r.Context())

	var req SetFieldRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.Value < 0 {
		respondError(w, http.StatusBadRequest, "value must be non-negative")
		return
	}

	snap, err := h.Service.SetField(r.Context(), ac.HospitalID, req.Field, req.Value)
	if errors.Is(err, resources.ErrUnknownField) {
		respondError(w, http.StatusBadRequest, "unknown resource field")
		return
	}
	if errors.Is(err, data.ErrConflictRetryExhausted) {
		respondError(w, http.StatusConflict, "concurrent update, retry")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "could not update resources")
		return
	}
	respondJSON(w, http.StatusOK, snap)
}
