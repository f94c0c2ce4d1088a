package api

import (
	"net/http"
	"strconv"

	"github.com/carebridge/referral-hub/internal/audit"
	"github.com/carebridge/referral-hub/internal/middleware"
)

type AuditHandler struct {
	Service *audit.Service
}

func NewAuditHandler(svc *audit.Service) *AuditHandler {
	return &AuditHandler{Service: svc}
}

// GET /api/v1/audit/events — scoped to the caller's own hospital.
func (h *AuditHandler) Query(w http.ResponseWriter, r *http.Request) {
	ac, _ := middleware.GetAuthContext(r.Context())

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 200 {
			respondError(w, http.StatusBadRequest, "limit must be 1-200")
			return
		}
		limit = n
	}

	events, err := h.Service.QueryEvents(r.Context(), audit.Filter{
		HospitalID: ac.HospitalID,
		Action:     r.URL.Query().Get("action"),
		Limit:      limit,
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "could not query audit events")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"events": events})
}
