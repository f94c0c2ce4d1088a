package api

import (
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/carebridge/referral-hub/internal/audit"
	"github.com/carebridge/referral-hub/internal/data"
	"github.com/carebridge/referral-hub/internal/middleware"
	"github.com/carebridge/referral-hub/internal/resources"
	"github.com/carebridge/referral-hub/internal/session"
	"github.com/carebridge/referral-hub/internal/tokens"
)

type HospitalHandler struct {
	DB      *sql.DB
	Tokens  *tokens.Manager
	Session *session.Manager
	Audits  *audit.Service
}

type RegisterHospitalRequest struct {
	Name               string `json:"name"`
	RegistrationNumber string `json:"registrationNumber"`
	Type               string `json:"type"`
	Location           string `json:"location"`
	Contact            string `json:"contact"`
	Email              string `json:"email"`
	Website            string `json:"website"`
}

type RegisterHospitalResponse struct {
	Hospital     *data.Hospital `json:"hospital"`
	AccessToken  string         `json:"access_token"`
	RefreshToken string         `json:"refresh_token"`
	ExpiresIn    int            `json:"expires_in"`
}

// Register creates the hospital, seeds its resource document and links the
// calling user, all in one transaction. The registration number doubles as
// the hospital id so a second registration of the same facility conflicts.
func (h *HospitalHandler) Register(w http.ResponseWriter, r *http.Request) {
	ac, ok := middleware.GetAuthContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	if ac.HospitalID != "" {
		respondError(w, http.StatusConflict, "user already belongs to a hospital")
		return
	}

	var req RegisterHospitalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.RegistrationNumber = strings.TrimSpace(req.RegistrationNumber)
	if req.Name == "" || req.RegistrationNumber == "" {
		respondError(w, http.StatusBadRequest, "name and registrationNumber are required")
		return
	}

	userID, err := uuid.Parse(ac.UserID)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	hospital := &data.Hospital{
		ID:                 req.RegistrationNumber,
		Name:               req.Name,
		RegistrationNumber: req.RegistrationNumber,
		Type:               req.Type,
		Location:           req.Location,
		Contact:            req.Contact,
		Email:              req.Email,
		Website:            req.Website,
	}

	tx, err := h.DB.BeginTx(r.Context(), nil)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "registration failed")
		return
	}
	defer tx.Rollback()

	if err := (data.HospitalModel{DB: tx}).Create(r.Context(), hospital); err != nil {
		if err == data.ErrDuplicateHospital {
			respondError(w, http.StatusConflict, "hospital already registered")
			return
		}
		respondError(w, http.StatusInternalServerError, "registration failed")
		return
	}

	doc, err := resources.DefaultSnapshot().Marshal()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "registration failed")
		return
	}
	if err := (data.ResourceModel{DB: tx}).InsertDoc(r.Context(), hospital.ID, doc); err != nil {
		respondError(w, http.StatusInternalServerError, "registration failed")
		return
	}

	if err := (data.UserModel{DB: tx}).LinkHospital(r.Context(), userID, hospital.ID); err != nil {
		respondError(w, http.StatusConflict, "user already belongs to a hospital")
		return
	}

	if err := tx.Commit(); err != nil {
		respondError(w, http.StatusInternalServerError, "registration failed")
		return
	}

	// Propagate the new affiliation to live sessions and mint tokens that
	// carry it.
	if err := h.Session.SetHospital(r.Context(), ac.UserID, hospital.ID); err != nil {
		log.Printf("hospitals: session update after registration failed: %v", err)
	}

	access, err := h.Tokens.GenerateAccessToken(ac.UserID, hospital.ID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "registration failed")
		return
	}
	refresh, err := h.Tokens.GenerateRefreshToken(ac.UserID, hospital.ID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "registration failed")
		return
	}
	if _, err := (data.TokenModel{DB: h.DB}).New(r.Context(), refresh, ac.UserID, uuid.New().String(), tokens.RefreshTTL); err != nil {
		respondError(w, http.StatusInternalServerError, "registration failed")
		return
	}

	h.writeAudit(r, ac, hospital.ID)

	respondJSON(w, http.StatusCreated, RegisterHospitalResponse{
		Hospital:     hospital,
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int(tokens.AccessTTL.Seconds()),
	})
}

// List returns every hospital on the network except the caller's own, for
// the referral target picker.
func (h *HospitalHandler) List(w http.ResponseWriter, r *http.Request) {
	ac, _ := middleware.GetAuthContext(r.Context())
	exclude := ""
	if ac != nil {
		exclude = ac.HospitalID
	}

	hospitals, err := (data.HospitalModel{DB: h.DB}).List(r.Context(), exclude)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "could not list hospitals")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"hospitals": hospitals})
}

func (h *HospitalHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	hospital, err := (data.HospitalModel{DB: h.DB}).GetByID(r.Context(), id)
	if err == data.ErrRecordNotFound {
		respondError(w, http.StatusNotFound, "hospital not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "could not load hospital")
		return
	}
	respondJSON(w, http.StatusOK, hospital)
}

// Me returns the caller's hospital, or 404 while unregistered.
func (h *HospitalHandler) Me(w http.ResponseWriter, r *http.Request) {
	ac, ok := middleware.GetAuthContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	if ac.HospitalID == "" {
		respondError(w, http.StatusNotFound, "no hospital registered")
		return
	}
	hospital, err := (data.HospitalModel{DB: h.DB}).GetByID(r.Context(), ac.HospitalID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "could not load hospital")
		return
	}
	respondJSON(w, http.StatusOK, hospital)
}

func (h *HospitalHandler) writeAudit(r *http.Request, ac *middleware.AuthContext, hospitalID string) {
	if h.Audits == nil {
		return
	}
	actor, _ := uuid.Parse(ac.UserID)
	evt := audit.AuditEvent{
		EventID:    uuid.New(),
		HospitalID: hospitalID,
		Action:     "hospital.register",
		TargetType: "hospital",
		TargetID:   hospitalID,
		Result:     "success",
	}
	if actor != uuid.Nil {
		evt.ActorUserID = &actor
	}
	if err := h.Audits.WriteEvent(r.Context(), evt); err != nil {
		log.Printf("hospitals: audit write failed: %v", err)
	}
}
