package api

import (
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/carebridge/referral-hub/internal/auth"
	"github.com/carebridge/referral-hub/internal/data"
	"github.com/carebridge/referral-hub/internal/middleware"
	"github.com/carebridge/referral-hub/internal/session"
	"github.com/carebridge/referral-hub/internal/tokens"
)

type AuthHandler struct {
	DB        *sql.DB
	Tokens    *tokens.Manager
	Session   *session.Manager
	Blacklist auth.TokenBlacklist
	RateLimit *middleware.RateLimitMiddleware // may be nil in tests
}

type SignupRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type TokenResponse struct {
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token,omitempty"`
	ExpiresIn    int        `json:"expires_in"` // seconds
	User         *data.User `json:"user,omitempty"`
}

func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		respondError(w, http.StatusBadRequest, "valid email required")
		return
	}
	if len(req.Password) < 8 {
		respondError(w, http.StatusBadRequest, "password must be at least 8 characters")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		h.genericError(w)
		return
	}

	user := &data.User{
		Email:        req.Email,
		PasswordHash: hash,
		DisplayName:  strings.TrimSpace(req.DisplayName),
	}
	usersRepo := data.UserModel{DB: h.DB}
	if err := usersRepo.Create(r.Context(), user); err != nil {
		if err == data.ErrDuplicateEmail {
			respondError(w, http.StatusConflict, "email already in use")
			return
		}
		h.genericError(w)
		return
	}

	h.issueTokens(w, r, user)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	// Throttle before touching credentials.
	if h.RateLimit != nil {
		if d, err := h.RateLimit.CheckLogin(r, req.Email); err == nil && !d.Allowed {
			respondError(w, http.StatusTooManyRequests, "too many login attempts")
			return
		}
	}

	locked, err := h.Session.CheckLockout(r.Context(), req.Email)
	if err != nil || locked {
		h.genericError(w)
		return
	}

	usersRepo := data.UserModel{DB: h.DB}
	user, err := usersRepo.GetByEmail(r.Context(), req.Email)
	if err == data.ErrRecordNotFound {
		// Dummy verify keeps response timing uniform.
		auth.CheckPassword("dummy", "$argon2id$v=19$m=65536,t=1,p=4$c2FsdHNhbHQ$aGFzaGhhc2hoYXNoaGFzaGhhc2hoYXNoaGFzaGg")
		h.failWithLockout(w, r, req.Email)
		return
	} else if err != nil {
		h.genericError(w)
		return
	}

	match, err := auth.CheckPassword(req.Password, user.PasswordHash)
	if err != nil || !match {
		h.failWithLockout(w, r, req.Email)
		return
	}

	h.Session.ClearFailedAttempts(r.Context(), req.Email)
	h.issueTokens(w, r, user)
}

// issueTokens mints the access/refresh pair, persists the refresh hash for
// rotation, and records the redis session.
func (h *AuthHandler) issueTokens(w http.ResponseWriter, r *http.Request, user *data.User) {
	hospitalID := ""
	if user.HospitalID != nil {
		hospitalID = *user.HospitalID
	}

	accessToken, err := h.Tokens.GenerateAccessToken(user.ID.String(), hospitalID)
	if err != nil {
		h.genericError(w)
		return
	}
	refreshToken, err := h.Tokens.GenerateRefreshToken(user.ID.String(), hospitalID)
	if err != nil {
		h.genericError(w)
		return
	}

	sessionID := uuid.New().String()
	tokensRepo := data.TokenModel{DB: h.DB}
	if _, err := tokensRepo.New(r.Context(), refreshToken, user.ID.String(), sessionID, tokens.RefreshTTL); err != nil {
		h.genericError(w)
		return
	}

	if err := h.Session.CreateSession(r.Context(), user.ID.String(), hospitalID, sessionID); err != nil {
		h.genericError(w)
		return
	}

	respondJSON(w, http.StatusOK, TokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int(tokens.AccessTTL.Seconds()),
		User:         user,
	})
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.genericError(w)
		return
	}

	claims, err := h.Tokens.ValidateToken(req.RefreshToken)
	if err != nil || claims.TokenType != tokens.Refresh {
		h.genericError(w)
		return
	}

	tx, err := h.DB.BeginTx(r.Context(), nil)
	if err != nil {
		h.genericError(w)
		return
	}
	defer tx.Rollback()

	tokensRepo := data.TokenModel{DB: tx}
	dbToken, err := tokensRepo.GetByHash(r.Context(), req.RefreshToken)
	if err != nil {
		h.genericError(w)
		return
	}

	// Reuse of a rotated or revoked token burns every session for the user.
	if dbToken.RevokedAt.Valid || dbToken.ReplacedByTokenID != nil {
		tokensRepo.RevokeAllForUser(r.Context(), dbToken.UserID)
		h.Session.RevokeAllUserSessions(r.Context(), dbToken.UserID)
		tx.Commit()
		log.Printf("auth: refresh token reuse detected for user %s, all sessions revoked", dbToken.UserID)
		h.genericError(w)
		return
	}

	// Re-read the user so a hospital registered since login lands in the
	// new claims.
	userID, err := uuid.Parse(dbToken.UserID)
	if err != nil {
		h.genericError(w)
		return
	}
	usersRepo := data.UserModel{DB: tx}
	user, err := usersRepo.GetByID(r.Context(), userID)
	if err != nil {
		h.genericError(w)
		return
	}
	hospitalID := ""
	if user.HospitalID != nil {
		hospitalID = *user.HospitalID
	}

	newRefresh, err := h.Tokens.GenerateRefreshToken(dbToken.UserID, hospitalID)
	if err != nil {
		h.genericError(w)
		return
	}
	newID, err := tokensRepo.New(r.Context(), newRefresh, dbToken.UserID, dbToken.SessionID, tokens.RefreshTTL)
	if err != nil {
		h.genericError(w)
		return
	}
	if err := tokensRepo.Rotate(r.Context(), dbToken.ID, newID); err != nil {
		h.genericError(w)
		return
	}

	newAccess, err := h.Tokens.GenerateAccessToken(dbToken.UserID, hospitalID)
	if err != nil {
		h.genericError(w)
		return
	}

	if err := tx.Commit(); err != nil {
		h.genericError(w)
		return
	}

	respondJSON(w, http.StatusOK, TokenResponse{
		AccessToken:  newAccess,
		RefreshToken: newRefresh,
		ExpiresIn:    int(tokens.AccessTTL.Seconds()),
	})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ac, ok := middleware.GetAuthContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	// Blacklist the live access token for its remaining lifetime.
	if err := h.Blacklist.AddToBlacklist(r.Context(), ac.UserID, ac.TokenID, tokens.AccessTTL); err != nil {
		log.Printf("auth: blacklist on logout failed: %v", err)
	}

	var req RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err == nil && req.RefreshToken != "" {
		tokensRepo := data.TokenModel{DB: h.DB}
		if dbToken, err := tokensRepo.GetByHash(r.Context(), req.RefreshToken); err == nil && dbToken.UserID == ac.UserID {
			tokensRepo.RevokeBySession(r.Context(), dbToken.SessionID)
			h.Session.RevokeSession(r.Context(), dbToken.SessionID)
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) genericError(w http.ResponseWriter) {
	respondError(w, http.StatusUnauthorized, "Invalid credential or request")
}

func (h *AuthHandler) failWithLockout(w http.ResponseWriter, r *http.Request, email string) {
	h.Session.RecordFailedAttempt(r.Context(), email)
	h.genericError(w)
}
