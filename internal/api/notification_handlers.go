package api

import (
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/carebridge/referral-hub/internal/data"
	"github.com/carebridge/referral-hub/internal/middleware"
	"github.com/carebridge/referral-hub/internal/notifications"
	"github.com/carebridge/referral-hub/internal/tokens"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all for dev; restrict in prod
	},
}

type NotificationHandler struct {
	Service *notifications.Service
	Tokens  *tokens.Manager

	// PingPeriod is read per connection so config reloads apply to new
	// feeds without a restart. Nil or non-positive falls back to 30s.
	PingPeriod func() time.Duration
}

func NewNotificationHandler(svc *notifications.Service, tm *tokens.Manager) *NotificationHandler {
	return &NotificationHandler{Service: svc, Tokens: tm}
}

// GET /api/v1/notifications
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	ac, _ := middleware.GetAuthContext(r.Context())

	list, err := h.Service.List(r.Context(), ac.HospitalID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "could not list notifications")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"notifications": list})
}

// GET /api/v1/notifications/unread-count
func (h *NotificationHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	ac, _ := middleware.GetAuthContext(r.Context())

	count, err := h.Service.CountUnread(r.Context(), ac.HospitalID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "could not count notifications")
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"unread": count})
}

// POST /api/v1/notifications/{id}/read
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	ac, _ := middleware.GetAuthContext(r.Context())

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid notification id")
		return
	}

	if err := h.Service.MarkRead(r.Context(), ac.HospitalID, id); err != nil {
		if err == data.ErrRecordNotFound {
			respondError(w, http.StatusNotFound, "notification not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "could not update notification")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /api/v1/referrals/{id}/notifications/read — clears every inbox entry
// tied to one referral, the way opening it in the UI does.
func (h *NotificationHandler) MarkReadByReferral(w http.ResponseWriter, r *http.Request) {
	ac, _ := middleware.GetAuthContext(r.Context())

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid referral id")
		return
	}

	if err := h.Service.MarkReadByReferral(r.Context(), ac.HospitalID, id); err != nil {
		respondError(w, http.StatusInternalServerError, "could not update notifications")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Feed streams full inbox snapshots over a websocket. Auth rides the query
// string since browsers cannot set headers on the upgrade request.
func (h *NotificationHandler) Feed(w http.ResponseWriter, r *http.Request) {
	tokenStr := r.URL.Query().Get("token")
	if tokenStr == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}

	claims, err := h.Tokens.ValidateToken(tokenStr)
	if err != nil || claims.TokenType != tokens.Access || claims.HospitalID == "" {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	snapshots, cancel, err := h.Service.Subscribe(r.Context(), claims.HospitalID)
	if err != nil {
		http.Error(w, "subscription failed", http.StatusInternalServerError)
		return
	}
	defer cancel()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WS Upgrade Failed: %v", err)
		return
	}
	defer conn.Close()

	log.Printf("WS Connected: Hospital=%s", claims.HospitalID)

	// Reader goroutine only drains control frames and detects close.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	pingPeriod := 30 * time.Second
	if h.PingPeriod != nil {
		if p := h.PingPeriod(); p > 0 {
			pingPeriod = p
		}
	}
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case list, ok := <-snapshots:
			if !ok {
				return
			}
			if err := conn.WriteJSON(map[string]any{"notifications": list}); err != nil {
				log.Printf("WS Write Error: %v", err)
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		}
	}
}
