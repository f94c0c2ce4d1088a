package api_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/carebridge/referral-hub/internal/api"
	"github.com/carebridge/referral-hub/internal/middleware"
	"github.com/carebridge/referral-hub/internal/session"
	"github.com/carebridge/referral-hub/internal/tokens"
)

func newHospitalHandler(t *testing.T) (*api.HospitalHandler, sqlmock.Sqlmock, *miniredis.Miniredis) {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	h := &api.HospitalHandler{
		DB:      db,
		Tokens:  tokens.NewManager("test-signing-key"),
		Session: session.NewManager(client),
	}
	return h, mock, mr
}

func authedRequest(req *http.Request, userID, hospitalID string) *http.Request {
	ctx := middleware.WithAuthContext(req.Context(), &middleware.AuthContext{
		UserID:     userID,
		HospitalID: hospitalID,
		TokenID:    "jti-1",
	})
	return req.WithContext(ctx)
}

func TestRegisterHospital(t *testing.T) {
	h, mock, _ := newHospitalHandler(t)
	userID := uuid.New()

	// The session carries no hospital yet.
	if err := h.Session.CreateSession(t.Context(), userID.String(), "", "sess-a"); err != nil {
		t.Fatal(err)
	}

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO hospitals").
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(time.Now()))
	mock.ExpectExec("INSERT INTO hospital_resources").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE users").
		WithArgs("HOSP1", userID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectQuery("INSERT INTO refresh_tokens").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("tok-1"))

	req := postJSON("/api/v1/hospitals", api.RegisterHospitalRequest{
		Name:               "AIIMS Delhi",
		RegistrationNumber: "HOSP1",
		Location:           "Delhi",
	})
	w := httptest.NewRecorder()
	h.Register(w, authedRequest(req, userID.String(), ""))

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var resp api.RegisterHospitalResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Hospital == nil || resp.Hospital.ID != "HOSP1" {
		t.Errorf("registration number should become the hospital id: %+v", resp.Hospital)
	}

	// Fresh tokens carry the new affiliation.
	claims, err := h.Tokens.ValidateToken(resp.AccessToken)
	if err != nil {
		t.Fatal(err)
	}
	if claims.HospitalID != "HOSP1" {
		t.Errorf("expected HOSP1 in new claims, got %q", claims.HospitalID)
	}

	// And so does the live session.
	hosp, err := h.Session.Hospital(t.Context(), "sess-a")
	if err != nil {
		t.Fatal(err)
	}
	if hosp != "HOSP1" {
		t.Errorf("live session not updated, got %q", hosp)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestRegisterHospital_AlreadyAffiliated(t *testing.T) {
	h, _, _ := newHospitalHandler(t)

	req := postJSON("/api/v1/hospitals", api.RegisterHospitalRequest{
		Name:               "AIIMS Delhi",
		RegistrationNumber: "HOSP1",
	})
	w := httptest.NewRecorder()
	h.Register(w, authedRequest(req, uuid.New().String(), "HOSP9"))

	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}
}

func TestRegisterHospital_MissingFields(t *testing.T) {
	h, _, _ := newHospitalHandler(t)

	req := postJSON("/api/v1/hospitals", api.RegisterHospitalRequest{Name: "  "})
	w := httptest.NewRecorder()
	h.Register(w, authedRequest(req, uuid.New().String(), ""))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestListHospitals_ExcludesOwn(t *testing.T) {
	h, mock, _ := newHospitalHandler(t)

	cols := []string{"id", "name", "registration_number", "type", "location", "contact", "email", "website", "created_at"}
	mock.ExpectQuery("SELECT (.+) FROM hospitals").WithArgs("HOSP1").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("HOSP2", "Fortis Noida", "HOSP2", "", "Noida", "", "", "", time.Now()))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/hospitals", nil)
	w := httptest.NewRecorder()
	h.List(w, authedRequest(req, uuid.New().String(), "HOSP1"))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp struct {
		Hospitals []struct {
			ID string `json:"id"`
		} `json:"hospitals"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Hospitals) != 1 || resp.Hospitals[0].ID != "HOSP2" {
		t.Errorf("unexpected listing: %+v", resp.Hospitals)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestMe_Unregistered(t *testing.T) {
	h, _, _ := newHospitalHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/hospitals/me", nil)
	w := httptest.NewRecorder()
	h.Me(w, authedRequest(req, uuid.New().String(), ""))

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 before registration, got %d", w.Code)
	}
}
