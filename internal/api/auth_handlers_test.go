package api_test

import (
	"bytes"
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
	"github.com/carebridge/referral-hub/internal/auth"
	"github.com/carebridge/referral-hub/internal/session"
	"github.com/carebridge/referral-hub/internal/tokens"
)

func newAuthHandler(t *testing.T) (*api.AuthHandler, sqlmock.Sqlmock, *miniredis.Miniredis) {
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

	h := &api.AuthHandler{
		DB:        db,
		Tokens:    tokens.NewManager("test-signing-key"),
		Session:   session.NewManager(client),
		Blacklist: auth.NewRedisBlacklist(client),
	}
	return h, mock, mr
}

func userRow(t *testing.T, id uuid.UUID, email, password string, hospitalID *string) *sqlmock.Rows {
	t.Helper()
	hash, err := auth.HashPassword(password)
	if err != nil {
		t.Fatal(err)
	}
	return sqlmock.NewRows([]string{"id", "email", "password_hash", "display_name", "hospital_id", "created_at"}).
		AddRow(id, email, hash, "Admin", hospitalID, time.Now())
}

func postJSON(path string, body any) *http.Request {
	b, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestLogin_Success(t *testing.T) {
	h, mock, _ := newAuthHandler(t)
	userID := uuid.New()
	hosp := "HOSP1"

	mock.ExpectQuery("SELECT (.+) FROM users").WithArgs("admin@hosp1.example.com").
		WillReturnRows(userRow(t, userID, "admin@hosp1.example.com", "changeme123", &hosp))
	mock.ExpectQuery("INSERT INTO refresh_tokens").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("tok-1"))

	w := httptest.NewRecorder()
	h.Login(w, postJSON("/api/v1/auth/login", api.LoginRequest{
		Email:    "Admin@HOSP1.example.com", // normalization check
		Password: "changeme123",
	}))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp api.TokenResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.AccessToken == "" || resp.RefreshToken == "" {
		t.Fatal("expected both tokens in the response")
	}

	claims, err := h.Tokens.ValidateToken(resp.AccessToken)
	if err != nil {
		t.Fatal(err)
	}
	if claims.HospitalID != "HOSP1" {
		t.Errorf("acting hospital missing from claims: %q", claims.HospitalID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestLogin_WrongPassword(t *testing.T) {
	h, mock, _ := newAuthHandler(t)

	mock.ExpectQuery("SELECT (.+) FROM users").WithArgs("admin@hosp1.example.com").
		WillReturnRows(userRow(t, uuid.New(), "admin@hosp1.example.com", "changeme123", nil))

	w := httptest.NewRecorder()
	h.Login(w, postJSON("/api/v1/auth/login", api.LoginRequest{
		Email:    "admin@hosp1.example.com",
		Password: "not-the-password",
	}))

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestLogin_UnknownEmailSameResponse(t *testing.T) {
	h, mock, _ := newAuthHandler(t)

	mock.ExpectQuery("SELECT (.+) FROM users").WithArgs("nobody@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "password_hash", "display_name", "hospital_id", "created_at"}))

	w := httptest.NewRecorder()
	h.Login(w, postJSON("/api/v1/auth/login", api.LoginRequest{
		Email:    "nobody@example.com",
		Password: "whatever123",
	}))

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	// Same body as a wrong password, so the endpoint does not leak which
	// emails exist.
	if !bytes.Contains(w.Body.Bytes(), []byte("Invalid credential")) {
		t.Errorf("unexpected body: %s", w.Body.String())
	}
}

func TestLogin_LockoutAfterRepeatedFailures(t *testing.T) {
	h, mock, _ := newAuthHandler(t)
	email := "admin@hosp1.example.com"

	for i := 0; i < session.LockoutThreshold; i++ {
		mock.ExpectQuery("SELECT (.+) FROM users").WithArgs(email).
			WillReturnRows(userRow(t, uuid.New(), email, "changeme123", nil))

		w := httptest.NewRecorder()
		h.Login(w, postJSON("/api/v1/auth/login", api.LoginRequest{Email: email, Password: "wrong"}))
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: expected 401, got %d", i+1, w.Code)
		}
	}

	// Locked now: the correct password is rejected without a user lookup.
	w := httptest.NewRecorder()
	h.Login(w, postJSON("/api/v1/auth/login", api.LoginRequest{Email: email, Password: "changeme123"}))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 while locked, got %d", w.Code)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestSignup_Validation(t *testing.T) {
	h, _, _ := newAuthHandler(t)

	cases := []struct {
		name string
		req  api.SignupRequest
	}{
		{"missing email", api.SignupRequest{Password: "longenough1"}},
		{"not an email", api.SignupRequest{Email: "nope", Password: "longenough1"}},
		{"short password", api.SignupRequest{Email: "a@b.example.com", Password: "short"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			h.Signup(w, postJSON("/api/v1/auth/signup", tc.req))
			if w.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", w.Code)
			}
		})
	}
}

func TestSignup_Success(t *testing.T) {
	h, mock, _ := newAuthHandler(t)
	userID := uuid.New()

	mock.ExpectQuery("INSERT INTO users").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(userID, time.Now()))
	mock.ExpectQuery("INSERT INTO refresh_tokens").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("tok-1"))

	w := httptest.NewRecorder()
	h.Signup(w, postJSON("/api/v1/auth/signup", api.SignupRequest{
		Email:       "new@hosp.example.com",
		Password:    "longenough1",
		DisplayName: "New Admin",
	}))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp api.TokenResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	claims, err := h.Tokens.ValidateToken(resp.AccessToken)
	if err != nil {
		t.Fatal(err)
	}
	if claims.HospitalID != "" {
		t.Errorf("new accounts have no acting hospital, got %q", claims.HospitalID)
	}
}

func TestRefresh_ReuseRevokesEverything(t *testing.T) {
	h, mock, mr := newAuthHandler(t)
	userID := uuid.New()

	refresh, err := h.Tokens.GenerateRefreshToken(userID.String(), "")
	if err != nil {
		t.Fatal(err)
	}

	// A live session that must die with the reuse.
	if err := h.Session.CreateSession(t.Context(), userID.String(), "", "sess-a"); err != nil {
		t.Fatal(err)
	}

	replacedBy := "tok-2"
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM refresh_tokens").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "session_id", "token_hash", "expires_at", "revoked_at", "replaced_by_token_id", "created_at"}).
			AddRow("tok-1", userID.String(), "sess-a", "h", time.Now().Add(time.Hour), time.Now(), &replacedBy, time.Now()))
	mock.ExpectExec("UPDATE refresh_tokens").WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	w := httptest.NewRecorder()
	h.Refresh(w, postJSON("/api/v1/auth/refresh", api.RefreshRequest{RefreshToken: refresh}))

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 on reuse, got %d", w.Code)
	}
	if mr.Exists("session:sess-a") {
		t.Error("reuse detection must revoke every live session")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestRefresh_RejectsAccessToken(t *testing.T) {
	h, _, _ := newAuthHandler(t)

	access, err := h.Tokens.GenerateAccessToken(uuid.New().String(), "")
	if err != nil {
		t.Fatal(err)
	}

	w := httptest.NewRecorder()
	h.Refresh(w, postJSON("/api/v1/auth/refresh", api.RefreshRequest{RefreshToken: access}))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}
