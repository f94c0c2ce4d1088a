package data

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

var ErrDuplicateEmail = errors.New("email already in use")

// User maps an authenticated identity to a hospital affiliation. HospitalID
// is nil until the user registers or joins a hospital.
type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	DisplayName  string    `json:"display_name"`
	HospitalID   *string   `json:"hospital_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

type UserModel struct {
	DB DBTX
}

func (m UserModel) Create(ctx context.Context, u *User) error {
	query := `
		INSERT INTO users (email, password_hash, display_name, hospital_id)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`

	err := m.DB.QueryRowContext(ctx, query,
		u.Email, u.PasswordHash, u.DisplayName, u.HospitalID,
	).Scan(&u.ID, &u.CreatedAt)

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return ErrDuplicateEmail
	}
	return err
}

func (m UserModel) GetByEmail(ctx context.Context, email string) (*User, error) {
	query := `
		SELECT id, email, password_hash, display_name, hospital_id, created_at
		FROM users
		WHERE email = $1`

	var u User
	err := m.DB.QueryRowContext(ctx, query, email).Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.DisplayName, &u.HospitalID, &u.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (m UserModel) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	query := `
		SELECT id, email, password_hash, display_name, hospital_id, created_at
		FROM users
		WHERE id = $1`

	var u User
	err := m.DB.QueryRowContext(ctx, query, id).Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.DisplayName, &u.HospitalID, &u.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// LinkHospital attaches the affiliation once; an already-linked user keeps
// its hospital.
func (m UserModel) LinkHospital(ctx context.Context, userID uuid.UUID, hospitalID string) error {
	query := `
		UPDATE users
		SET hospital_id = $1
		WHERE id = $2 AND hospital_id IS NULL`

	res, err := m.DB.ExecContext(ctx, query, hospitalID, userID)
	if err != nil {
		return err
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrRecordNotFound
	}
	return nil
}
