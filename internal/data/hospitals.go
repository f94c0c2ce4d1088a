package data

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"
)

// Hospital is a registered network participant. The ID is the hospital's
// registration number, chosen at sign-up.
type Hospital struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	RegistrationNumber string    `json:"registration_number"`
	Type               string    `json:"type,omitempty"`
	Location           string    `json:"location,omitempty"`
	Contact            string    `json:"contact,omitempty"`
	Email              string    `json:"email,omitempty"`
	Website            string    `json:"website,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
}

var ErrDuplicateHospital = errors.New("hospital already registered")

type HospitalModel struct {
	DB DBTX
}

func (m HospitalModel) Create(ctx context.Context, h *Hospital) error {
	query := `
		INSERT INTO hospitals (id, name, registration_number, type, location, contact, email, website)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at`

	err := m.DB.QueryRowContext(ctx, query,
		h.ID, h.Name, h.RegistrationNumber, h.Type, h.Location, h.Contact, h.Email, h.Website,
	).Scan(&h.CreatedAt)

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return ErrDuplicateHospital
	}
	return err
}

func (m HospitalModel) GetByID(ctx context.Context, id string) (*Hospital, error) {
	query := `
		SELECT id, name, registration_number, type, location, contact, email, website, created_at
		FROM hospitals
		WHERE id = $1`

	var h Hospital
	err := m.DB.QueryRowContext(ctx, query, id).Scan(
		&h.ID, &h.Name, &h.RegistrationNumber, &h.Type, &h.Location,
		&h.Contact, &h.Email, &h.Website, &h.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &h, nil
}

// List returns every hospital except excludeID (a hospital browsing the
// network never sees itself).
func (m HospitalModel) List(ctx context.Context, excludeID string) ([]*Hospital, error) {
	query := `
		SELECT id, name, registration_number, type, location, contact, email, website, created_at
		FROM hospitals
		WHERE id <> $1
		ORDER BY name`

	rows, err := m.DB.QueryContext(ctx, query, excludeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Hospital
	for rows.Next() {
		var h Hospital
		if err := rows.Scan(
			&h.ID, &h.Name, &h.RegistrationNumber, &h.Type, &h.Location,
			&h.Contact, &h.Email, &h.Website, &h.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, &h)
	}
	return out, rows.Err()
}
