package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type ReferralStatus string

const (
	StatusPending  ReferralStatus = "pending"
	StatusAccepted ReferralStatus = "accepted"
	StatusRejected ReferralStatus = "rejected"
)

// Terminal reports whether no further transition is allowed.
func (s ReferralStatus) Terminal() bool {
	return s == StatusAccepted || s == StatusRejected
}

type Direction string

const (
	DirectionIncoming Direction = "incoming"
	DirectionOutgoing Direction = "outgoing"
)

// Referral is the canonical record, one per referral, outside any hospital's
// namespace. Identity fields are immutable after creation.
type Referral struct {
	ID                 uuid.UUID       `json:"referralId"`
	FromHospitalID     string          `json:"fromHospitalId"`
	ToHospitalID       string          `json:"toHospitalId"`
	FromHospitalName   string          `json:"fromHospitalName"`
	ToHospitalName     string          `json:"toHospitalName"`
	RequiredSpecialist string          `json:"requiredSpecialist"`
	ResourcesRequested json.RawMessage `json:"resourcesRequested"`
	Status             ReferralStatus  `json:"status"`
	CreatedAt          time.Time       `json:"createdAt"`
	UpdatedAt          time.Time       `json:"updatedAt"`
}

// Mirror is a per-hospital denormalized copy of a referral.
type Mirror struct {
	HospitalID string          `json:"-"`
	ReferralID uuid.UUID       `json:"referralId"`
	Direction  Direction       `json:"direction"`
	Doc        json.RawMessage `json:"doc"`
	Status     ReferralStatus  `json:"status"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

type ReferralModel struct {
	DB DBTX
}

func (m ReferralModel) Create(ctx context.Context, r *Referral) error {
	query := `
		INSERT INTO referrals (
			from_hospital_id, to_hospital_id, from_hospital_name, to_hospital_name,
			required_specialist, resources_requested, status
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`

	return m.DB.QueryRowContext(ctx, query,
		r.FromHospitalID, r.ToHospitalID, r.FromHospitalName, r.ToHospitalName,
		r.RequiredSpecialist, []byte(r.ResourcesRequested), r.Status,
	).Scan(&r.ID, &r.CreatedAt, &r.UpdatedAt)
}

func (m ReferralModel) GetByID(ctx context.Context, id uuid.UUID) (*Referral, error) {
	return m.get(ctx, id, false)
}

// GetByIDForUpdate row-locks the canonical record. Run inside the same
// transaction that applies the allocation so a second accept observes the
// terminal status instead of racing.
func (m ReferralModel) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*Referral, error) {
	return m.get(ctx, id, true)
}

func (m ReferralModel) get(ctx context.Context, id uuid.UUID, forUpdate bool) (*Referral, error) {
	query := `
		SELECT id, from_hospital_id, to_hospital_id, from_hospital_name, to_hospital_name,
		       required_specialist, resources_requested, status, created_at, updated_at
		FROM referrals
		WHERE id = $1`
	if forUpdate {
		query += " FOR UPDATE"
	}

	var r Referral
	var requested []byte
	err := m.DB.QueryRowContext(ctx, query, id).Scan(
		&r.ID, &r.FromHospitalID, &r.ToHospitalID, &r.FromHospitalName, &r.ToHospitalName,
		&r.RequiredSpecialist, &requested, &r.Status, &r.CreatedAt, &r.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	r.ResourcesRequested = requested
	return &r, nil
}

// SetStatus transitions the canonical record out of pending. The WHERE guard
// makes the transition idempotent-safe: a record already in a terminal state
// is never touched.
func (m ReferralModel) SetStatus(ctx context.Context, id uuid.UUID, status ReferralStatus) (time.Time, error) {
	query := `
		UPDATE referrals
		SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = 'pending'
		RETURNING updated_at`

	var updatedAt time.Time
	err := m.DB.QueryRowContext(ctx, query, status, id).Scan(&updatedAt)
	if err == sql.ErrNoRows {
		return time.Time{}, ErrRecordNotFound
	}
	return updatedAt, err
}

type MirrorModel struct {
	DB DBTX
}

// Upsert materializes or refreshes a mirror. Re-running it for the same
// referral is a no-op apart from refreshing the copied document.
func (m MirrorModel) Upsert(ctx context.Context, mir *Mirror) error {
	query := `
		INSERT INTO referral_mirrors (hospital_id, referral_id, direction, doc, status, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (hospital_id, referral_id)
		DO UPDATE SET doc = EXCLUDED.doc, status = EXCLUDED.status, updated_at = EXCLUDED.updated_at`

	_, err := m.DB.ExecContext(ctx, query,
		mir.HospitalID, mir.ReferralID, mir.Direction, []byte(mir.Doc), mir.Status, mir.UpdatedAt,
	)
	return err
}

func (m MirrorModel) Get(ctx context.Context, hospitalID string, referralID uuid.UUID) (*Mirror, error) {
	query := `
		SELECT hospital_id, referral_id, direction, doc, status, updated_at
		FROM referral_mirrors
		WHERE hospital_id = $1 AND referral_id = $2`

	var mir Mirror
	var doc []byte
	err := m.DB.QueryRowContext(ctx, query, hospitalID, referralID).Scan(
		&mir.HospitalID, &mir.ReferralID, &mir.Direction, &doc, &mir.Status, &mir.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	mir.Doc = doc
	return &mir, nil
}

// SetStatus updates an existing mirror only. The original skipped mirrors
// that were never materialized; the next read self-heals them from canonical.
func (m MirrorModel) SetStatus(ctx context.Context, hospitalID string, referralID uuid.UUID, status ReferralStatus, updatedAt time.Time) error {
	query := `
		UPDATE referral_mirrors
		SET status = $1, updated_at = $2,
		    doc = jsonb_set(
		        jsonb_set(doc, '{status}', to_jsonb($1::text)),
		        '{updatedAt}', to_jsonb($2::timestamptz))
		WHERE hospital_id = $3 AND referral_id = $4`

	_, err := m.DB.ExecContext(ctx, query, status, updatedAt, hospitalID, referralID)
	return err
}

// ListForHospital returns a hospital's mirrors newest first, optionally
// filtered by direction.
func (m MirrorModel) ListForHospital(ctx context.Context, hospitalID string, direction Direction) ([]*Mirror, error) {
	query := `
		SELECT hospital_id, referral_id, direction, doc, status, updated_at
		FROM referral_mirrors
		WHERE hospital_id = $1 AND ($2 = '' OR direction = $2)
		ORDER BY updated_at DESC`

	rows, err := m.DB.QueryContext(ctx, query, hospitalID, string(direction))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Mirror
	for rows.Next() {
		var mir Mirror
		var doc []byte
		if err := rows.Scan(&mir.HospitalID, &mir.ReferralID, &mir.Direction, &doc, &mir.Status, &mir.UpdatedAt); err != nil {
			return nil, err
		}
		mir.Doc = doc
		out = append(out, &mir)
	}
	return out, rows.Err()
}
