package data

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"
)

// ResourceModel persists the per-hospital ResourceSnapshot document. The doc
// column keeps whatever shapes were originally written; normalization is the
// resources package's job.
type ResourceModel struct {
	DB DBTX
}

func (m ResourceModel) GetDoc(ctx context.Context, hospitalID string) ([]byte, error) {
	query := `SELECT doc FROM hospital_resources WHERE hospital_id = $1`

	var doc []byte
	err := m.DB.QueryRowContext(ctx, query, hospitalID).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// GetDocForUpdate row-locks the snapshot so staff edits and referral
// acceptance serialize through the same path.
func (m ResourceModel) GetDocForUpdate(ctx context.Context, hospitalID string) ([]byte, error) {
	query := `SELECT doc FROM hospital_resources WHERE hospital_id = $1 FOR UPDATE`

	var doc []byte
	err := m.DB.QueryRowContext(ctx, query, hospitalID).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// InsertDoc creates the snapshot if absent. A concurrent first read may have
// beaten us to it; that is fine, the existing doc wins. A foreign-key
// violation means the hospital itself does not exist, which callers treat
// the same as a missing record.
func (m ResourceModel) InsertDoc(ctx context.Context, hospitalID string, doc []byte) error {
	query := `
		INSERT INTO hospital_resources (hospital_id, doc)
		VALUES ($1, $2)
		ON CONFLICT (hospital_id) DO NOTHING`
	_, err := m.DB.ExecContext(ctx, query, hospitalID, doc)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23503" {
		return ErrRecordNotFound
	}
	return err
}

func (m ResourceModel) UpdateDoc(ctx context.Context, hospitalID string, doc []byte) (time.Time, error) {
	query := `
		UPDATE hospital_resources
		SET doc = $1, updated_at = NOW()
		WHERE hospital_id = $2
		RETURNING updated_at`

	var updatedAt time.Time
	err := m.DB.QueryRowContext(ctx, query, doc, hospitalID).Scan(&updatedAt)
	if err == sql.ErrNoRows {
		return time.Time{}, ErrRecordNotFound
	}
	return updatedAt, err
}
