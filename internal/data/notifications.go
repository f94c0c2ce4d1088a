package data

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type NotificationType string

const (
	NotifReferralRequest NotificationType = "referral-request"
	NotifStatusUpdate    NotificationType = "referral-status-update"
	NotifCritical        NotificationType = "critical"
	NotifWarning         NotificationType = "warning"
	NotifDefault         NotificationType = "default"
)

// Notification is one per-hospital inbox entry. The inbox is append-only;
// the only mutation ever applied is flipping read.
type Notification struct {
	ID         uuid.UUID        `json:"id"`
	HospitalID string           `json:"-"`
	ReferralID *uuid.UUID       `json:"referralId,omitempty"`
	Type       NotificationType `json:"type"`
	Title      string           `json:"title"`
	Message    string           `json:"message"`
	Read       bool             `json:"read"`
	CreatedAt  time.Time        `json:"timestamp"`
}

type NotificationModel struct {
	DB DBTX
}

func (m NotificationModel) Insert(ctx context.Context, n *Notification) error {
	query := `
		INSERT INTO notifications (hospital_id, referral_id, type, title, message, read)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`

	return m.DB.QueryRowContext(ctx, query,
		n.HospitalID, n.ReferralID, n.Type, n.Title, n.Message, n.Read,
	).Scan(&n.ID, &n.CreatedAt)
}

// ListByHospital returns the full current inbox, newest first. The live feed
// re-delivers this set on every change.
func (m NotificationModel) ListByHospital(ctx context.Context, hospitalID string) ([]*Notification, error) {
	query := `
		SELECT id, hospital_id, referral_id, type, title, message, read, created_at
		FROM notifications
		WHERE hospital_id = $1
		ORDER BY created_at DESC, id DESC`

	rows, err := m.DB.QueryContext(ctx, query, hospitalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.HospitalID, &n.ReferralID, &n.Type, &n.Title, &n.Message, &n.Read, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &n)
	}
	return out, rows.Err()
}

// MarkReadByReferral flips read on every entry referencing the referral in
// one batch, not item by item.
func (m NotificationModel) MarkReadByReferral(ctx context.Context, hospitalID string, referralID uuid.UUID) (int64, error) {
	query := `
		UPDATE notifications
		SET read = TRUE
		WHERE hospital_id = $1 AND referral_id = $2 AND read = FALSE`

	res, err := m.DB.ExecContext(ctx, query, hospitalID, referralID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (m NotificationModel) MarkRead(ctx context.Context, hospitalID string, id uuid.UUID) error {
	query := `UPDATE notifications SET read = TRUE WHERE hospital_id = $1 AND id = $2`
	res, err := m.DB.ExecContext(ctx, query, hospitalID, id)
	if err != nil {
		return err
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (m NotificationModel) CountUnread(ctx context.Context, hospitalID string) (int, error) {
	query := `SELECT COUNT(*) FROM notifications WHERE hospital_id = $1 AND read = FALSE`
	var n int
	err := m.DB.QueryRowContext(ctx, query, hospitalID).Scan(&n)
	return n, err
}
