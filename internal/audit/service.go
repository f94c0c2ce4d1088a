package audit

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/carebridge/referral-hub/internal/data"
)

type Service struct {
	DB data.DBTX
}

func NewService(db data.DBTX) *Service {
	return &Service{DB: db}
}

// WriteEvent inserts the event, generating EventID when absent. Duplicate
// event IDs are ignored so replays stay idempotent.
func (s *Service) WriteEvent(ctx context.Context, evt AuditEvent) error {
	if evt.EventID == uuid.Nil {
		evt.EventID = uuid.New()
	}
	if evt.CreatedAt.IsZero() {
		evt.CreatedAt = time.Now().UTC()
	}
	if evt.Result == "" {
		evt.Result = "success"
	}

	query := `
		INSERT INTO audit_events (
			event_id, hospital_id, actor_user_id, action, target_type, target_id,
			result, metadata, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (event_id) DO NOTHING`

	_, err := s.DB.ExecContext(ctx, query,
		evt.EventID, evt.HospitalID, evt.ActorUserID, evt.Action, evt.TargetType,
		evt.TargetID, evt.Result, []byte(evt.Metadata), evt.CreatedAt,
	)
	if err != nil {
		// Best-effort: the trail must never abort the parent operation.
		log.Printf("audit write failed for %s: %v", evt.EventID, err)
	}
	return err
}

type Filter struct {
	HospitalID string
	Action     string
	Limit      int
}

// QueryEvents returns the newest matching events with a simple id cursor.
func (s *Service) QueryEvents(ctx context.Context, f Filter) ([]AuditEvent, error) {
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}

	q := `SELECT id, event_id, hospital_id, actor_user_id, action, target_type, target_id, result, metadata, created_at
	      FROM audit_events
	      WHERE hospital_id = $1`
	args := []any{f.HospitalID}
	if f.Action != "" {
		q += fmt.Sprintf(" AND action = $%d", len(args)+1)
		args = append(args, f.Action)
	}
	q += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d", len(args)+1)
	args = append(args, f.Limit)

	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []AuditEvent
	for rows.Next() {
		var e AuditEvent
		var meta []byte
		if err := rows.Scan(&e.ID, &e.EventID, &e.HospitalID, &e.ActorUserID, &e.Action,
			&e.TargetType, &e.TargetID, &e.Result, &meta, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Metadata = meta
		events = append(events, e)
	}
	return events, rows.Err()
}
