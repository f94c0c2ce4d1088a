package audit

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AuditEvent is one append-only trail entry. No update or delete methods are
// exposed anywhere in the package.
type AuditEvent struct {
	ID          int64           `json:"id"`
	EventID     uuid.UUID       `json:"event_id"`
	HospitalID  string          `json:"hospital_id"`
	ActorUserID *uuid.UUID      `json:"actor_user_id,omitempty"`
	Action      string          `json:"action"`
	TargetType  string          `json:"target_type"`
	TargetID    string          `json:"target_id"`
	Result      string          `json:"result"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Meta marshals a metadata map, swallowing errors; audit metadata is never
// worth failing an operation over.
func Meta(m map[string]any) json.RawMessage {
	b, err := json.Marshal(m)
	if err != nil {
		return nil
	}
	return b
}
