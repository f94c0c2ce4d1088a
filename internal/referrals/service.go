package referrals

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/carebridge/referral-hub/internal/audit"
	"github.com/carebridge/referral-hub/internal/data"
	"github.com/carebridge/referral-hub/internal/metrics"
	"github.com/carebridge/referral-hub/internal/resources"
)

// Notifier is the slice of the inbox service the lifecycle needs.
type Notifier interface {
	Enqueue(ctx context.Context, n *data.Notification) error
	MarkReadByReferral(ctx context.Context, hospitalID string, referralID uuid.UUID) error
}

type Auditor interface {
	WriteEvent(ctx context.Context, evt audit.AuditEvent) error
}

// Service orchestrates the referral lifecycle: create, accept, reject, and
// the mirror self-heal read path.
type Service struct {
	db       *sql.DB
	notifier Notifier
	audits   Auditor
	metrics  *metrics.Collector

	// Hospital rows are immutable apart from rare profile edits, so a short
	// TTL cache takes the denormalized-name lookups off the hot path.
	hospitals *expirable.LRU[string, *data.Hospital]
}

func NewService(db *sql.DB, notifier Notifier, audits Auditor, mc *metrics.Collector) *Service {
	return &Service{
		db:        db,
		notifier:  notifier,
		audits:    audits,
		metrics:   mc,
		hospitals: expirable.NewLRU[string, *data.Hospital](256, nil, 5*time.Minute),
	}
}

type CreateInput struct {
	ToHospitalID       string            `json:"toHospitalId"`
	RequiredSpecialist string            `json:"requiredSpecialist"`
	Resources          resources.Request `json:"resourcesRequested"`
}

// Create validates and writes the canonical record plus both mirrors, then
// notifies both parties.
func (s *Service) Create(ctx context.Context, senderHospitalID string, in CreateInput) (*data.Referral, error) {
	if senderHospitalID == "" {
		return nil, ErrSenderUnresolved
	}
	if senderHospitalID == in.ToHospitalID {
		return nil, ErrSelfReferral
	}
	if strings.TrimSpace(in.RequiredSpecialist) == "" {
		return nil, ErrBlankSpecialist
	}
	if !in.Resources.Valid() || in.Resources.IsZero() {
		return nil, ErrEmptyRequest
	}

	sender, err := s.hospital(ctx, senderHospitalID)
	if errors.Is(err, data.ErrRecordNotFound) {
		return nil, ErrSenderUnresolved
	}
	if err != nil {
		return nil, err
	}
	receiver, err := s.hospital(ctx, in.ToHospitalID)
	if err != nil {
		return nil, err
	}

	reqDoc, err := json.Marshal(in.Resources)
	if err != nil {
		return nil, err
	}

	ref := &data.Referral{
		FromHospitalID:     sender.ID,
		ToHospitalID:       receiver.ID,
		FromHospitalName:   sender.Name,
		ToHospitalName:     receiver.Name,
		RequiredSpecialist: in.RequiredSpecialist,
		ResourcesRequested: reqDoc,
		Status:             data.StatusPending,
	}

	err = data.RunSerializable(ctx, s.db, data.DefaultTxAttempts, func(tx *sql.Tx) error {
		refs := data.ReferralModel{DB: tx}
		if err := refs.Create(ctx, ref); err != nil {
			return err
		}

		mirrors := data.MirrorModel{DB: tx}
		for _, side := range []string{ref.FromHospitalID, ref.ToHospitalID} {
			if err := mirrors.Upsert(ctx, mirrorOf(ref, side)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.ReferralTransition(string(data.StatusPending))

	s.enqueue(ctx, &data.Notification{
		HospitalID: receiver.ID,
		ReferralID: &ref.ID,
		Type:       data.NotifReferralRequest,
		Title:      "New Referral Request",
		Message:    fmt.Sprintf("Referral request from %s.", sender.Name),
	})
	s.enqueue(ctx, &data.Notification{
		HospitalID: sender.ID,
		ReferralID: &ref.ID,
		Type:       data.NotifStatusUpdate,
		Title:      "Referral Sent",
		Message:    fmt.Sprintf("You sent a referral to %s.", receiver.Name),
	})

	s.writeAudit(ctx, sender.ID, "referral.create", ref.ID, "success", map[string]any{
		"to": receiver.ID, "specialist": in.RequiredSpecialist,
	})
	return ref, nil
}

// Get loads a referral for an authorized party, self-healing the party's
// mirror when it is missing. Self-healing is idempotent: re-running it never
// duplicates a mirror nor touches canonical data.
func (s *Service) Get(ctx context.Context, actingHospitalID string, referralID uuid.UUID) (*data.Referral, data.Direction, error) {
	refs := data.ReferralModel{DB: s.db}
	mirrors := data.MirrorModel{DB: s.db}

	ref, err := refs.GetByID(ctx, referralID)
	if err != nil {
		return nil, "", err
	}
	if actingHospitalID != ref.FromHospitalID && actingHospitalID != ref.ToHospitalID {
		return nil, "", ErrPermissionDenied
	}

	direction := data.DirectionOutgoing
	if actingHospitalID == ref.ToHospitalID {
		direction = data.DirectionIncoming
	}

	if _, err := mirrors.Get(ctx, actingHospitalID, referralID); errors.Is(err, data.ErrRecordNotFound) {
		if err := mirrors.Upsert(ctx, mirrorOf(ref, actingHospitalID)); err != nil {
			return nil, "", err
		}
	} else if err != nil {
		return nil, "", err
	}

	return ref, direction, nil
}

// ListForHospital returns the hospital's mirrored referrals, newest first.
func (s *Service) ListForHospital(ctx context.Context, hospitalID string, direction data.Direction) ([]*data.Mirror, error) {
	mirrors := data.MirrorModel{DB: s.db}
	return mirrors.ListForHospital(ctx, hospitalID, direction)
}

// Accept transitions pending -> accepted. The status check, the sufficiency
// re-validation and the allocation all run on the same transaction's reads,
// so concurrent accepts cannot both win and a reader can never observe an
// accepted referral with stale occupancy.
func (s *Service) Accept(ctx context.Context, actingHospitalID string, referralID uuid.UUID) (*data.Referral, error) {
	return s.transition(ctx, actingHospitalID, referralID, data.StatusAccepted)
}

// Reject transitions pending -> rejected with no resource mutation.
func (s *Service) Reject(ctx context.Context, actingHospitalID string, referralID uuid.UUID) (*data.Referral, error) {
	return s.transition(ctx, actingHospitalID, referralID, data.StatusRejected)
}

func (s *Service) transition(ctx context.Context, actingHospitalID string, referralID uuid.UUID, target data.ReferralStatus) (*data.Referral, error) {
	var (
		ref       *data.Referral
		shortages []resources.Shortage
	)

	txErr := data.RunSerializable(ctx, s.db, data.DefaultTxAttempts, func(tx *sql.Tx) error {
		refs := data.ReferralModel{DB: tx}

		var err error
		ref, err = refs.GetByIDForUpdate(ctx, referralID)
		if err != nil {
			return err
		}
		if actingHospitalID != ref.ToHospitalID {
			// Only the receiving hospital decides; the sender gets the
			// same denial as a stranger.
			return ErrPermissionDenied
		}
		if ref.Status != data.StatusPending {
			return ErrNotPending
		}

		if target == data.StatusAccepted {
			var req resources.Request
			if err := json.Unmarshal(ref.ResourcesRequested, &req); err != nil {
				return err
			}
			_, sh, err := resources.ApplyAllocationTx(ctx, tx, ref.ToHospitalID, req)
			if err != nil {
				return err
			}
			if len(sh) > 0 {
				shortages = sh
				return errAbortShortage
			}
		}

		// Canonical first, then the two mirrors; all land atomically.
		updatedAt, err := refs.SetStatus(ctx, referralID, target)
		if err != nil {
			return err
		}
		ref.Status = target
		ref.UpdatedAt = updatedAt

		mirrors := data.MirrorModel{DB: tx}
		for _, side := range []string{ref.FromHospitalID, ref.ToHospitalID} {
			if err := mirrors.SetStatus(ctx, side, referralID, target, updatedAt); err != nil {
				return err
			}
		}
		return nil
	})

	if errors.Is(txErr, errAbortShortage) {
		s.metrics.AllocationShortage()
		s.writeAudit(ctx, actingHospitalID, "referral."+string(target), referralID, "insufficient", nil)
		return nil, &InsufficientResourcesError{Shortages: shortages}
	}
	if txErr != nil {
		return nil, txErr
	}

	s.metrics.ReferralTransition(string(target))

	title, message := statusNotification(ref, target)
	s.enqueue(ctx, &data.Notification{
		HospitalID: ref.FromHospitalID,
		ReferralID: &ref.ID,
		Type:       data.NotifStatusUpdate,
		Title:      title,
		Message:    message,
	})

	// Best-effort: a failed mark-read never rolls back the transition.
	for _, side := range []string{ref.FromHospitalID, ref.ToHospitalID} {
		if err := s.notifier.MarkReadByReferral(ctx, side, ref.ID); err != nil {
			log.Printf("mark-read for %s/%s failed: %v", side, ref.ID, err)
		}
	}

	s.writeAudit(ctx, actingHospitalID, "referral."+string(target), referralID, "success", nil)
	return ref, nil
}

var errAbortShortage = errors.New("insufficient resources")

func statusNotification(ref *data.Referral, target data.ReferralStatus) (title, message string) {
	switch target {
	case data.StatusAccepted:
		return "Referral Accepted", fmt.Sprintf("%s accepted your referral.", ref.ToHospitalName)
	default:
		return "Referral Rejected", fmt.Sprintf("%s rejected your referral.", ref.ToHospitalName)
	}
}

func mirrorOf(ref *data.Referral, hospitalID string) *data.Mirror {
	direction := data.DirectionOutgoing
	if hospitalID == ref.ToHospitalID {
		direction = data.DirectionIncoming
	}

	doc, _ := json.Marshal(struct {
		*data.Referral
		Direction data.Direction `json:"direction"`
		Mirror    bool           `json:"mirror"`
	}{ref, direction, true})

	return &data.Mirror{
		HospitalID: hospitalID,
		ReferralID: ref.ID,
		Direction:  direction,
		Doc:        doc,
		Status:     ref.Status,
		UpdatedAt:  ref.UpdatedAt,
	}
}

func (s *Service) hospital(ctx context.Context, id string) (*data.Hospital, error) {
	if h, ok := s.hospitals.Get(id); ok {
		return h, nil
	}
	h, err := data.HospitalModel{DB: s.db}.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.hospitals.Add(id, h)
	return h, nil
}

// enqueue runs after the lifecycle transaction committed, so a failure here
// can only be logged and counted, never unwound into the response.
func (s *Service) enqueue(ctx context.Context, n *data.Notification) {
	if err := s.notifier.Enqueue(ctx, n); err != nil {
		s.metrics.NotificationLost()
		log.Printf("notification enqueue for %s failed: %v", n.HospitalID, err)
	}
}

func (s *Service) writeAudit(ctx context.Context, hospitalID, action string, target uuid.UUID, result string, meta map[string]any) {
	if s.audits == nil {
		return
	}
	_ = s.audits.WriteEvent(ctx, audit.AuditEvent{
		HospitalID: hospitalID,
		Action:     action,
		TargetType: "referral",
		TargetID:   target.String(),
		Result:     result,
		Metadata:   audit.Meta(meta),
	})
}
