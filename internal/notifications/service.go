package notifications

import (
	"context"
	"log"

	"github.com/google/uuid"

	"github.com/carebridge/referral-hub/internal/data"
	"github.com/carebridge/referral-hub/internal/metrics"
)

// Service is the per-hospital inbox: append-only writes, batch mark-read,
// and a live push feed.
type Service struct {
	repo    data.NotificationModel
	hub     *Hub
	pub     *Publisher // nil when running single-instance
	metrics *metrics.Collector
}

func NewService(repo data.NotificationModel, hub *Hub, pub *Publisher, mc *metrics.Collector) *Service {
	return &Service{repo: repo, hub: hub, pub: pub, metrics: mc}
}

// Enqueue appends an event to the hospital's inbox and triggers feed
// delivery.
func (s *Service) Enqueue(ctx context.Context, n *data.Notification) error {
	if err := s.repo.Insert(ctx, n); err != nil {
		return err
	}
	s.metrics.NotificationSent(string(n.Type))
	s.changed(ctx, n.HospitalID)
	return nil
}

// List returns the full inbox, newest first.
func (s *Service) List(ctx context.Context, hospitalID string) ([]*data.Notification, error) {
	return s.repo.ListByHospital(ctx, hospitalID)
}

func (s *Service) CountUnread(ctx context.Context, hospitalID string) (int, error) {
	return s.repo.CountUnread(ctx, hospitalID)
}

// MarkRead flips one entry.
func (s *Service) MarkRead(ctx context.Context, hospitalID string, id uuid.UUID) error {
	if err := s.repo.MarkRead(ctx, hospitalID, id); err != nil {
		return err
	}
	s.changed(ctx, hospitalID)
	return nil
}

// MarkReadByReferral flips every entry referencing the referral in one batch.
func (s *Service) MarkReadByReferral(ctx context.Context, hospitalID string, referralID uuid.UUID) error {
	n, err := s.repo.MarkReadByReferral(ctx, hospitalID, referralID)
	if err != nil {
		return err
	}
	if n > 0 {
		s.changed(ctx, hospitalID)
	}
	return nil
}

// Subscribe attaches a live feed. The current snapshot is delivered
// immediately, then again on every change.
func (s *Service) Subscribe(ctx context.Context, hospitalID string) (<-chan []*data.Notification, func(), error) {
	ch, cancel := s.hub.Subscribe(hospitalID)
	s.metrics.FeedSubscribed()

	list, err := s.repo.ListByHospital(ctx, hospitalID)
	if err != nil {
		cancel()
		s.metrics.FeedUnsubscribed()
		return nil, nil, err
	}
	s.hub.Broadcast(hospitalID, list)

	wrapped := func() {
		cancel()
		s.metrics.FeedUnsubscribed()
	}
	return ch, wrapped, nil
}

// changed re-delivers locally and signals peer instances. Fanout is
// best-effort: a failed broadcast never fails the write that caused it.
func (s *Service) changed(ctx context.Context, hospitalID string) {
	list, err := s.repo.ListByHospital(ctx, hospitalID)
	if err != nil {
		log.Printf("inbox list for feed delivery failed: %v", err)
	} else {
		s.hub.Broadcast(hospitalID, list)
	}

	if s.pub != nil {
		if err := s.pub.Publish(hospitalID); err != nil {
			log.Printf("inbox change fanout failed: %v", err)
		}
	}
}

func (s *Service) refreshLocal(hospitalID string) error {
	if s.hub.Subscribers(hospitalID) == 0 {
		return nil
	}
	list, err := s.repo.ListByHospital(context.Background(), hospitalID)
	if err != nil {
		return err
	}
	s.hub.Broadcast(hospitalID, list)
	return nil
}
