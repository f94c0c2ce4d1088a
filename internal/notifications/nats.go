package notifications

import (
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"
)

// SubjectPrefix is the per-hospital change-signal subject namespace.
const SubjectPrefix = "referralhub.inbox."

// Publisher signals inbox changes to peer server instances over NATS so
// their hubs re-deliver too. Payload is just the hospital id; the receiving
// side refetches from the store.
type Publisher struct {
	conn       *nats.Conn
	maxRetries int
}

func NewPublisher(conn *nats.Conn, maxRetries int) *Publisher {
	return &Publisher{conn: conn, maxRetries: maxRetries}
}

func (p *Publisher) Publish(hospitalID string) error {
	subject := SubjectPrefix + hospitalID

	var err error
	for i := 0; i <= p.maxRetries; i++ {
		err = p.conn.Publish(subject, []byte(hospitalID))
		if err == nil {
			return nil
		}
		time.Sleep(time.Duration(i*100) * time.Millisecond)
	}
	return fmt.Errorf("publish failed after %d retries: %w", p.maxRetries, err)
}

// SubscribeChanges wires remote change signals into the local hub via the
// service's refresh path.
func SubscribeChanges(conn *nats.Conn, svc *Service) (*nats.Subscription, error) {
	return conn.Subscribe(SubjectPrefix+">", func(msg *nats.Msg) {
		hospitalID := string(msg.Data)
		if hospitalID == "" {
			return
		}
		if err := svc.refreshLocal(hospitalID); err != nil {
			log.Printf("inbox refresh for %s failed: %v", hospitalID, err)
		}
	})
}
