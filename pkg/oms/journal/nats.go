package journal

import (
	"context"
	"encoding/json"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const (
	StreamName     = "ORDERS"
	DefaultSubject = "ORDERS.events"
)

// NATSPublisher publishes entries to a JetStream subject.
type NATSPublisher struct {
	js      nats.JetStreamContext
	subject string
}

// NewNATSPublisher connects, ensures the ORDERS stream exists and returns a
// publisher on the given subject (DefaultSubject when empty).
func NewNATSPublisher(url, subject string) (*NATSPublisher, error) {
	if subject == "" {
		subject = DefaultSubject
	}
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, err
	}
	js, err := nc.JetStream()
	if err != nil {
		return nil, err
	}
	_, err = js.AddStream(&nats.StreamConfig{
		Name:     StreamName,
		Subjects: []string{StreamName + ".*"},
	})
	if err != nil && err != nats.ErrStreamNameAlreadyInUse {
		zap.S().Warnf("ensure stream %s: %v", StreamName, err)
	}
	return &NATSPublisher{js: js, subject: subject}, nil
}

func (p *NATSPublisher) Publish(ctx context.Context, e Entry) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	_, err = p.js.Publish(p.subject, b, nats.Context(ctx))
	return err
}
