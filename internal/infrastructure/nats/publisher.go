package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/example/bank-es/internal/infrastructure/store"
	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

type msgPublisher interface {
	PublishMsg(ctx context.Context, msg *natsgo.Msg, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// Publisher forwards committed events to a JetStream stream. The event id is
// used as the message id so redelivered events are dropped by the server.
type Publisher struct {
	js            msgPublisher
	subjectPrefix string
}

// Connect dials NATS with bounded reconnects.
func Connect(url string) (*natsgo.Conn, error) {
	nc, err := natsgo.Connect(url, natsgo.MaxReconnects(3), natsgo.Name("bank-es"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}
	return nc, nil
}

// NewPublisher ensures a stream capturing "<prefix>.>" exists and returns a
// publisher bound to it.
func NewPublisher(ctx context.Context, nc *natsgo.Conn, streamName, subjectPrefix string) (*Publisher, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("failed to create jetstream context: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*natsgo.DefaultTimeout)
	defer cancel()

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:       streamName,
		Subjects:   []string{subjectPrefix + ".>"},
		Storage:    jetstream.FileStorage,
		Duplicates: 2 * time.Minute,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to ensure stream %s: %w", streamName, err)
	}

	return &Publisher{js: js, subjectPrefix: subjectPrefix}, nil
}

func (p *Publisher) subject(event store.Event) string {
	return p.subjectPrefix + "." + event.AggregateType + "." + event.AggregateID
}

func (p *Publisher) Publish(ctx context.Context, event store.Event) error {
	msg := natsgo.NewMsg(p.subject(event))
	msg.Header.Set("x-event-type", event.EventType)
	msg.Header.Set("x-aggregate-type", event.AggregateType)
	msg.Header.Set("x-aggregate-id", event.AggregateID)

	var err error
	msg.Data, err = json.Marshal(event)
	if err != nil {
		return err
	}

	if _, err := p.js.PublishMsg(ctx, msg, jetstream.WithMsgID(event.ID)); err != nil {
		return fmt.Errorf("failed to publish to subject %s %s: %w", msg.Subject, event.EventType, err)
	}
	return nil
}
