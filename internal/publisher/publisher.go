// Package publisher delivers applied ledger notifications to NATS JetStream
// for downstream consumers. Publishing is best-effort: a consumer that needs
// a gapless feed reads the audit log instead.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"LoanLedger/internal/event"
	"LoanLedger/internal/observability"
)

// StreamName is the JetStream stream holding outbound notifications.
const StreamName = "LOAN_LEDGER_EVENTS"

// Publisher drains the publish channel and publishes to
// loan.ledger.events.{op}.
type Publisher struct {
	js        jetstream.JetStream
	inputChan <-chan *event.Notification
	metrics   *observability.Metrics
}

func New(js jetstream.JetStream, inputChan <-chan *event.Notification, metrics *observability.Metrics) *Publisher {
	return &Publisher{
		js:        js,
		inputChan: inputChan,
		metrics:   metrics,
	}
}

// Run starts the publisher loop. Blocks until ctx is cancelled or the input
// channel closes.
func (p *Publisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case notif, ok := <-p.inputChan:
			if !ok {
				return nil
			}

			if err := p.publish(ctx, notif); err != nil {
				log.Printf("WARN: outbound publish failed seq=%d: %v", notif.Sequence, err)
				if p.metrics != nil {
					p.metrics.PublishErrors.Inc()
				}
				// Non-fatal: consumers can query the audit log directly
				continue
			}
			if p.metrics != nil {
				p.metrics.EventsPublished.WithLabelValues(notif.Op.String()).Inc()
			}
		}
	}
}

func (p *Publisher) publish(ctx context.Context, notif *event.Notification) error {
	data, err := json.Marshal(notif)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	subject := fmt.Sprintf("loan.ledger.events.%s", notif.Op)
	_, err = p.js.Publish(ctx, subject, data)
	return err
}

// EnsureStream creates the outbound notification stream.
func EnsureStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      StreamName,
		Subjects:  []string{"loan.ledger.events.>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create outbound stream: %w", err)
	}
	log.Printf("INFO: ensured outbound stream %s", StreamName)
	return nil
}

// Connect establishes a NATS connection and returns a JetStream context.
func Connect(url string) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Printf("WARN: NATS disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Println("INFO: NATS reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}

	return nc, js, nil
}
