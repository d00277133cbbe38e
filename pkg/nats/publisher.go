package nats

import (
	"context"
	"fmt"
	"time"

	"course-subscription-be/internal/pkg/logger"
	"course-subscription-be/pkg/events"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const (
	StreamName = "BILLING_EVENTS"

	// dedupWindow must cover the longest a publisher may retry an event.
	dedupWindow = 10 * time.Minute
)

// Publisher sends billing events to NATS JetStream.
type Publisher struct {
	nc  *nats.Conn
	js  jetstream.JetStream
	log logger.ILogger
}

var _ events.Publisher = (*Publisher)(nil)

// NewPublisher connects to url and makes sure the billing stream exists.
func NewPublisher(ctx context.Context, url string, log logger.ILogger) (*Publisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("course-subscription-be"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("NATS", "Disconnected", map[string]interface{}{"error": err.Error()})
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info("NATS", "Reconnected", map[string]interface{}{"url": c.ConnectedUrlRedacted()})
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	streamCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err = js.CreateOrUpdateStream(streamCtx, jetstream.StreamConfig{
		Name:       StreamName,
		Subjects:   []string{events.Subject(">")},
		Storage:    jetstream.FileStorage,
		Retention:  jetstream.LimitsPolicy,
		Duplicates: dedupWindow,
	})
	if err != nil {
		// The stream may already exist with a different config.
		log.Warn("NATS", "Failed to ensure stream", map[string]interface{}{
			"stream": StreamName,
			"error":  err.Error(),
		})
	}

	return &Publisher{nc: nc, js: js, log: log}, nil
}

// Publish sends the event envelope to JetStream. The event's dedup id, when
// present, becomes the Nats-Msg-Id.
func (p *Publisher) Publish(ctx context.Context, event events.Event) error {
	data, err := events.Encode(event)
	if err != nil {
		return fmt.Errorf("failed to encode event %s: %w", event.EventType(), err)
	}

	msg := nats.NewMsg(events.Subject(event.EventType()))
	msg.Data = data
	msg.Header.Set("Event-Type", event.EventType())

	var opts []jetstream.PublishOpt
	if id := events.DedupID(event); id != "" {
		opts = append(opts, jetstream.WithMsgID(id))
	}

	ack, err := p.js.PublishMsg(ctx, msg, opts...)
	if err != nil {
		return fmt.Errorf("failed to publish event to subject %s: %w", msg.Subject, err)
	}
	if ack.Duplicate {
		p.log.Debug("NATS", "Duplicate event dropped by stream", map[string]interface{}{
			"subject": msg.Subject,
			"seq":     ack.Sequence,
		})
	}
	return nil
}

func (p *Publisher) Close() {
	if p.nc != nil {
		p.nc.Drain()
	}
}
