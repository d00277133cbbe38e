package events

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// ChannelPublisher publishes onto an in-process watermill GoChannel. Used when
// no NATS server is configured.
type ChannelPublisher struct {
	pubSub *gochannel.GoChannel
}

var _ Publisher = (*ChannelPublisher)(nil)

func NewChannelPublisher(pubSub *gochannel.GoChannel) *ChannelPublisher {
	return &ChannelPublisher{pubSub: pubSub}
}

func (p *ChannelPublisher) Publish(ctx context.Context, event Event) error {
	data, err := Encode(event)
	if err != nil {
		return fmt.Errorf("failed to encode event %s: %w", event.EventType(), err)
	}

	id := DedupID(event)
	if id == "" {
		id = watermill.NewUUID()
	}
	msg := message.NewMessage(id, data)
	msg.Metadata.Set("event_type", event.EventType())
	msg.SetContext(ctx)

	if err := p.pubSub.Publish(Subject(event.EventType()), msg); err != nil {
		return fmt.Errorf("failed to publish event %s: %w", event.EventType(), err)
	}
	return nil
}
