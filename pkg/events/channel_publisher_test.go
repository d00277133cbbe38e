package events

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelPublisherDeliversEnvelope(t *testing.T) {
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	defer pubSub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	messages, err := pubSub.Subscribe(ctx, Subject("SUBSCRIPTION_REFERRAL_REQUESTED"))
	require.NoError(t, err)

	occurredAt := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	publisher := NewChannelPublisher(pubSub)
	err = publisher.Publish(ctx, BaseEvent{
		Type:       "SUBSCRIPTION_REFERRAL_REQUESTED",
		Data:       map[string]interface{}{"amount_paid": "10", DedupKey: "referral:tx-1"},
		OccurredAt: occurredAt,
	})
	require.NoError(t, err)

	select {
	case msg := <-messages:
		env, err := Decode(msg.Payload)
		require.NoError(t, err)
		assert.Equal(t, "SUBSCRIPTION_REFERRAL_REQUESTED", env.Type)
		assert.True(t, occurredAt.Equal(env.OccurredAt))
		assert.Equal(t, "10", env.Payload["amount_paid"])
		assert.Equal(t, "referral:tx-1", msg.UUID)
		assert.Equal(t, "SUBSCRIPTION_REFERRAL_REQUESTED", msg.Metadata.Get("event_type"))
		msg.Ack()
	case <-ctx.Done():
		t.Fatal("event not delivered")
	}
}

func TestDedupID(t *testing.T) {
	assert.Equal(t, "x", DedupID(BaseEvent{Data: map[string]interface{}{DedupKey: "x"}}))
	assert.Empty(t, DedupID(BaseEvent{Data: map[string]interface{}{DedupKey: 7}}))
	assert.Empty(t, DedupID(BaseEvent{}))
}
