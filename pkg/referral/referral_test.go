package referral

import (
	"context"
	"errors"
	"testing"

	"course-subscription-be/internal/entity"
	"course-subscription-be/internal/pkg/logger"
	"course-subscription-be/pkg/billing/activation"
	"course-subscription-be/pkg/events"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	published []events.Event
	err       error
}

func (p *capturePublisher) Publish(ctx context.Context, event events.Event) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, event)
	return nil
}

func TestActivationHookPublishesReferralRequest(t *testing.T) {
	publisher := &capturePublisher{}
	hook := NewActivationHook(NewEventProcessor(publisher, logger.NewNopLogger()))

	userId := uuid.New()
	subId := uuid.New()
	txId := uuid.New()
	err := hook.AfterActivation(context.Background(), activation.Activation{
		UserId:       userId,
		Subscription: entity.Subscription{Id: subId},
		Transaction:  entity.OnrampTransaction{Id: txId},
		Amount:       decimal.RequireFromString("10.00"),
	})
	require.NoError(t, err)

	require.Len(t, publisher.published, 1)
	evt := publisher.published[0]
	assert.Equal(t, EventSubscriptionReferralRequested, evt.EventType())
	assert.Equal(t, userId.String(), evt.Payload()["user_id"])
	assert.Equal(t, subId.String(), evt.Payload()["subscription_id"])
	assert.Equal(t, "10", evt.Payload()["amount_paid"])
	assert.Equal(t, txId.String(), evt.Payload()["transaction_id"])
	assert.Equal(t, "referral:"+txId.String(), evt.Payload()[events.DedupKey])
}

func TestReferralDedupKeyFollowsTheTransaction(t *testing.T) {
	publisher := &capturePublisher{}
	hook := NewActivationHook(NewEventProcessor(publisher, logger.NewNopLogger()))

	userId := uuid.New()
	subId := uuid.New()
	first := activation.Activation{
		UserId:       userId,
		Subscription: entity.Subscription{Id: subId},
		Transaction:  entity.OnrampTransaction{Id: uuid.New()},
		Amount:       decimal.NewFromInt(10),
	}
	renewal := first
	renewal.Transaction = entity.OnrampTransaction{Id: uuid.New()}
	renewal.Renewal = true

	// A redelivered hook keeps its key; a renewal of the same subscription gets its own.
	require.NoError(t, hook.AfterActivation(context.Background(), first))
	require.NoError(t, hook.AfterActivation(context.Background(), first))
	require.NoError(t, hook.AfterActivation(context.Background(), renewal))

	require.Len(t, publisher.published, 3)
	keys := make([]interface{}, len(publisher.published))
	for i, evt := range publisher.published {
		keys[i] = evt.Payload()[events.DedupKey]
	}
	assert.Equal(t, keys[0], keys[1])
	assert.NotEqual(t, keys[0], keys[2])
}

func TestProcessorSurfacesPublishErrors(t *testing.T) {
	processor := NewEventProcessor(&capturePublisher{err: errors.New("nats down")}, logger.NewNopLogger())
	err := processor.ProcessSubscriptionReferral(context.Background(), uuid.New(), uuid.New(), uuid.New(), decimal.NewFromInt(10))
	assert.Error(t, err)
}

func TestProcessorWithoutBusIsNoop(t *testing.T) {
	processor := NewEventProcessor(nil, logger.NewNopLogger())
	assert.NoError(t, processor.ProcessSubscriptionReferral(context.Background(), uuid.New(), uuid.New(), uuid.New(), decimal.Zero))
}
