package producer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/Dhoini/billing-sync/internal/domain"
	"github.com/Dhoini/billing-sync/pkg/logger"
	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifyRecordChange_PublishesKeyedMessage(t *testing.T) {
	cfg := mocks.NewTestConfig()
	cfg.Producer.Return.Successes = true
	mock := mocks.NewSyncProducer(t, cfg)

	mock.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var change domain.RecordChange
		if err := json.Unmarshal(val, &change); err != nil {
			return err
		}
		if change.Kind != domain.ChangePlanSet || change.Plan == nil || change.Plan.PlanName != "Pro" {
			return errors.New("unexpected payload")
		}
		return nil
	})

	p := NewRecordChangeProducer(mock, "billing_record_changes", logger.NewNop())
	err := p.NotifyRecordChange(context.Background(), domain.RecordChange{
		Kind:        domain.ChangePlanSet,
		CustomerID:  "cus_1",
		Plan:        &domain.PlanState{SubscriptionID: "sub_1", PriceID: "p", ProductID: "prod", PlanName: "Pro", PlanPrice: 1000},
		SourceEvent: "customer.subscription.updated",
		OccurredAt:  time.Now(),
	})
	require.NoError(t, err)
	require.NoError(t, p.Close())
}

func TestNotifyRecordChange_SendFailure(t *testing.T) {
	cfg := mocks.NewTestConfig()
	cfg.Producer.Return.Successes = true
	mock := mocks.NewSyncProducer(t, cfg)
	mock.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	p := NewRecordChangeProducer(mock, "billing_record_changes", logger.NewNop())
	err := p.NotifyRecordChange(context.Background(), domain.RecordChange{Kind: domain.ChangeDeleted, CustomerID: "cus_1"})
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.NoError(t, p.Close())
}

func TestNotifyRecordChange_CanceledContext(t *testing.T) {
	cfg := mocks.NewTestConfig()
	cfg.Producer.Return.Successes = true
	mock := mocks.NewSyncProducer(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := NewRecordChangeProducer(mock, "billing_record_changes", logger.NewNop())
	assert.ErrorIs(t, p.NotifyRecordChange(ctx, domain.RecordChange{Kind: domain.ChangeCreated}), context.Canceled)
	require.NoError(t, p.Close())
}
