package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eidos-exchange/eidos/eidos-fraud/internal/model"
	"github.com/eidos-exchange/eidos/eidos-fraud/internal/service"
)

var testTopics = Topics{Decisions: "fraud-decisions", ReviewActions: "fraud-review-actions"}

func TestProducer_SendDecision(t *testing.T) {
	mock := mocks.NewSyncProducer(t, nil)
	defer mock.Close()

	mock.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var event service.DecisionEvent
		if err := json.Unmarshal(val, &event); err != nil {
			return err
		}
		if event.TransactionID != "tx_1" || event.Decision != model.DecisionBlock {
			return errors.New("unexpected decision payload")
		}
		return nil
	})

	p := NewProducerWithClient(mock, testTopics)
	err := p.DecisionCallback()(context.Background(), &service.DecisionEvent{
		TransactionID: "tx_1",
		RiskScore:     97,
		Decision:      model.DecisionBlock,
		Source:        service.SourceCreate,
	})
	require.NoError(t, err)
}

func TestProducer_SendReviewAction(t *testing.T) {
	mock := mocks.NewSyncProducer(t, nil)
	defer mock.Close()

	mock.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != "fraud-review-actions" {
			return errors.New("wrong topic " + msg.Topic)
		}
		key, err := msg.Key.Encode()
		if err != nil {
			return err
		}
		if string(key) != "tx_2" {
			return errors.New("wrong key " + string(key))
		}
		return nil
	})

	p := NewProducerWithClient(mock, testTopics)
	err := p.ReviewActionCallback()(context.Background(), &service.ReviewEvent{
		TransactionID: "tx_2",
		Action:        model.ReviewActionReject,
		Outcome:       model.ReviewOutcomeApplied,
	})
	require.NoError(t, err)
}

func TestProducer_SendFailure(t *testing.T) {
	mock := mocks.NewSyncProducer(t, nil)
	defer mock.Close()

	mock.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	p := NewProducerWithClient(mock, testTopics)
	err := p.SendDecision(context.Background(), &service.DecisionEvent{TransactionID: "tx_3"})
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
}
