// Package kafka 提供反欺诈服务的 Kafka 事件发布
package kafka

import (
	"context"
	"encoding/json"

	"github.com/IBM/sarama"

	"github.com/eidos-exchange/eidos/eidos-fraud/internal/metrics"
	"github.com/eidos-exchange/eidos/eidos-fraud/internal/service"
	"github.com/eidos-exchange/eidos/eidos-fraud/pkg/logger"
)

// Topics 事件主题
type Topics struct {
	Decisions     string
	ReviewActions string
}

// Producer Kafka 生产者
type Producer struct {
	producer sarama.SyncProducer
	topics   Topics
}

// NewProducer 创建 Kafka 生产者
func NewProducer(brokers []string, clientID string, topics Topics) (*Producer, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 3
	config.Producer.Compression = sarama.CompressionSnappy
	config.ClientID = clientID

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, err
	}

	return NewProducerWithClient(producer, topics), nil
}

// NewProducerWithClient 使用已有的 SyncProducer 创建生产者
func NewProducerWithClient(producer sarama.SyncProducer, topics Topics) *Producer {
	return &Producer{producer: producer, topics: topics}
}

// Close 关闭生产者
func (p *Producer) Close() error {
	return p.producer.Close()
}

// SendDecision 发送评分决策事件，按交易ID分区
func (p *Producer) SendDecision(ctx context.Context, event *service.DecisionEvent) error {
	return p.send(p.topics.Decisions, event.TransactionID, event)
}

// SendReviewAction 发送审核事件
func (p *Producer) SendReviewAction(ctx context.Context, event *service.ReviewEvent) error {
	return p.send(p.topics.ReviewActions, event.TransactionID, event)
}

func (p *Producer) send(topic, key string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(data),
	}

	partition, offset, err := p.producer.SendMessage(msg)
	metrics.RecordKafkaMessage(topic, err == nil)
	if err != nil {
		logger.Error("failed to send kafka message",
			"topic", topic,
			"key", key,
			"error", err)
		return err
	}

	logger.Debug("kafka message sent",
		"topic", topic,
		"key", key,
		"partition", partition,
		"offset", offset)

	return nil
}

// DecisionCallback 创建决策事件回调函数
func (p *Producer) DecisionCallback() func(ctx context.Context, event *service.DecisionEvent) error {
	return func(ctx context.Context, event *service.DecisionEvent) error {
		return p.SendDecision(ctx, event)
	}
}

// ReviewActionCallback 创建审核事件回调函数
func (p *Producer) ReviewActionCallback() func(ctx context.Context, event *service.ReviewEvent) error {
	return func(ctx context.Context, event *service.ReviewEvent) error {
		return p.SendReviewAction(ctx, event)
	}
}
