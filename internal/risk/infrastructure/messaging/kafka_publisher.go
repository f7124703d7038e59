// 包 messaging 风控域事件的 Kafka 发布实现。
package messaging

import (
	"context"

	"github.com/wyfcoding/optionsvenue/internal/risk/domain"
	"github.com/wyfcoding/optionsvenue/pkg/mq"
)

type kafkaEventPublisher struct {
	producer *mq.KafkaProducer
}

// NewKafkaEventPublisher 事件类型即 topic 名。
func NewKafkaEventPublisher(producer *mq.KafkaProducer) domain.EventPublisher {
	return &kafkaEventPublisher{producer: producer}
}

func (p *kafkaEventPublisher) Publish(ctx context.Context, eventType, key string, event any) error {
	return p.producer.SendMessage(ctx, eventType, key, event)
}
