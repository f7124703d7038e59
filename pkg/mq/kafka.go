// Package mq 提供 Kafka producer/consumer 通用封装。
package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/wyfcoding/pkg/logging"
)

// KafkaConfig Kafka 配置
type KafkaConfig struct {
	Brokers      []string
	GroupID      string
	MaxRetries   int
	RetryBackoff int
}

// KafkaProducer Kafka 生产者
type KafkaProducer struct {
	writer *kafka.Writer
}

// NewProducer 创建 Kafka 生产者
func NewProducer(cfg KafkaConfig) *KafkaProducer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		AllowAutoTopicCreation: true,
		Compression:            kafka.Gzip,
		RequiredAcks:           kafka.RequireAll,
		MaxAttempts:            cfg.MaxRetries,
		WriteBackoffMin:        time.Duration(cfg.RetryBackoff) * time.Millisecond,
		WriteBackoffMax:        time.Duration(cfg.RetryBackoff*10) * time.Millisecond,
	}
	return &KafkaProducer{writer: writer}
}

// SendMessage 发送单条消息，value 以 JSON 编码。
func (kp *KafkaProducer) SendMessage(ctx context.Context, topic, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	msg := kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: data,
	}

	if err := kp.writer.WriteMessages(ctx, msg); err != nil {
		logging.Error(ctx, "Failed to send Kafka message", "topic", topic, "key", key, "error", err)
		return err
	}
	return nil
}

// Close 关闭生产者
func (kp *KafkaProducer) Close() error {
	return kp.writer.Close()
}

// Handler 消费回调
type Handler func(ctx context.Context, msg kafka.Message) error

// KafkaConsumer Kafka 消费者
type KafkaConsumer struct {
	reader *kafka.Reader
}

// NewConsumer 创建 Kafka 消费者，订阅指定 topics。
func NewConsumer(cfg KafkaConfig, topics []string) *KafkaConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     cfg.GroupID,
		GroupTopics: topics,
		StartOffset: kafka.LastOffset,
	})
	return &KafkaConsumer{reader: reader}
}

// Run 拉取消息循环，直到 ctx 取消。单条处理失败记录日志后继续。
func (kc *KafkaConsumer) Run(ctx context.Context, handler Handler) error {
	for {
		msg, err := kc.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		if err := handler(ctx, msg); err != nil {
			logging.Error(ctx, "Failed to handle Kafka message", "topic", msg.Topic, "error", err)
		}

		if err := kc.reader.CommitMessages(ctx, msg); err != nil {
			logging.Error(ctx, "Failed to commit Kafka message", "topic", msg.Topic, "error", err)
		}
	}
}

// Close 关闭消费者
func (kc *KafkaConsumer) Close() error {
	return kc.reader.Close()
}
