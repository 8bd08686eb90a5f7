// Package kafka publishes committed trades to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/nexusx/nexus/internal/domain"
)

// DefaultTopic receives trade events when no topic is configured.
const DefaultTopic = "nexus.trades"

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher implements domain.EventPublisher. Messages are keyed by account
// so one account's trades stay ordered within a partition.
type Publisher struct {
	writer messageWriter
}

// NewPublisher returns a Publisher writing to topic on brokers.
func NewPublisher(brokers []string, topic string) *Publisher {
	if topic == "" {
		topic = DefaultTopic
	}
	return &Publisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			BatchTimeout: 50 * time.Millisecond,
		},
	}
}

// PublishTradeExecuted writes evt as JSON.
func (p *Publisher) PublishTradeExecuted(ctx context.Context, evt domain.TradeExecuted) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("kafka: marshal trade %s: %w", evt.Order.ID, err)
	}

	msg := kafka.Message{
		Key:   []byte(evt.AccountID),
		Value: data,
		Time:  evt.Order.Timestamp,
		Headers: []kafka.Header{
			{Key: "event", Value: []byte("trade_executed")},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka: publish trade %s: %w", evt.Order.ID, err)
	}
	return nil
}

// Close flushes pending messages and closes the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

var _ domain.EventPublisher = (*Publisher)(nil)
