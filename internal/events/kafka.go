package events

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher forwards bus events to Kafka, keyed by Event.Key so that
// the events of one user stay ordered within a partition.
type KafkaPublisher struct {
	writer       messageWriter
	defaultTopic string
	topicByEvent map[string]string
}

// NewKafkaPublisher builds a publisher writing to brokers. Events without an
// entry in topicByEvent go to defaultTopic.
func NewKafkaPublisher(brokers []string, defaultTopic string, topicByEvent map[string]string) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka publisher requires at least one broker")
	}
	return newKafkaPublisher(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		RequiredAcks: kafka.RequireAll,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
	}, defaultTopic, topicByEvent), nil
}

func newKafkaPublisher(w messageWriter, defaultTopic string, topicByEvent map[string]string) *KafkaPublisher {
	return &KafkaPublisher{writer: w, defaultTopic: defaultTopic, topicByEvent: topicByEvent}
}

func (p *KafkaPublisher) topic(eventType string) string {
	if mapped, ok := p.topicByEvent[eventType]; ok && mapped != "" {
		return mapped
	}
	if p.defaultTopic != "" {
		return p.defaultTopic
	}
	return eventType
}

// Publish writes a single event.
func (p *KafkaPublisher) Publish(ctx context.Context, event Event) error {
	createdAt := event.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	err := p.writer.WriteMessages(ctx, kafka.Message{
		Topic: p.topic(event.Type),
		Key:   []byte(event.Key),
		Value: event.Payload,
		Time:  createdAt.UTC(),
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
			{Key: "event_id", Value: []byte(event.ID)},
		},
	})
	if err != nil {
		return fmt.Errorf("kafka publish %s: %w", event.Type, err)
	}
	return nil
}

// Handler adapts the publisher to the bus.
func (p *KafkaPublisher) Handler() EventHandler {
	return p.Publish
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
