package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
	"github.com/sunilkarki98/staysewa-sub001/internal/entity"
)

// Producer publishes booking lifecycle events.
type Producer interface {
	PublishBookingEvent(ctx context.Context, event entity.BookingEvent) error
	Close() error
}

type kafkaProducer struct {
	writer *kafka.Writer
	topic  string
}

// NewProducer connects to the brokers and makes sure the topic exists.
// When the brokers are unreachable it falls back to a producer that only logs.
func NewProducer(brokers, topic string) Producer {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, err := kafka.DialContext(ctx, "tcp", brokers)
	if err != nil {
		logrus.WithError(err).Warn("Kafka connection failed, using log producer instead")
		return NewLogProducer()
	}
	defer conn.Close()

	err = conn.CreateTopics(kafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     3,
		ReplicationFactor: 1,
	})
	if err != nil {
		logrus.WithError(err).Debug("Could not create topic (might already exist)")
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}

	logrus.WithFields(logrus.Fields{"brokers": brokers, "topic": topic}).Info("Connected to Kafka")
	return &kafkaProducer{writer: writer, topic: topic}
}

// PublishBookingEvent keys messages by booking id so one booking's events stay ordered.
func (p *kafkaProducer) PublishBookingEvent(ctx context.Context, event entity.BookingEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:   []byte(event.BookingID),
		Value: value,
		Time:  event.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"topic":      p.topic,
		"event_type": event.Type,
		"booking_id": event.BookingID,
	}).Debug("Booking event published")
	return nil
}

func (p *kafkaProducer) Close() error {
	return p.writer.Close()
}

type logProducer struct{}

// NewLogProducer returns a producer for running without Kafka.
func NewLogProducer() Producer {
	return &logProducer{}
}

func (m *logProducer) PublishBookingEvent(ctx context.Context, event entity.BookingEvent) error {
	logrus.WithFields(logrus.Fields{
		"event_type": event.Type,
		"booking_id": event.BookingID,
		"status":     event.Status,
	}).Info("Booking event")
	return nil
}

func (m *logProducer) Close() error {
	return nil
}
