package rabbitMQ

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
	"github.com/sunilkarki98/staysewa-sub001/pkg/queue"
)

var _ queue.Queue = (*RabbitMQ)(nil)

// RabbitMQ carries notifications over a durable queue. A message that fails
// on redelivery is dead lettered instead of dropped.
type RabbitMQ struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   amqp.Queue
	config  RabbitMQConfig
	wg      sync.WaitGroup
}

type RabbitMQConfig struct {
	URL             string
	QueueName       string
	DeadLetterQueue string
}

func NewRabbitMQ(config RabbitMQConfig) (*RabbitMQ, error) {
	if config.DeadLetterQueue == "" {
		config.DeadLetterQueue = config.QueueName + ".dead"
	}

	conn, err := amqp.Dial(config.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	q, err := declareQueues(channel, config)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"queue":       q.Name,
		"dead_letter": config.DeadLetterQueue,
	}).Info("RabbitMQ notification queue ready")

	return &RabbitMQ{
		conn:    conn,
		channel: channel,
		queue:   q,
		config:  config,
	}, nil
}

// declareQueues sets up the dead letter queue first so rejected messages
// always have somewhere to go.
func declareQueues(channel *amqp.Channel, config RabbitMQConfig) (amqp.Queue, error) {
	if _, err := channel.QueueDeclare(config.DeadLetterQueue, true, false, false, false, nil); err != nil {
		return amqp.Queue{}, fmt.Errorf("failed to declare dead letter queue: %w", err)
	}

	q, err := channel.QueueDeclare(
		config.QueueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		amqp.Table{
			"x-queue-mode":              "lazy",
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": config.DeadLetterQueue,
		},
	)
	if err != nil {
		return amqp.Queue{}, fmt.Errorf("failed to declare queue: %w", err)
	}
	return q, nil
}

func (r *RabbitMQ) Publish(ctx context.Context, message interface{}) error {
	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	err = r.channel.PublishWithContext(ctx, "", r.queue.Name, false, false, amqp.Publishing{
		ContentType:  "application/json",
		MessageId:    uuid.NewString(),
		Type:         "notification",
		AppId:        "staysewa",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}
	return nil
}

// Consume hands messages to handler one at a time until ctx is done.
func (r *RabbitMQ) Consume(ctx context.Context, handler func(message []byte) error) error {
	if err := r.channel.Qos(1, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	deliveries, err := r.channel.ConsumeWithContext(ctx, r.queue.Name, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to consume notifications: %w", err)
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				r.settle(d, handler(d.Body))
			}
		}
	}()
	return nil
}

// settle acks a handled delivery. A first failure is requeued; a failed
// redelivery is rejected into the dead letter queue.
func (r *RabbitMQ) settle(d amqp.Delivery, handleErr error) {
	if handleErr == nil {
		if err := d.Ack(false); err != nil {
			logrus.WithField("message_id", d.MessageId).WithError(err).Error("Failed to ack notification")
		}
		return
	}

	log := logrus.WithFields(logrus.Fields{
		"queue":       r.queue.Name,
		"message_id":  d.MessageId,
		"redelivered": d.Redelivered,
	}).WithError(handleErr)
	if d.Redelivered {
		log.Error("Notification failed again, dead lettering")
	} else {
		log.Warn("Notification failed, requeueing")
	}
	if err := d.Nack(false, !d.Redelivered); err != nil {
		logrus.WithField("message_id", d.MessageId).WithError(err).Error("Failed to nack notification")
	}
}

func (r *RabbitMQ) Close() error {
	var errs []error
	if r.channel != nil {
		errs = append(errs, r.channel.Close())
	}
	r.wg.Wait()
	if r.conn != nil {
		errs = append(errs, r.conn.Close())
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("errors while closing RabbitMQ: %w", err)
	}
	return nil
}
