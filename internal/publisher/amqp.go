package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/Checker-Finance/yield-aggregator/internal/metrics"
	"github.com/Checker-Finance/yield-aggregator/pkg/model"
)

// AMQPChannel is the subset of *amqp.Channel used by AMQPNotifier.
type AMQPChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPNotifier mirrors snapshot.refreshed events onto a RabbitMQ queue.
type AMQPNotifier struct {
	conn       *amqp.Connection
	channel    AMQPChannel
	routingKey string
	logger     *zap.Logger
}

// NewAMQPNotifier dials url and opens a channel publishing to routingKey
// on the default exchange.
func NewAMQPNotifier(url, routingKey string, logger *zap.Logger) (*AMQPNotifier, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if _, err := channel.QueueDeclare(routingKey, true, false, false, false, nil); err != nil {
		_ = channel.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare queue %s: %w", routingKey, err)
	}

	n := newAMQPNotifier(channel, routingKey, logger)
	n.conn = conn
	return n, nil
}

func newAMQPNotifier(ch AMQPChannel, routingKey string, logger *zap.Logger) *AMQPNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AMQPNotifier{channel: ch, routingKey: routingKey, logger: logger}
}

func (n *AMQPNotifier) Name() string { return "amqp" }

// Push publishes the snapshot.refreshed envelope for snap.
func (n *AMQPNotifier) Push(ctx context.Context, snap *model.Snapshot) error {
	env, err := NewSnapshotEnvelope(n.routingKey, snap)
	if err != nil {
		return err
	}

	body, err := json.Marshal(env)
	if err != nil {
		n.logger.Error("publisher.amqp.marshal_failed", zap.Error(err))
		return err
	}

	start := time.Now()
	err = n.channel.PublishWithContext(
		ctx,
		"",           // exchange
		n.routingKey, // routing key
		false,        // mandatory
		false,        // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    env.ID.String(),
			Type:         env.EventType,
			Timestamp:    env.Timestamp,
			Body:         body,
		},
	)
	metrics.ObserveDuration(metrics.NotificationLatency, start, "amqp")
	if err != nil {
		n.logger.Error("publisher.amqp.publish_failed",
			zap.String("routing_key", n.routingKey), zap.Error(err))
		metrics.IncNotification("amqp", "error")
		return err
	}

	metrics.IncNotification("amqp", "ok")
	return nil
}

func (n *AMQPNotifier) Close() error {
	if n.channel != nil {
		_ = n.channel.Close()
	}
	if n.conn != nil {
		return n.conn.Close()
	}
	return nil
}
