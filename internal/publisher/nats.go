package publisher

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/Checker-Finance/yield-aggregator/internal/metrics"
	"github.com/Checker-Finance/yield-aggregator/pkg/model"
)

const (
	EventTypeSnapshotRefreshed = "yield.snapshot.refreshed"
	EventVersion               = "1.0.0"
)

// JetStreamPublisher is the subset of nats.JetStreamContext we need.
type JetStreamPublisher interface {
	PublishMsg(m *nats.Msg, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// Publisher announces refreshed snapshots on a NATS JetStream subject.
type Publisher struct {
	nc      *nats.Conn
	js      JetStreamPublisher
	subject string
	service string
	logger  *zap.Logger
}

// New creates a Publisher over nc with JetStream enabled. The stream is
// created if it does not exist yet.
func New(nc *nats.Conn, stream, subject, service string, logger *zap.Logger) (*Publisher, error) {
	js, err := nc.JetStream()
	if err != nil {
		return nil, err
	}
	if stream != "" {
		if _, err := js.StreamInfo(stream); err != nil {
			if _, err := js.AddStream(&nats.StreamConfig{
				Name:     stream,
				Subjects: []string{subject},
			}); err != nil {
				return nil, err
			}
		}
	}
	return newPublisher(nc, js, subject, service, logger), nil
}

func newPublisher(nc *nats.Conn, js JetStreamPublisher, subject, service string, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{nc: nc, js: js, subject: subject, service: service, logger: logger}
}

func (p *Publisher) Name() string { return "nats" }

// Push emits a snapshot.refreshed event for snap.
func (p *Publisher) Push(ctx context.Context, snap *model.Snapshot) error {
	env, err := NewSnapshotEnvelope(p.subject, snap)
	if err != nil {
		return err
	}
	return p.PublishEnvelope(ctx, p.subject, env)
}

// PublishEnvelope serializes env and publishes it to subject, or to the
// default subject when empty.
func (p *Publisher) PublishEnvelope(ctx context.Context, subject string, env *model.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		p.logger.Error("publisher.marshal_failed",
			zap.String("event_type", env.EventType), zap.Error(err))
		metrics.IncNotification("nats", "marshal_failed")
		return err
	}

	if subject == "" {
		subject = p.subject
	}

	msg := &nats.Msg{
		Subject: subject,
		Data:    data,
		Header: nats.Header{
			"event_type":   []string{env.EventType},
			"event_id":     []string{env.ID.String()},
			"service":      []string{p.service},
			"content_type": []string{"application/json"},
		},
	}

	start := time.Now()
	_, err = p.js.PublishMsg(msg, nats.Context(ctx))
	metrics.ObserveDuration(metrics.NotificationLatency, start, "nats")

	if err != nil {
		p.logger.Error("publisher.publish_failed",
			zap.String("subject", subject),
			zap.String("event_type", env.EventType),
			zap.Error(err))
		metrics.IncNotification("nats", "error")
		return err
	}

	p.logger.Debug("publisher.publish_success",
		zap.String("subject", subject),
		zap.String("event_type", env.EventType))
	metrics.IncNotification("nats", "ok")
	return nil
}

func (p *Publisher) Close() {
	if p.nc != nil && p.nc.IsConnected() {
		p.nc.Close()
	}
}

// NewSnapshotEnvelope wraps the summary of snap in a canonical envelope.
func NewSnapshotEnvelope(topic string, snap *model.Snapshot) (*model.Envelope, error) {
	payload, err := json.Marshal(model.NewSnapshotRefreshed(snap))
	if err != nil {
		return nil, err
	}
	return &model.Envelope{
		ID:        uuid.New(),
		Topic:     topic,
		EventType: EventTypeSnapshotRefreshed,
		Version:   EventVersion,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}, nil
}
