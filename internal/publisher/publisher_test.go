package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Checker-Finance/yield-aggregator/pkg/model"
)

// --- mock types ---

type mockJetStream struct {
	published []*nats.Msg
	fail      bool
}

func (m *mockJetStream) PublishMsg(msg *nats.Msg, _ ...nats.PubOpt) (*nats.PubAck, error) {
	if m.fail {
		return nil, errors.New("mock publish error")
	}
	m.published = append(m.published, msg)
	return &nats.PubAck{Stream: "mock-stream", Sequence: uint64(len(m.published))}, nil
}

type mockChannel struct {
	published []amqp.Publishing
	keys      []string
	fail      bool
	closed    bool
}

func (m *mockChannel) PublishWithContext(_ context.Context, _, key string, _, _ bool, msg amqp.Publishing) error {
	if m.fail {
		return errors.New("channel closed")
	}
	m.keys = append(m.keys, key)
	m.published = append(m.published, msg)
	return nil
}

func (m *mockChannel) Close() error {
	m.closed = true
	return nil
}

// --- helpers ---

func testSnapshot() *model.Snapshot {
	btc := model.WrappedAsset{Asset: model.BTC, WrappedSymbol: "WBTC"}
	eth := model.WrappedAsset{Asset: model.ETH, WrappedSymbol: "WETH"}
	asset := model.Record{Network: model.NetworkEthereum, Protocol: model.ProtocolAave, Assets: []model.WrappedAsset{btc}, APY: 0.02}
	pair := model.Record{Network: model.NetworkEthereum, Protocol: model.ProtocolSushiSwap, Assets: []model.WrappedAsset{eth, btc}, APY: 0.05}
	return &model.Snapshot{
		ID:          uuid.New(),
		GeneratedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Assets:      []model.Record{asset},
		Pairs:       []model.Record{pair},
		Combined:    []model.Record{pair, asset},
	}
}

func decodeSummary(t *testing.T, data []byte) (model.Envelope, model.SnapshotRefreshed) {
	t.Helper()
	var env model.Envelope
	require.NoError(t, json.Unmarshal(data, &env))
	var summary model.SnapshotRefreshed
	require.NoError(t, json.Unmarshal(env.Payload, &summary))
	return env, summary
}

// --- tests ---

func TestPublisher_Push(t *testing.T) {
	js := &mockJetStream{}
	pub := newPublisher(nil, js, "evt.yield.snapshot.refreshed.v1", "yield-aggregator", zap.NewNop())
	snap := testSnapshot()

	require.NoError(t, pub.Push(context.Background(), snap))
	require.Len(t, js.published, 1)

	msg := js.published[0]
	assert.Equal(t, "evt.yield.snapshot.refreshed.v1", msg.Subject)
	assert.Equal(t, EventTypeSnapshotRefreshed, msg.Header.Get("event_type"))
	assert.Equal(t, "yield-aggregator", msg.Header.Get("service"))

	env, summary := decodeSummary(t, msg.Data)
	assert.Equal(t, msg.Header.Get("event_id"), env.ID.String())
	assert.Equal(t, EventVersion, env.Version)
	assert.Equal(t, snap.ID, summary.SnapshotID)
	assert.Equal(t, 1, summary.AssetCount)
	assert.Equal(t, 1, summary.PairCount)
	assert.True(t, snap.GeneratedAt.Equal(summary.GeneratedAt))
}

func TestPublisher_PushFailure(t *testing.T) {
	pub := newPublisher(nil, &mockJetStream{fail: true}, "evt.test.v1", "yield-aggregator", nil)
	assert.Error(t, pub.Push(context.Background(), testSnapshot()))
}

func TestPublisher_PublishEnvelopeDefaultSubject(t *testing.T) {
	js := &mockJetStream{}
	pub := newPublisher(nil, js, "evt.default.v1", "yield-aggregator", nil)

	env := &model.Envelope{ID: uuid.New(), EventType: "custom.event", Payload: json.RawMessage(`{}`)}
	require.NoError(t, pub.PublishEnvelope(context.Background(), "", env))
	assert.Equal(t, "evt.default.v1", js.published[0].Subject)

	require.NoError(t, pub.PublishEnvelope(context.Background(), "evt.other.v1", env))
	assert.Equal(t, "evt.other.v1", js.published[1].Subject)
}

func TestAMQPNotifier_Push(t *testing.T) {
	ch := &mockChannel{}
	n := newAMQPNotifier(ch, "yield.snapshots", zap.NewNop())
	snap := testSnapshot()

	require.NoError(t, n.Push(context.Background(), snap))
	require.Len(t, ch.published, 1)
	assert.Equal(t, "yield.snapshots", ch.keys[0])

	msg := ch.published[0]
	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
	assert.Equal(t, EventTypeSnapshotRefreshed, msg.Type)

	env, summary := decodeSummary(t, msg.Body)
	assert.Equal(t, env.ID.String(), msg.MessageId)
	assert.Equal(t, "yield.snapshots", env.Topic)
	assert.Equal(t, snap.ID, summary.SnapshotID)
}

func TestAMQPNotifier_PushFailureAndClose(t *testing.T) {
	ch := &mockChannel{fail: true}
	n := newAMQPNotifier(ch, "yield.snapshots", nil)

	assert.Error(t, n.Push(context.Background(), testSnapshot()))
	assert.Equal(t, "amqp", n.Name())
	require.NoError(t, n.Close())
	assert.True(t, ch.closed)
}
