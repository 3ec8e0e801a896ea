package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Checker-Finance/yield-aggregator/internal/snapshot"
	"github.com/Checker-Finance/yield-aggregator/pkg/model"
)

// --- Test Helpers ---

func rec(protocol model.Protocol, apy float64, symbols ...string) model.Record {
	assets := make([]model.WrappedAsset, 0, len(symbols))
	for _, s := range symbols {
		w, _ := model.Wrap(s)
		assets = append(assets, w)
	}
	return model.Record{Network: model.NetworkEthereum, Protocol: protocol, Assets: assets, APY: apy}
}

func seededPublisher() *snapshot.Publisher {
	pub := snapshot.NewPublisher()
	pub.Install([]model.Record{
		rec(model.ProtocolAave, 0.02, "WBTC"),
		rec(model.ProtocolCompound, 0.06, "USDC"),
		rec(model.ProtocolUniSwap, 0.05, "WETH", "WBTC"),
		rec(model.ProtocolSushiSwap, 0.09, "DAI", "USDC"),
	})
	return pub
}

type stubChecker struct {
	name string
	err  error
}

func (s stubChecker) Name() string                      { return s.name }
func (s stubChecker) HealthCheck(context.Context) error { return s.err }

func newTestApp(reader SnapshotReader, checkers ...HealthChecker) *fiber.App {
	app := fiber.New()
	RegisterRoutes(app, NewHandler(zap.NewNop(), reader), checkers...)
	return app
}

func get(t *testing.T, app *fiber.App, path string) (*http.Response, []byte) {
	t.Helper()
	req, _ := http.NewRequest(http.MethodGet, path, nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func decodeList(t *testing.T, body []byte) ListResponse {
	t.Helper()
	var out ListResponse
	require.NoError(t, json.Unmarshal(body, &out))
	return out
}

func apys(records []model.Record) []float64 {
	out := make([]float64, len(records))
	for i, r := range records {
		out[i] = r.APY
	}
	return out
}

// --- List endpoints ---

func TestListEndpoints(t *testing.T) {
	pub := seededPublisher()
	app := newTestApp(pub)

	resp, body := get(t, app, "/api/v1/assets")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assets := decodeList(t, body)
	assert.Equal(t, pub.Current().ID.String(), assets.SnapshotID)
	assert.Equal(t, []float64{0.06, 0.02}, apys(assets.Records))
	assert.Equal(t, 2, assets.Count)

	_, body = get(t, app, "/api/v1/pairs")
	assert.Equal(t, []float64{0.09, 0.05}, apys(decodeList(t, body).Records))

	_, body = get(t, app, "/api/v1/records")
	assert.Equal(t, []float64{0.09, 0.06, 0.05, 0.02}, apys(decodeList(t, body).Records))
}

func TestListEndpoints_Filters(t *testing.T) {
	app := newTestApp(seededPublisher())

	_, body := get(t, app, "/api/v1/records?asset=btc")
	assert.Equal(t, []float64{0.05, 0.02}, apys(decodeList(t, body).Records))

	_, body = get(t, app, "/api/v1/pairs?asset=USDC&protocol=sushiswap")
	got := decodeList(t, body)
	require.Len(t, got.Records, 1)
	assert.Equal(t, model.ProtocolSushiSwap, got.Records[0].Protocol)

	_, body = get(t, app, "/api/v1/assets?protocol=dydx")
	assert.Empty(t, decodeList(t, body).Records)
}

func TestListEndpoints_BadQuery(t *testing.T) {
	app := newTestApp(seededPublisher())

	resp, body := get(t, app, "/api/v1/assets?asset=DOGE")
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(body), "unknown asset")

	resp, _ = get(t, app, "/api/v1/records?protocol=pancake")
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestListEndpoints_BeforeFirstSnapshot(t *testing.T) {
	app := newTestApp(snapshot.NewPublisher())

	resp, body := get(t, app, "/api/v1/records")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	got := decodeList(t, body)
	assert.Zero(t, got.Count)
	assert.NotNil(t, got.Records)
}

// --- Health ---

func TestHealth(t *testing.T) {
	resp, _ := get(t, newTestApp(seededPublisher(), stubChecker{name: "redis"}), "/health")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, body := get(t, newTestApp(seededPublisher(), stubChecker{name: "postgres", err: errors.New("conn refused")}), "/health")
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
	assert.Contains(t, string(body), "conn refused")

	resp, body = get(t, newTestApp(snapshot.NewPublisher()), "/health")
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
	assert.Contains(t, string(body), `"snapshot":"empty"`)
}

func TestMetricsEndpoint(t *testing.T) {
	resp, body := get(t, newTestApp(seededPublisher()), "/metrics")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestListResponse_GeneratedAt(t *testing.T) {
	pub := seededPublisher()
	_, body := get(t, newTestApp(pub), "/api/v1/assets")
	got := decodeList(t, body)
	assert.WithinDuration(t, pub.Current().GeneratedAt, got.GeneratedAt, time.Second)
}

func TestListEndpoints_StableFilter(t *testing.T) {
	app := newTestApp(seededPublisher())

	_, body := get(t, app, "/api/v1/records?stable=true")
	assert.Equal(t, []float64{0.09, 0.06}, apys(decodeList(t, body).Records))

	_, body = get(t, app, "/api/v1/records?stable=false")
	assert.Equal(t, []float64{0.05, 0.02}, apys(decodeList(t, body).Records))

	_, body = get(t, app, "/api/v1/pairs?stable=1&protocol=uniswap-v2")
	assert.Empty(t, decodeList(t, body).Records)

	resp, body := get(t, app, "/api/v1/assets?stable=maybe")
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(body), "invalid stable flag")
}

// --- Averages ---

type stubAverages struct {
	out   []model.AverageAPY
	err   error
	since time.Time
	calls int
}

func (s *stubAverages) TrailingAverages(_ context.Context, since time.Time) ([]model.AverageAPY, error) {
	s.calls++
	s.since = since
	return s.out, s.err
}

func average(protocol model.Protocol, apy float64, symbols ...string) model.AverageAPY {
	r := rec(protocol, apy, symbols...)
	return model.AverageAPY{Network: r.Network, Protocol: r.Protocol, Assets: r.Assets, APYAverage: apy, Samples: 30}
}

func newAveragesApp(reader AverageReader, now time.Time) *fiber.App {
	h := NewHandler(zap.NewNop(), seededPublisher())
	h.Averages = reader
	h.now = func() time.Time { return now }
	app := fiber.New()
	RegisterRoutes(app, h)
	return app
}

func decodeAverages(t *testing.T, body []byte) AverageResponse {
	t.Helper()
	var out AverageResponse
	require.NoError(t, json.Unmarshal(body, &out))
	return out
}

func TestListAverages(t *testing.T) {
	now := time.Date(2026, 3, 31, 12, 0, 0, 0, time.UTC)
	reader := &stubAverages{out: []model.AverageAPY{
		average(model.ProtocolCompound, 0.055, "USDC"),
		average(model.ProtocolAave, 0.021, "WBTC"),
		average(model.ProtocolUniSwap, 0.048, "WETH", "WBTC"),
	}}
	app := newAveragesApp(reader, now)

	resp, body := get(t, app, "/api/v1/averages")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	got := decodeAverages(t, body)
	assert.Equal(t, DefaultAverageDays, got.Days)
	assert.Equal(t, 3, got.Count)
	assert.Equal(t, now.AddDate(0, 0, -30), reader.since)
	assert.True(t, got.Since.Equal(reader.since))
	assert.Contains(t, string(body), `"apy_average":0.055`)

	_, body = get(t, app, "/api/v1/averages?days=7&asset=btc")
	got = decodeAverages(t, body)
	assert.Equal(t, 7, got.Days)
	assert.Equal(t, now.AddDate(0, 0, -7), reader.since)
	require.Len(t, got.Averages, 2)
	assert.Equal(t, model.ProtocolAave, got.Averages[0].Protocol)
	assert.Equal(t, model.ProtocolUniSwap, got.Averages[1].Protocol)

	_, body = get(t, app, "/api/v1/averages?stable=true")
	got = decodeAverages(t, body)
	require.Len(t, got.Averages, 1)
	assert.Equal(t, model.ProtocolCompound, got.Averages[0].Protocol)
}

func TestListAverages_BadDays(t *testing.T) {
	reader := &stubAverages{}
	app := newAveragesApp(reader, time.Now())

	for _, days := range []string{"0", "-3", "366", "month"} {
		resp, body := get(t, app, "/api/v1/averages?days="+days)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode, days)
		assert.Contains(t, string(body), "days must be")
	}
	assert.Zero(t, reader.calls)
}

func TestListAverages_Unavailable(t *testing.T) {
	resp, body := get(t, newTestApp(seededPublisher()), "/api/v1/averages")
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
	assert.Contains(t, string(body), "history store not configured")

	reader := &stubAverages{err: errors.New("pool closed")}
	resp, body = get(t, newAveragesApp(reader, time.Now()), "/api/v1/averages?days=1")
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	assert.Contains(t, string(body), "history unavailable")
	assert.NotContains(t, string(body), "pool closed")
}

func TestListAverages_EmptyHistory(t *testing.T) {
	_, body := get(t, newAveragesApp(&stubAverages{}, time.Now()), "/api/v1/averages")
	got := decodeAverages(t, body)
	assert.Zero(t, got.Count)
	assert.NotNil(t, got.Averages)
}
