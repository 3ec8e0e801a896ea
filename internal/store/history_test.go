package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Checker-Finance/yield-aggregator/pkg/model"
)

type fakeBatchResults struct {
	remaining int
	failAt    int
	execs     int
	closed    bool
}

func (f *fakeBatchResults) Exec() (pgconn.CommandTag, error) {
	idx := f.execs
	f.execs++
	if f.failAt >= 0 && idx == f.failAt {
		return pgconn.CommandTag{}, errors.New("insert failed")
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (f *fakeBatchResults) Query() (pgx.Rows, error) { return nil, errors.New("not supported") }
func (f *fakeBatchResults) QueryRow() pgx.Row        { return nil }
func (f *fakeBatchResults) Close() error {
	f.closed = true
	return nil
}

type fakeRows struct {
	data    [][]any
	idx     int
	scanErr error
	iterErr error
	closed  bool
}

func (f *fakeRows) Close()                                       { f.closed = true }
func (f *fakeRows) Err() error                                   { return f.iterErr }
func (f *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (f *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (f *fakeRows) RawValues() [][]byte                          { return nil }
func (f *fakeRows) Conn() *pgx.Conn                              { return nil }

func (f *fakeRows) Next() bool {
	if f.idx >= len(f.data) {
		return false
	}
	f.idx++
	return true
}

func (f *fakeRows) Values() ([]any, error) { return f.data[f.idx-1], nil }

func (f *fakeRows) Scan(dest ...any) error {
	if f.scanErr != nil {
		return f.scanErr
	}
	row := f.data[f.idx-1]
	for i, d := range dest {
		switch p := d.(type) {
		case *string:
			*p = row[i].(string)
		case *float64:
			*p = row[i].(float64)
		case *int64:
			*p = row[i].(int64)
		default:
			return fmt.Errorf("unsupported scan target %T", d)
		}
	}
	return nil
}

type fakeDB struct {
	execSQL   []string
	execErr   error
	batches   []*pgx.Batch
	results   *fakeBatchResults
	rows      *fakeRows
	queryErr  error
	queryArgs []any
}

func (f *fakeDB) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	f.execSQL = append(f.execSQL, sql)
	return pgconn.CommandTag{}, f.execErr
}

func (f *fakeDB) SendBatch(_ context.Context, b *pgx.Batch) pgx.BatchResults {
	f.batches = append(f.batches, b)
	return f.results
}

func (f *fakeDB) Query(_ context.Context, _ string, args ...any) (pgx.Rows, error) {
	f.queryArgs = args
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return f.rows, nil
}

func TestBuildHistoryBatch(t *testing.T) {
	snap := sampleSnapshot(t)
	batch := BuildHistoryBatch(snap)

	require.Equal(t, 3, batch.Len())

	// single-asset rows first, in snapshot order
	assert.Equal(t, insertAssetSQL, batch.QueuedQueries[0].SQL)
	assert.Equal(t, []any{snap.ID, "ethereum", "compound", "USDC", "USDC", 0.04, snap.GeneratedAt}, batch.QueuedQueries[0].Arguments)
	assert.Equal(t, insertAssetSQL, batch.QueuedQueries[1].SQL)
	assert.Equal(t, "dYdX", batch.QueuedQueries[1].Arguments[2])

	assert.Equal(t, insertPairSQL, batch.QueuedQueries[2].SQL)
	assert.Equal(t, []any{snap.ID, "ethereum", "bancor", "ETH", "WETH", "DAI", "DAI", 0.12, snap.GeneratedAt}, batch.QueuedQueries[2].Arguments)
}

func TestHistoryWriter_Push(t *testing.T) {
	db := &fakeDB{results: &fakeBatchResults{failAt: -1}}
	w := NewHistoryWriterWithDB(db, zap.NewNop())

	require.NoError(t, w.Push(context.Background(), sampleSnapshot(t)))
	require.Len(t, db.batches, 1)
	assert.Equal(t, 3, db.results.execs)
	assert.True(t, db.results.closed)
}

func TestHistoryWriter_PushEmptySnapshot(t *testing.T) {
	db := &fakeDB{results: &fakeBatchResults{failAt: -1}}
	w := NewHistoryWriterWithDB(db, zap.NewNop())

	require.NoError(t, w.Push(context.Background(), &model.Snapshot{}))
	assert.Empty(t, db.batches)
}

func TestHistoryWriter_PushInsertFailure(t *testing.T) {
	db := &fakeDB{results: &fakeBatchResults{failAt: 1}}
	w := NewHistoryWriterWithDB(db, zap.NewNop())

	err := w.Push(context.Background(), sampleSnapshot(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 1")
	assert.Equal(t, 2, db.results.execs)
	assert.True(t, db.results.closed)
}

func TestHistoryWriter_EnsureSchema(t *testing.T) {
	db := &fakeDB{}
	w := NewHistoryWriterWithDB(db, nil)

	require.NoError(t, w.EnsureSchema(context.Background()))
	require.Len(t, db.execSQL, 1)
	assert.Contains(t, db.execSQL[0], "yields.asset_records")
	assert.Contains(t, db.execSQL[0], "yields.asset_pair_records")

	db.execErr = errors.New("permission denied")
	assert.ErrorContains(t, w.EnsureSchema(context.Background()), "ensure schema")
}

func TestHistoryWriter_NameAndNilPool(t *testing.T) {
	w := NewHistoryWriterWithDB(&fakeDB{}, nil)
	assert.Equal(t, "postgres", w.Name())
	assert.NoError(t, w.HealthCheck(context.Background()))
	assert.NoError(t, w.Close())
}

func TestHistoryWriter_TrailingAverages(t *testing.T) {
	since := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	rows := &fakeRows{data: [][]any{
		{"ethereum", "sushiswap", "WETH", "USDC", 0.11, int64(720)},
		{"ethereum", "compound", "USDC", "", 0.04, int64(720)},
		{"ethereum", "curve", "sUSD", "", 0.03, int64(10)},
	}}
	db := &fakeDB{rows: rows}
	w := NewHistoryWriterWithDB(db, zap.NewNop())

	got, err := w.TrailingAverages(context.Background(), since)
	require.NoError(t, err)
	assert.Equal(t, []any{since}, db.queryArgs)
	assert.True(t, rows.closed)

	// the unresolvable sUSD series is skipped
	require.Len(t, got, 2)

	assert.Equal(t, model.ProtocolSushiSwap, got[0].Protocol)
	require.Len(t, got[0].Assets, 2)
	assert.Equal(t, model.ETH, got[0].Assets[0].Asset)
	assert.Equal(t, "WETH", got[0].Assets[0].WrappedSymbol)
	assert.Equal(t, model.USDC, got[0].Assets[1].Asset)
	assert.Equal(t, 0.11, got[0].APYAverage)
	assert.Equal(t, int64(720), got[0].Samples)
	assert.Equal(t, since, got[0].Since)

	assert.Equal(t, model.ProtocolCompound, got[1].Protocol)
	assert.Len(t, got[1].Assets, 1)
}

func TestHistoryWriter_TrailingAveragesEmpty(t *testing.T) {
	w := NewHistoryWriterWithDB(&fakeDB{rows: &fakeRows{}}, nil)

	got, err := w.TrailingAverages(context.Background(), time.Now())
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestHistoryWriter_TrailingAveragesErrors(t *testing.T) {
	ctx := context.Background()

	w := NewHistoryWriterWithDB(&fakeDB{queryErr: errors.New("relation does not exist")}, nil)
	_, err := w.TrailingAverages(ctx, time.Now())
	assert.ErrorContains(t, err, "query trailing averages")

	w = NewHistoryWriterWithDB(&fakeDB{rows: &fakeRows{
		data:    [][]any{{"ethereum", "aave", "DAI", "", 0.02, int64(1)}},
		scanErr: errors.New("bad column"),
	}}, nil)
	_, err = w.TrailingAverages(ctx, time.Now())
	assert.ErrorContains(t, err, "scan trailing average")

	w = NewHistoryWriterWithDB(&fakeDB{rows: &fakeRows{iterErr: errors.New("conn reset")}}, nil)
	_, err = w.TrailingAverages(ctx, time.Now())
	assert.ErrorContains(t, err, "iterate trailing averages")
}
