package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/Checker-Finance/yield-aggregator/pkg/model"
)

// DBExecutor is the subset of pgxpool.Pool used by HistoryWriter.
type DBExecutor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type PGPoolConfig struct {
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

const schemaSQL = `
	CREATE SCHEMA IF NOT EXISTS yields;

	CREATE TABLE IF NOT EXISTS yields.asset_records (
		id             BIGSERIAL PRIMARY KEY,
		snapshot_id    UUID        NOT NULL,
		network        TEXT        NOT NULL,
		protocol       TEXT        NOT NULL,
		symbol         TEXT        NOT NULL,
		symbol_wrapped TEXT        NOT NULL,
		apy            DOUBLE PRECISION NOT NULL,
		date_recorded  TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS yields.asset_pair_records (
		id               BIGSERIAL PRIMARY KEY,
		snapshot_id      UUID        NOT NULL,
		network          TEXT        NOT NULL,
		protocol         TEXT        NOT NULL,
		symbol_0         TEXT        NOT NULL,
		symbol_0_wrapped TEXT        NOT NULL,
		symbol_1         TEXT        NOT NULL,
		symbol_1_wrapped TEXT        NOT NULL,
		apy              DOUBLE PRECISION NOT NULL,
		date_recorded    TIMESTAMPTZ NOT NULL
	);
`

const insertAssetSQL = `
	INSERT INTO yields.asset_records
		(snapshot_id, network, protocol, symbol, symbol_wrapped, apy, date_recorded)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
`

const insertPairSQL = `
	INSERT INTO yields.asset_pair_records
		(snapshot_id, network, protocol, symbol_0, symbol_0_wrapped, symbol_1, symbol_1_wrapped, apy, date_recorded)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
`

const trailingAverageSQL = `
	SELECT network, protocol, symbol_wrapped, '', AVG(apy), COUNT(*)
	FROM yields.asset_records
	WHERE date_recorded >= $1
	GROUP BY network, protocol, symbol_wrapped
	UNION ALL
	SELECT network, protocol, symbol_0_wrapped, symbol_1_wrapped, AVG(apy), COUNT(*)
	FROM yields.asset_pair_records
	WHERE date_recorded >= $1
	GROUP BY network, protocol, symbol_0_wrapped, symbol_1_wrapped
	ORDER BY 5 DESC
`

// HistoryWriter appends every published snapshot to Postgres history tables.
type HistoryWriter struct {
	db     DBExecutor
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewHistoryWriter connects a pgx pool and ensures the schema exists.
func NewHistoryWriter(ctx context.Context, pgURL string, poolCfg PGPoolConfig, logger *zap.Logger) (*HistoryWriter, error) {
	cfg, err := pgxpool.ParseConfig(pgURL)
	if err != nil {
		return nil, fmt.Errorf("invalid pg config: %w", err)
	}
	if poolCfg.MaxConns > 0 {
		cfg.MaxConns = poolCfg.MaxConns
	}
	if poolCfg.MinConns > 0 {
		cfg.MinConns = poolCfg.MinConns
	}
	if poolCfg.MaxConnLifetime > 0 {
		cfg.MaxConnLifetime = poolCfg.MaxConnLifetime
	}
	if poolCfg.MaxConnIdleTime > 0 {
		cfg.MaxConnIdleTime = poolCfg.MaxConnIdleTime
	}
	if poolCfg.HealthCheckPeriod > 0 {
		cfg.HealthCheckPeriod = poolCfg.HealthCheckPeriod
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	w := NewHistoryWriterWithDB(pool, logger)
	w.pool = pool
	if err := w.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return w, nil
}

// NewHistoryWriterWithDB wraps an existing executor.
func NewHistoryWriterWithDB(db DBExecutor, logger *zap.Logger) *HistoryWriter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HistoryWriter{db: db, logger: logger}
}

// EnsureSchema creates the history tables if missing.
func (w *HistoryWriter) EnsureSchema(ctx context.Context) error {
	if _, err := w.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (w *HistoryWriter) Name() string { return "postgres" }

// Push inserts every record of snap in one batch.
func (w *HistoryWriter) Push(ctx context.Context, snap *model.Snapshot) error {
	batch := BuildHistoryBatch(snap)
	if batch.Len() == 0 {
		return nil
	}

	br := w.db.SendBatch(ctx, batch)
	defer func() { _ = br.Close() }()

	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			w.logger.Error("store.pg.insert_history_failed",
				zap.String("snapshot_id", snap.ID.String()),
				zap.Int("index", i),
				zap.Error(err))
			return fmt.Errorf("insert history row %d: %w", i, err)
		}
	}

	w.logger.Info("store.pg.history_recorded",
		zap.String("snapshot_id", snap.ID.String()),
		zap.Int("assets", len(snap.Assets)),
		zap.Int("pairs", len(snap.Pairs)))
	return nil
}

// BuildHistoryBatch queues one insert per single-asset and pair record.
func BuildHistoryBatch(snap *model.Snapshot) *pgx.Batch {
	batch := &pgx.Batch{}
	for _, r := range snap.Assets {
		a := r.Assets[0]
		batch.Queue(insertAssetSQL,
			snap.ID, string(r.Network), string(r.Protocol),
			a.Asset.Symbol(), a.WrappedSymbol, r.APY, snap.GeneratedAt)
	}
	for _, r := range snap.Pairs {
		a0, a1 := r.Assets[0], r.Assets[1]
		batch.Queue(insertPairSQL,
			snap.ID, string(r.Network), string(r.Protocol),
			a0.Asset.Symbol(), a0.WrappedSymbol,
			a1.Asset.Symbol(), a1.WrappedSymbol,
			r.APY, snap.GeneratedAt)
	}
	return batch
}

// TrailingAverages returns the mean APY of every (network, protocol, assets)
// series recorded since since, highest first. Rows whose symbols no longer
// resolve are skipped.
func (w *HistoryWriter) TrailingAverages(ctx context.Context, since time.Time) ([]model.AverageAPY, error) {
	rows, err := w.db.Query(ctx, trailingAverageSQL, since)
	if err != nil {
		return nil, fmt.Errorf("query trailing averages: %w", err)
	}
	defer rows.Close()

	out := []model.AverageAPY{}
	for rows.Next() {
		var (
			network, protocol, sym0, sym1 string
			avg                           float64
			samples                       int64
		)
		if err := rows.Scan(&network, &protocol, &sym0, &sym1, &avg, &samples); err != nil {
			return nil, fmt.Errorf("scan trailing average: %w", err)
		}

		assets, ok := wrapSymbols(sym0, sym1)
		if !ok {
			w.logger.Warn("store.pg.unknown_history_symbol",
				zap.String("protocol", protocol),
				zap.String("symbol_0", sym0),
				zap.String("symbol_1", sym1))
			continue
		}
		out = append(out, model.AverageAPY{
			Network:    model.Network(network),
			Protocol:   model.Protocol(protocol),
			Assets:     assets,
			APYAverage: avg,
			Samples:    samples,
			Since:      since.UTC(),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trailing averages: %w", err)
	}
	return out, nil
}

func wrapSymbols(symbols ...string) ([]model.WrappedAsset, bool) {
	var assets []model.WrappedAsset
	for _, s := range symbols {
		if s == "" {
			continue
		}
		w, ok := model.Wrap(s)
		if !ok {
			return nil, false
		}
		assets = append(assets, w)
	}
	return assets, len(assets) > 0
}

func (w *HistoryWriter) HealthCheck(ctx context.Context) error {
	if w.pool == nil {
		return nil
	}
	if err := w.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres ping failed: %w", err)
	}
	return nil
}

func (w *HistoryWriter) Close() error {
	if w.pool != nil {
		w.pool.Close()
	}
	return nil
}
