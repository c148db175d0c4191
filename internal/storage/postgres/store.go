package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"forwardlock/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS trades (
	id              TEXT PRIMARY KEY,
	kind            TEXT NOT NULL DEFAULT 'sell-base',
	pool_name       TEXT NOT NULL,
	pool_address    TEXT NOT NULL,
	recipient       TEXT NOT NULL,
	input_amount    NUMERIC(78, 0) NOT NULL,
	expected_output NUMERIC(78, 0) NOT NULL,
	minimum_output  NUMERIC(78, 0) NOT NULL,
	maximum_input   NUMERIC(78, 0),
	tolerance_bps   INTEGER NOT NULL,
	tx_hash         TEXT,
	status          TEXT NOT NULL,
	block_number    BIGINT,
	realized_output NUMERIC(78, 0),
	error_detail    TEXT,
	recorded_at     TIMESTAMPTZ NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);
ALTER TABLE trades ADD COLUMN IF NOT EXISTS kind TEXT NOT NULL DEFAULT 'sell-base';
ALTER TABLE trades ADD COLUMN IF NOT EXISTS maximum_input NUMERIC(78, 0);
CREATE INDEX IF NOT EXISTS trades_tx_hash_idx ON trades (lower(tx_hash));
`

// Store provides Postgres persistence for the trade journal.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates the trades table if missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schema)
	return err
}

// PutTradeBatch upserts entries by trade ID.
func (s *Store) PutTradeBatch(ctx context.Context, entries []model.TradeEntry) error {
	if len(entries) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(`
			INSERT INTO trades (
				id, kind, pool_name, pool_address, recipient, input_amount, expected_output, minimum_output,
				maximum_input, tolerance_bps, tx_hash, status, block_number, realized_output, error_detail,
				recorded_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
			ON CONFLICT (id)
			DO UPDATE SET
				tx_hash = COALESCE(EXCLUDED.tx_hash, trades.tx_hash),
				status = EXCLUDED.status,
				block_number = COALESCE(EXCLUDED.block_number, trades.block_number),
				realized_output = COALESCE(EXCLUDED.realized_output, trades.realized_output),
				error_detail = COALESCE(EXCLUDED.error_detail, trades.error_detail),
				recorded_at = EXCLUDED.recorded_at,
				updated_at = now()
		`,
			e.ID,
			kindOrDefault(e.Kind),
			e.PoolName,
			e.PoolAddress,
			e.Recipient,
			e.InputAmount,
			e.ExpectedOutput,
			e.MinimumOutput,
			nullable(e.MaximumInput),
			int64(e.ToleranceBps),
			nullable(e.TxHash),
			e.Status,
			nullableBlock(e.BlockNumber),
			nullable(e.RealizedOutput),
			nullable(e.ErrorDetail),
			e.RecordedAt,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range entries {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// FindByTxHash returns the entry for txHash.
func (s *Store) FindByTxHash(ctx context.Context, txHash string) (model.TradeEntry, bool, error) {
	var (
		e        model.TradeEntry
		tol      int64
		hash     *string
		block    *int64
		realized *string
		detail   *string
		maxIn    *string
	)
	row := s.pool.QueryRow(ctx, `
		SELECT id, kind, pool_name, pool_address, recipient, input_amount::text, expected_output::text,
			minimum_output::text, maximum_input::text, tolerance_bps, tx_hash, status, block_number, realized_output::text,
			error_detail, to_char(recorded_at AT TIME ZONE 'UTC', 'YYYY-MM-DD"T"HH24:MI:SS"Z"')
		FROM trades WHERE lower(tx_hash) = $1
		ORDER BY updated_at DESC LIMIT 1
	`, strings.ToLower(txHash))
	err := row.Scan(&e.ID, &e.Kind, &e.PoolName, &e.PoolAddress, &e.Recipient, &e.InputAmount, &e.ExpectedOutput,
		&e.MinimumOutput, &maxIn, &tol, &hash, &e.Status, &block, &realized, &detail, &e.RecordedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.TradeEntry{}, false, nil
		}
		return model.TradeEntry{}, false, err
	}
	e.ToleranceBps = uint32(tol)
	if hash != nil {
		e.TxHash = *hash
	}
	if block != nil {
		e.BlockNumber = uint64(*block)
	}
	if realized != nil {
		e.RealizedOutput = *realized
	}
	if detail != nil {
		e.ErrorDetail = *detail
	}
	if maxIn != nil {
		e.MaximumInput = *maxIn
	}
	return e, true, nil
}

func kindOrDefault(kind string) string {
	if kind == "" {
		return model.SellBaseTrade.String()
	}
	return kind
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullableBlock(n uint64) *int64 {
	if n == 0 {
		return nil
	}
	v := int64(n)
	return &v
}
