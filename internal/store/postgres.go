package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/papertrade/trade-engine/internal/model"
)

// Schema is the DDL for the four record collections. Money columns are
// NUMERIC for exact decimal precision.
const Schema = `
CREATE TABLE IF NOT EXISTS wallets (
	account_id        TEXT PRIMARY KEY,
	balance_cents     NUMERIC NOT NULL,
	currency          TEXT NOT NULL,
	realized_pl_cents NUMERIC NOT NULL DEFAULT 0,
	version           BIGINT NOT NULL,
	last_updated      TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS positions (
	account_id     TEXT NOT NULL,
	symbol         TEXT NOT NULL,
	shares         NUMERIC NOT NULL,
	avg_cost_cents NUMERIC NOT NULL,
	version        BIGINT NOT NULL,
	last_updated   TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (account_id, symbol)
);
CREATE TABLE IF NOT EXISTS trade_history (
	id                TEXT PRIMARY KEY,
	account_id        TEXT NOT NULL,
	symbol            TEXT NOT NULL,
	side              TEXT NOT NULL,
	shares            NUMERIC NOT NULL,
	price_cents       NUMERIC NOT NULL,
	avg_cost_cents    NUMERIC NOT NULL DEFAULT 0,
	realized_pl_cents NUMERIC NOT NULL DEFAULT 0,
	timestamp         TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS trade_history_account_idx ON trade_history (account_id, timestamp DESC);
CREATE TABLE IF NOT EXISTS wallet_history (
	id                      TEXT PRIMARY KEY,
	account_id              TEXT NOT NULL,
	kind                    TEXT NOT NULL,
	amount_cents            NUMERIC NOT NULL,
	resulting_balance_cents NUMERIC NOT NULL,
	timestamp               TIMESTAMPTZ NOT NULL,
	description             TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS wallet_history_account_idx ON wallet_history (account_id, timestamp DESC);
`

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
// Mutations commit inside one transaction with version-checked writes, so
// concurrent settlements on the same account serialize via optimistic retry.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema creates the tables if they do not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, Schema)
	return err
}

func (s *PostgresStore) GetWallet(ctx context.Context, accountID string) (*model.Wallet, error) {
	var w model.Wallet
	var balance, realizedPL string

	err := s.pool.QueryRow(ctx,
		`SELECT account_id, balance_cents::TEXT, currency, realized_pl_cents::TEXT, version, last_updated
		 FROM wallets WHERE account_id = $1`, accountID).
		Scan(&w.AccountID, &balance, &w.Currency, &realizedPL, &w.Version, &w.LastUpdated)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get wallet %s: %w", accountID, err)
	}

	w.BalanceCents, _ = decimal.NewFromString(balance)
	w.RealizedPLCents, _ = decimal.NewFromString(realizedPL)
	return &w, nil
}

func (s *PostgresStore) GetPosition(ctx context.Context, accountID, symbol string) (*model.Position, error) {
	var p model.Position
	var shares, avgCost string

	err := s.pool.QueryRow(ctx,
		`SELECT account_id, symbol, shares::TEXT, avg_cost_cents::TEXT, version, last_updated
		 FROM positions WHERE account_id = $1 AND symbol = $2`, accountID, symbol).
		Scan(&p.AccountID, &p.Symbol, &shares, &avgCost, &p.Version, &p.LastUpdated)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get position %s/%s: %w", accountID, symbol, err)
	}

	p.Shares, _ = decimal.NewFromString(shares)
	p.AvgCostCents, _ = decimal.NewFromString(avgCost)
	return &p, nil
}

func (s *PostgresStore) ListPositions(ctx context.Context, accountID string) ([]model.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT account_id, symbol, shares::TEXT, avg_cost_cents::TEXT, version, last_updated
		 FROM positions WHERE account_id = $1 ORDER BY symbol`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []model.Position
	for rows.Next() {
		var p model.Position
		var shares, avgCost string
		if err := rows.Scan(&p.AccountID, &p.Symbol, &shares, &avgCost, &p.Version, &p.LastUpdated); err != nil {
			return nil, err
		}
		p.Shares, _ = decimal.NewFromString(shares)
		p.AvgCostCents, _ = decimal.NewFromString(avgCost)
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

func (s *PostgresStore) ListTrades(ctx context.Context, accountID string) ([]model.TradeRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, account_id, symbol, side, shares::TEXT, price_cents::TEXT,
		        avg_cost_cents::TEXT, realized_pl_cents::TEXT, timestamp
		 FROM trade_history WHERE account_id = $1 ORDER BY timestamp DESC`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []model.TradeRecord
	for rows.Next() {
		var t model.TradeRecord
		var shares, price, avgCost, realizedPL string
		if err := rows.Scan(&t.ID, &t.AccountID, &t.Symbol, &t.Side,
			&shares, &price, &avgCost, &realizedPL, &t.Timestamp); err != nil {
			return nil, err
		}
		t.Shares, _ = decimal.NewFromString(shares)
		t.PriceCents, _ = decimal.NewFromString(price)
		t.AvgCostCents, _ = decimal.NewFromString(avgCost)
		t.RealizedPLCents, _ = decimal.NewFromString(realizedPL)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

func (s *PostgresStore) ListWalletTransactions(ctx context.Context, accountID string) ([]model.WalletTransaction, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, account_id, kind, amount_cents::TEXT, resulting_balance_cents::TEXT, timestamp, description
		 FROM wallet_history WHERE account_id = $1 ORDER BY timestamp DESC`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []model.WalletTransaction
	for rows.Next() {
		var tx model.WalletTransaction
		var amount, balance string
		if err := rows.Scan(&tx.ID, &tx.AccountID, &tx.Kind, &amount, &balance, &tx.Timestamp, &tx.Description); err != nil {
			return nil, err
		}
		tx.AmountCents, _ = decimal.NewFromString(amount)
		tx.ResultingBalanceCents, _ = decimal.NewFromString(balance)
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

// Apply runs the mutation inside one transaction. Version checks piggyback
// on the UPDATE/DELETE predicates: zero rows affected means the record moved
// under us and the whole transaction rolls back with ErrVersionConflict.
func (s *PostgresStore) Apply(ctx context.Context, m *Mutation) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin settlement tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := applyWallet(ctx, tx, m.Wallet); err != nil {
		return err
	}
	if m.Position != nil {
		if err := applyPosition(ctx, tx, m); err != nil {
			return err
		}
	}
	if m.Trade != nil {
		if err := insertTrade(ctx, tx, m.Trade); err != nil {
			return err
		}
	}
	if m.WalletTx != nil {
		if err := insertWalletTx(ctx, tx, m.WalletTx); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func applyWallet(ctx context.Context, tx pgx.Tx, w *model.Wallet) error {
	if w.Version == 0 {
		tag, err := tx.Exec(ctx,
			`INSERT INTO wallets (account_id, balance_cents, currency, realized_pl_cents, version, last_updated)
			 VALUES ($1, $2::NUMERIC, $3, $4::NUMERIC, 1, $5)
			 ON CONFLICT (account_id) DO NOTHING`,
			w.AccountID, w.BalanceCents.String(), w.Currency, w.RealizedPLCents.String(), w.LastUpdated)
		if err != nil {
			return fmt.Errorf("insert wallet: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrVersionConflict
		}
		return nil
	}

	tag, err := tx.Exec(ctx,
		`UPDATE wallets
		 SET balance_cents = $2::NUMERIC, realized_pl_cents = $3::NUMERIC,
		     version = version + 1, last_updated = $4
		 WHERE account_id = $1 AND version = $5`,
		w.AccountID, w.BalanceCents.String(), w.RealizedPLCents.String(), w.LastUpdated, w.Version)
	if err != nil {
		return fmt.Errorf("update wallet: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrVersionConflict
	}
	return nil
}

func applyPosition(ctx context.Context, tx pgx.Tx, m *Mutation) error {
	p := m.Position

	if m.DeletePosition {
		tag, err := tx.Exec(ctx,
			`DELETE FROM positions WHERE account_id = $1 AND symbol = $2 AND version = $3`,
			p.AccountID, p.Symbol, p.Version)
		if err != nil {
			return fmt.Errorf("delete position: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrVersionConflict
		}
		return nil
	}

	if p.Version == 0 {
		tag, err := tx.Exec(ctx,
			`INSERT INTO positions (account_id, symbol, shares, avg_cost_cents, version, last_updated)
			 VALUES ($1, $2, $3::NUMERIC, $4::NUMERIC, 1, $5)
			 ON CONFLICT (account_id, symbol) DO NOTHING`,
			p.AccountID, p.Symbol, p.Shares.String(), p.AvgCostCents.String(), p.LastUpdated)
		if err != nil {
			return fmt.Errorf("insert position: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrVersionConflict
		}
		return nil
	}

	tag, err := tx.Exec(ctx,
		`UPDATE positions
		 SET shares = $3::NUMERIC, avg_cost_cents = $4::NUMERIC,
		     version = version + 1, last_updated = $5
		 WHERE account_id = $1 AND symbol = $2 AND version = $6`,
		p.AccountID, p.Symbol, p.Shares.String(), p.AvgCostCents.String(), p.LastUpdated, p.Version)
	if err != nil {
		return fmt.Errorf("update position: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrVersionConflict
	}
	return nil
}

func insertTrade(ctx context.Context, tx pgx.Tx, t *model.TradeRecord) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO trade_history (id, account_id, symbol, side, shares, price_cents, avg_cost_cents, realized_pl_cents, timestamp)
		 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6::NUMERIC, $7::NUMERIC, $8::NUMERIC, $9)`,
		t.ID, t.AccountID, t.Symbol, t.Side,
		t.Shares.String(), t.PriceCents.String(), t.AvgCostCents.String(), t.RealizedPLCents.String(),
		t.Timestamp)
	if err != nil {
		return fmt.Errorf("insert trade record: %w", err)
	}
	return nil
}

func insertWalletTx(ctx context.Context, tx pgx.Tx, wt *model.WalletTransaction) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO wallet_history (id, account_id, kind, amount_cents, resulting_balance_cents, timestamp, description)
		 VALUES ($1, $2, $3, $4::NUMERIC, $5::NUMERIC, $6, $7)`,
		wt.ID, wt.AccountID, wt.Kind, wt.AmountCents.String(), wt.ResultingBalanceCents.String(),
		wt.Timestamp, wt.Description)
	if err != nil {
		return fmt.Errorf("insert wallet transaction: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteTrades(ctx context.Context, accountID string, ids []string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM trade_history WHERE account_id = $1 AND id = ANY($2)`, accountID, ids)
	return err
}

func (s *PostgresStore) DeleteWalletTransactions(ctx context.Context, accountID string, ids []string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM wallet_history WHERE account_id = $1 AND id = ANY($2)`, accountID, ids)
	return err
}
