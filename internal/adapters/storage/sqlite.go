package storage

// sqlite.go: history of plans and their execution.
//
// Layout:
//   - `plans`: one row per plan, the whole plan serialized as JSON.
//     IDs are deterministic, so saving the same plan twice is a no-op.
//   - `plan_orders`: which order rode in which transaction, for lookups by order.
//   - `reports`: one row per executed transaction (UPSERT on plan + index).
//   - Pruned at startup: plans and reports older than 90d.

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sugawarayuuta/sonnet"
	_ "modernc.org/sqlite"

	"github.com/alejandrodnm/nftagg/internal/codec"
	"github.com/alejandrodnm/nftagg/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS plans (
    id          TEXT PRIMARY KEY,
    created_at  DATETIME NOT NULL,
    tx_count    INTEGER  NOT NULL DEFAULT 0,
    order_count INTEGER  NOT NULL DEFAULT 0,
    payload     TEXT     NOT NULL
);

CREATE TABLE IF NOT EXISTS plan_orders (
    plan_id    TEXT    NOT NULL,
    tx_index   INTEGER NOT NULL,
    position   INTEGER NOT NULL,
    order_id   TEXT    NOT NULL,
    order_hash TEXT    NOT NULL,
    PRIMARY KEY (plan_id, tx_index, position)
);

CREATE TABLE IF NOT EXISTS reports (
    plan_id     TEXT     NOT NULL,
    tx_index    INTEGER  NOT NULL,
    tx_hash     TEXT,
    status      TEXT     NOT NULL,
    filled      TEXT     NOT NULL DEFAULT '[]',
    skipped     TEXT     NOT NULL DEFAULT '[]',
    error       TEXT,
    executed_at DATETIME NOT NULL,
    PRIMARY KEY (plan_id, tx_index)
);

CREATE INDEX IF NOT EXISTS idx_plans_created ON plans(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_plan_orders   ON plan_orders(order_id);
CREATE INDEX IF NOT EXISTS idx_reports_at    ON reports(executed_at DESC);
`

const retention = 90 * 24 * time.Hour

// ErrNotFound is returned when a plan does not exist.
var ErrNotFound = errors.New("not found")

// SQLiteStorage implements ports.PlanStorage on SQLite (pure Go, no CGo).
type SQLiteStorage struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStorage opens (or creates) the database at dsn.
// It applies the schema and prunes old data.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStorage: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite is single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStorage: apply schema: %w", err)
	}

	s := &SQLiteStorage{db: db, now: time.Now}
	s.pruneOld(context.Background())
	return s, nil
}

// SavePlan stores the plan and its order index in one transaction.
func (s *SQLiteStorage) SavePlan(ctx context.Context, plan domain.TransactionPlan) error {
	if plan.ID == "" {
		return fmt.Errorf("storage.SavePlan: plan without id")
	}
	payload, err := sonnet.Marshal(plan)
	if err != nil {
		return fmt.Errorf("storage.SavePlan: encode %s: %w", plan.ID, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.SavePlan: begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO plans (id, created_at, tx_count, order_count, payload) VALUES (?, ?, ?, ?, ?)`,
		plan.ID, s.now().UTC(), len(plan.Txs), plan.OrderCount(), string(payload),
	)
	if err != nil {
		return fmt.Errorf("storage.SavePlan: insert %s: %w", plan.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil // already saved
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO plan_orders (plan_id, tx_index, position, order_id, order_hash) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("storage.SavePlan: prepare: %w", err)
	}
	defer stmt.Close()

	for i, t := range plan.Txs {
		for j, id := range t.Orders {
			hash := ""
			if j < len(t.OrderHashes) {
				hash = t.OrderHashes[j]
			}
			if _, err := stmt.ExecContext(ctx, plan.ID, i, j, id, hash); err != nil {
				return fmt.Errorf("storage.SavePlan: index order %s: %w", id, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.SavePlan: commit: %w", err)
	}
	return nil
}

// GetPlan loads a saved plan.
func (s *SQLiteStorage) GetPlan(ctx context.Context, id string) (domain.TransactionPlan, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM plans WHERE id = ?`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.TransactionPlan{}, fmt.Errorf("storage.GetPlan: plan %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return domain.TransactionPlan{}, fmt.Errorf("storage.GetPlan: %w", err)
	}

	var plan domain.TransactionPlan
	if err := sonnet.Unmarshal([]byte(payload), &plan); err != nil {
		return domain.TransactionPlan{}, fmt.Errorf("storage.GetPlan: decode %s: %w", id, err)
	}
	for i := range plan.Txs {
		restorePermits(plan.Txs[i].Permits)
	}
	return plan, nil
}

// restorePermits rebuilds each permit's typed data: the message holds
// *big.Int values that JSON hands back as float64.
func restorePermits(permits []domain.PermitRequest) {
	for i := range permits {
		p := &permits[i]
		chainID := new(big.Int)
		if p.TypedData.Domain.ChainId != nil {
			chainID = (*big.Int)(p.TypedData.Domain.ChainId)
		}
		p.TypedData = codec.PermitTypedData(codec.PermitArg{
			Owner:     p.Owner,
			Token:     p.Token,
			Amount:    p.Amount,
			Recipient: p.Recipient,
			Nonce:     p.Nonce,
			Deadline:  new(big.Int).SetUint64(p.Deadline),
		}, p.Witness, chainID, common.HexToAddress(p.TypedData.Domain.VerifyingContract))
	}
}

// PlansForOrder returns the plans that carried orderID, newest first.
func (s *SQLiteStorage) PlansForOrder(ctx context.Context, orderID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT o.plan_id
		FROM plan_orders o JOIN plans p ON p.id = o.plan_id
		WHERE o.order_id = ?
		ORDER BY p.created_at DESC, o.plan_id
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("storage.PlansForOrder: query: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("storage.PlansForOrder: scan row: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SaveReport upserts the outcome of one transaction.
func (s *SQLiteStorage) SaveReport(ctx context.Context, r domain.ExecutionReport) error {
	filled, err := sonnet.Marshal(nonNil(r.Filled))
	if err != nil {
		return fmt.Errorf("storage.SaveReport: %w", err)
	}
	skipped, err := sonnet.Marshal(nonNil(r.Skipped))
	if err != nil {
		return fmt.Errorf("storage.SaveReport: %w", err)
	}
	executedAt := r.ExecutedAt
	if executedAt.IsZero() {
		executedAt = s.now()
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO reports (plan_id, tx_index, tx_hash, status, filled, skipped, error, executed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(plan_id, tx_index) DO UPDATE SET
			tx_hash     = excluded.tx_hash,
			status      = excluded.status,
			filled      = excluded.filled,
			skipped     = excluded.skipped,
			error       = excluded.error,
			executed_at = excluded.executed_at
	`, r.PlanID, r.TxIndex, r.TxHash, string(r.Status), string(filled), string(skipped), r.Error, executedAt.UTC()); err != nil {
		return fmt.Errorf("storage.SaveReport: upsert %s/%d: %w", r.PlanID, r.TxIndex, err)
	}
	return nil
}

// GetReports returns a plan's reports ordered by transaction index.
func (s *SQLiteStorage) GetReports(ctx context.Context, planID string) ([]domain.ExecutionReport, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT plan_id, tx_index, COALESCE(tx_hash, ''), status, filled, skipped, COALESCE(error, ''), executed_at
		FROM reports
		WHERE plan_id = ?
		ORDER BY tx_index
	`, planID)
	if err != nil {
		return nil, fmt.Errorf("storage.GetReports: query: %w", err)
	}
	defer rows.Close()

	var reports []domain.ExecutionReport
	for rows.Next() {
		var (
			r               domain.ExecutionReport
			status          string
			filled, skipped string
		)
		if err := rows.Scan(&r.PlanID, &r.TxIndex, &r.TxHash, &status, &filled, &skipped, &r.Error, &r.ExecutedAt); err != nil {
			return nil, fmt.Errorf("storage.GetReports: scan row: %w", err)
		}
		r.Status = domain.ExecutionStatus(status)
		if err := sonnet.Unmarshal([]byte(filled), &r.Filled); err != nil {
			return nil, fmt.Errorf("storage.GetReports: filled: %w", err)
		}
		if err := sonnet.Unmarshal([]byte(skipped), &r.Skipped); err != nil {
			return nil, fmt.Errorf("storage.GetReports: skipped: %w", err)
		}
		r.ExecutedAt = r.ExecutedAt.UTC()
		reports = append(reports, r)
	}
	return reports, rows.Err()
}

// Close closes the database.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// --- helpers ---

// pruneOld drops old rows to keep the database small.
func (s *SQLiteStorage) pruneOld(ctx context.Context) {
	cutoff := s.now().UTC().Add(-retention)
	s.db.ExecContext(ctx, `DELETE FROM plan_orders WHERE plan_id IN (SELECT id FROM plans WHERE created_at < ?)`, cutoff)
	s.db.ExecContext(ctx, `DELETE FROM plans WHERE created_at < ?`, cutoff)
	s.db.ExecContext(ctx, `DELETE FROM reports WHERE executed_at < ?`, cutoff)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
