package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/and161185/econtract/internal/errs"
	"github.com/and161185/econtract/internal/model"
	"github.com/and161185/econtract/internal/repository"
	"github.com/jackc/pgx/v5"
)

const defaultLimit = 100

// ContractRepo implements ContractRepository using PostgreSQL.
// The full record is kept in a JSONB column; status, type and times are
// projected into plain columns for filtering.
type ContractRepo struct {
	db   *DB
	opts []model.Option
}

var _ repository.ContractRepository = (*ContractRepo)(nil)

// NewContractRepo constructs a contract repository.
func NewContractRepo(db *DB, opts ...model.Option) *ContractRepo {
	return &ContractRepo{db: db, opts: opts}
}

// Create inserts a new contract row.
func (r *ContractRepo) Create(ctx context.Context, c *model.Contract) error {
	doc, err := json.Marshal(c.Record())
	if err != nil {
		return fmt.Errorf("encode contract %q: %w", c.ID(), err)
	}
	const q = `
INSERT INTO contracts (id, status, type, end_time, doc, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err = r.db.Pool.Exec(ctx, q,
		c.ID(), string(c.Status()), string(c.Type()), c.EndTime(), doc, c.CreatedAt(), c.UpdatedAt())
	if isUniqueViolation(err) {
		return fmt.Errorf("contract %q: %w", c.ID(), errs.ErrAlreadyExists)
	}
	return err
}

// Get selects a contract by id.
func (r *ContractRepo) Get(ctx context.Context, id string) (*model.Contract, error) {
	const q = `SELECT doc FROM contracts WHERE id=$1`
	var doc []byte
	if err := r.db.Pool.QueryRow(ctx, q, id).Scan(&doc); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return r.decode(doc)
}

// List returns matching contracts, newest first.
func (r *ContractRepo) List(ctx context.Context, f repository.Filter) ([]*model.Contract, error) {
	q, args := listQuery(f)
	rows, err := r.db.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*model.Contract, 0)
	for rows.Next() {
		var doc []byte
		if err = rows.Scan(&doc); err != nil {
			return nil, err
		}
		c, err := r.decode(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func listQuery(f repository.Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if f.Status != "" {
		args = append(args, string(f.Status))
		conds = append(conds, fmt.Sprintf("status=$%d", len(args)))
	}
	if f.Type != "" {
		args = append(args, string(f.Type))
		conds = append(conds, fmt.Sprintf("type=$%d", len(args)))
	}

	var b strings.Builder
	b.WriteString("SELECT doc FROM contracts")
	if len(conds) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(conds, " AND "))
	}
	limit := f.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	args = append(args, limit, max(f.Offset, 0))
	fmt.Fprintf(&b, " ORDER BY created_at DESC, id ASC LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	return b.String(), args
}

// Update locks the row, applies fn and writes the result back in one transaction.
func (r *ContractRepo) Update(
	ctx context.Context, id string, fn repository.MutateFunc,
) (c *model.Contract, err error) {
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			err = e
		}
	}()

	const sel = `SELECT doc FROM contracts WHERE id=$1 FOR UPDATE`
	const upd = `UPDATE contracts SET status=$2, type=$3, end_time=$4, doc=$5, updated_at=$6 WHERE id=$1`

	var doc []byte
	if err = tx.QueryRow(ctx, sel, id).Scan(&doc); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	if c, err = r.decode(doc); err != nil {
		return nil, err
	}
	if err = fn(c); err != nil {
		return nil, err
	}
	if doc, err = json.Marshal(c.Record()); err != nil {
		return nil, fmt.Errorf("encode contract %q: %w", id, err)
	}
	if _, err = tx.Exec(ctx, upd,
		id, string(c.Status()), string(c.Type()), c.EndTime(), doc, c.UpdatedAt()); err != nil {
		return nil, err
	}
	return c, nil
}

// ListExpiring returns ids of open contracts whose end time is before the instant.
func (r *ContractRepo) ListExpiring(ctx context.Context, before time.Time) ([]string, error) {
	const q = `
SELECT id FROM contracts
WHERE status NOT IN ('expired','canceled','terminated') AND end_time IS NOT NULL AND end_time < $1
ORDER BY id ASC`
	rows, err := r.db.Pool.Query(ctx, q, before)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err = rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *ContractRepo) decode(doc []byte) (*model.Contract, error) {
	var rec model.Record
	if err := json.Unmarshal(doc, &rec); err != nil {
		return nil, fmt.Errorf("decode contract: %w", err)
	}
	return model.New(rec, r.opts...), nil
}
