package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/and161185/econtract/internal/errs"
	"github.com/and161185/econtract/internal/model"
	"github.com/and161185/econtract/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"
)

func newDB(t *testing.T) (*DB, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	return &DB{Pool: mock}, mock
}

func sampleContract(t *testing.T) (*model.Contract, []byte) {
	t.Helper()
	at := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	c := model.New(model.Record{
		ID:        "c1",
		Title:     "Lease",
		Parties:   []model.Party{model.NewParty("p1", "u1", "Zhang", "landlord")},
		CreatedAt: at,
		UpdatedAt: at,
	})
	doc, err := json.Marshal(c.Record())
	require.NoError(t, err)
	return c, doc
}

func TestContractRepo_Create_OK(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewContractRepo(db)
	c, _ := sampleContract(t)

	mock.ExpectExec(`INSERT INTO contracts \(id, status, type, end_time, doc, created_at, updated_at\)`).
		WithArgs("c1", "pending", "rental", pgxmock.AnyArg(), pgxmock.AnyArg(), c.CreatedAt(), c.UpdatedAt()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, r.Create(context.Background(), c))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestContractRepo_Create_Duplicate(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewContractRepo(db)
	c, _ := sampleContract(t)

	mock.ExpectExec(`INSERT INTO contracts`).
		WithArgs("c1", "pending", "rental", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err := r.Create(context.Background(), c)
	require.ErrorIs(t, err, errs.ErrAlreadyExists)
}

func TestContractRepo_Get(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewContractRepo(db)
	want, doc := sampleContract(t)

	mock.ExpectQuery(`SELECT doc FROM contracts WHERE id=\$1`).
		WithArgs("c1").
		WillReturnRows(pgxmock.NewRows([]string{"doc"}).AddRow(doc))

	got, err := r.Get(context.Background(), "c1")
	require.NoError(t, err)
	require.Equal(t, want.Record(), got.Record())

	mock.ExpectQuery(`SELECT doc FROM contracts WHERE id=\$1`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)
	_, err = r.Get(context.Background(), "missing")
	require.ErrorIs(t, err, errs.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestContractRepo_List(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewContractRepo(db)
	_, doc := sampleContract(t)

	mock.ExpectQuery(`SELECT doc FROM contracts WHERE status=\$1 ORDER BY created_at DESC, id ASC LIMIT \$2 OFFSET \$3`).
		WithArgs("pending", 10, 5).
		WillReturnRows(pgxmock.NewRows([]string{"doc"}).AddRow(doc))

	got, err := r.List(context.Background(), repository.Filter{Status: model.StatusPending, Limit: 10, Offset: 5})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "c1", got[0].ID())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListQuery(t *testing.T) {
	t.Parallel()
	q, args := listQuery(repository.Filter{})
	require.Equal(t, "SELECT doc FROM contracts ORDER BY created_at DESC, id ASC LIMIT $1 OFFSET $2", q)
	require.Equal(t, []any{defaultLimit, 0}, args)

	q, args = listQuery(repository.Filter{Status: model.StatusActive, Type: model.TypeService, Limit: 3, Offset: -1})
	require.Equal(t,
		"SELECT doc FROM contracts WHERE status=$1 AND type=$2 ORDER BY created_at DESC, id ASC LIMIT $3 OFFSET $4", q)
	require.Equal(t, []any{"active", "service", 3, 0}, args)
}

func TestContractRepo_Update_OK(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewContractRepo(db)
	_, doc := sampleContract(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT doc FROM contracts WHERE id=\$1 FOR UPDATE`).
		WithArgs("c1").
		WillReturnRows(pgxmock.NewRows([]string{"doc"}).AddRow(doc))
	mock.ExpectExec(`UPDATE contracts SET status=\$2, type=\$3, end_time=\$4, doc=\$5, updated_at=\$6 WHERE id=\$1`).
		WithArgs("c1", "active", "rental", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	c, err := r.Update(context.Background(), "c1", func(c *model.Contract) error {
		return c.UpdateStatus(model.StatusActive)
	})
	require.NoError(t, err)
	require.Equal(t, model.StatusActive, c.Status())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestContractRepo_Update_FnErrorRollsBack(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewContractRepo(db)
	_, doc := sampleContract(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT doc FROM contracts WHERE id=\$1 FOR UPDATE`).
		WithArgs("c1").
		WillReturnRows(pgxmock.NewRows([]string{"doc"}).AddRow(doc))
	mock.ExpectRollback()

	_, err := r.Update(context.Background(), "c1", func(c *model.Contract) error {
		return c.AddSignature("ghost", model.Signature{})
	})
	require.ErrorIs(t, err, errs.ErrPartyNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestContractRepo_Update_NotFound(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewContractRepo(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT doc FROM contracts WHERE id=\$1 FOR UPDATE`).
		WithArgs("nope").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	_, err := r.Update(context.Background(), "nope", func(*model.Contract) error { return nil })
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestContractRepo_Update_BeginFails(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewContractRepo(db)

	boom := errors.New("db down")
	mock.ExpectBegin().WillReturnError(boom)

	_, err := r.Update(context.Background(), "c1", func(*model.Contract) error { return nil })
	require.ErrorIs(t, err, boom)
}

func TestContractRepo_ListExpiring(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewContractRepo(db)
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT id FROM contracts\s+WHERE status NOT IN`).
		WithArgs(now).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("a").AddRow("b"))

	ids, err := r.ListExpiring(context.Background(), now)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, ids)
	require.NoError(t, mock.ExpectationsWereMet())
}
