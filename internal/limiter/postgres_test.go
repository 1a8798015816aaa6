package limiter

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

type fakeRow struct{ scan func(dest ...any) error }

func (r fakeRow) Scan(dest ...any) error { return r.scan(dest...) }

type fakePool struct {
	qrErr         error
	qrBlockedTill time.Time
	qrFailsRet    int

	lastExecSQL  string
	lastExecArgs []any
	execErr      error
}

var _ pgxQuerier = (*fakePool)(nil)

func (f *fakePool) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.lastExecSQL, f.lastExecArgs = sql, args
	return pgconn.CommandTag{}, f.execErr
}

func (f *fakePool) QueryRow(_ context.Context, sql string, _ ...any) pgx.Row {
	switch {
	case strings.Contains(sql, "SELECT blocked_until"):
		return fakeRow{scan: func(dest ...any) error {
			if f.qrErr != nil {
				return f.qrErr
			}
			*(dest[0].(*time.Time)) = f.qrBlockedTill
			return nil
		}}
	case strings.Contains(sql, "RETURNING fail_count"):
		return fakeRow{scan: func(dest ...any) error {
			if f.qrErr != nil {
				return f.qrErr
			}
			*(dest[0].(*int)) = f.qrFailsRet
			return nil
		}}
	default:
		return fakeRow{scan: func(...any) error { return errors.New("unexpected query") }}
	}
}

func newPG(fp *fakePool, now time.Time) *PG {
	l := NewPG(fp, 5*time.Minute, 5, 10*time.Minute)
	l.now = func() time.Time { return now }
	return l
}

func TestPG_Allow(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	ok, dur, err := newPG(&fakePool{qrErr: pgx.ErrNoRows}, now).Allow(ctx, "u", []byte("h"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Zero(t, dur)

	ok, dur, err = newPG(&fakePool{qrBlockedTill: now.Add(3 * time.Minute)}, now).Allow(ctx, "u", []byte("h"))
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, 3*time.Minute, dur)

	ok, _, err = newPG(&fakePool{qrBlockedTill: now.Add(-time.Minute)}, now).Allow(ctx, "u", []byte("h"))
	require.NoError(t, err)
	require.True(t, ok)

	ok, _, err = newPG(&fakePool{qrErr: errors.New("db boom")}, now).Allow(ctx, "u", []byte("h"))
	require.Error(t, err)
	require.False(t, ok)
}

func TestPG_Success(t *testing.T) {
	fp := &fakePool{}
	require.NoError(t, newPG(fp, time.Now()).Success(context.Background(), "u", []byte("h")))
	require.Contains(t, fp.lastExecSQL, "INSERT INTO sign_limiter")

	fp = &fakePool{execErr: errors.New("exec fail")}
	require.Error(t, newPG(fp, time.Now()).Success(context.Background(), "u", []byte("h")))
}

func TestPG_Failure(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	blocked, dur, err := newPG(&fakePool{qrFailsRet: 2}, now).Failure(context.Background(), "u", []byte("h"))
	require.NoError(t, err)
	require.False(t, blocked)
	require.Zero(t, dur)

	fp := &fakePool{qrFailsRet: 5}
	blocked, dur, err = newPG(fp, now).Failure(context.Background(), "u", []byte("h"))
	require.NoError(t, err)
	require.True(t, blocked)
	require.Equal(t, 10*time.Minute, dur)
	require.Contains(t, fp.lastExecSQL, "UPDATE sign_limiter SET blocked_until")
	require.Equal(t, now.Add(10*time.Minute), fp.lastExecArgs[2])

	_, _, err = newPG(&fakePool{qrErr: errors.New("query error")}, now).Failure(context.Background(), "u", []byte("h"))
	require.Error(t, err)
}

func TestHashIP_Determinism(t *testing.T) {
	a := HashIP("1.2.3.4")
	require.Len(t, a, 32)
	require.Equal(t, a, HashIP("1.2.3.4"))
	require.NotEqual(t, a, HashIP("5.6.7.8"))
}
