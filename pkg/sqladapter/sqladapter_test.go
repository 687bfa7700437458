package sqladapter

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/stash/pkg/config"
	"github.com/cuemby/stash/pkg/driverio"
	"github.com/cuemby/stash/pkg/intercept"
	"github.com/cuemby/stash/pkg/store/local"
	"github.com/cuemby/stash/pkg/telemetry"
)

func TestReaderDrainsSqlmockRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT id, name FROM products").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).
			AddRow(int64(1), "widget").
			AddRow(int64(2), "gadget"))

	rows, err := db.QueryContext(context.Background(), "SELECT id, name FROM products")
	require.NoError(t, err)

	r, err := New(rows)
	require.NoError(t, err)
	defer r.Close()

	var got [][]any
	for {
		ok, err := r.Read(context.Background())
		require.NoError(t, err)
		if !ok {
			break
		}
		row := make([]any, r.FieldCount())
		for i := range row {
			row[i] = r.GetValue(i)
		}
		got = append(got, row)
	}

	require.Len(t, got, 2)
	require.Equal(t, int64(1), got[0][0])
	require.Equal(t, "widget", got[0][1])
	require.True(t, r.HasRows())
	require.NoError(t, mock.ExpectationsWereMet())
}

// TestInterceptorAdmitsRealDatabaseSQLCursor proves the interceptor's
// driverio.RowReader contract is satisfied end to end by a genuine
// database/sql driver, not just the package's own fake readers.
func TestInterceptorAdmitsRealDatabaseSQLCursor(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT id FROM products").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))

	opts := config.Default()
	opts.CacheAllQueries = true
	st := local.New(0, nil, nil)
	ic := intercept.New(opts, st, telemetry.New(opts, st))

	cmd := driverio.Command{Text: "SELECT id FROM products"}
	ctx := context.Background()

	execCtx, _, hit, err := ic.Executing(ctx, cmd, false)
	require.NoError(t, err)
	require.False(t, hit)

	sqlRows, err := db.QueryContext(ctx, cmd.Text)
	require.NoError(t, err)
	live, err := New(sqlRows)
	require.NoError(t, err)

	wrapped, err := ic.Executed(ctx, execCtx, live)
	require.NoError(t, err)

	for {
		ok, err := wrapped.Read(ctx)
		require.NoError(t, err)
		if !ok {
			break
		}
	}
	require.NoError(t, wrapped.Close())

	_, _, hit2, err := ic.Executing(ctx, cmd, false)
	require.NoError(t, err)
	require.True(t, hit2, "the sqlmock-backed drain must have been admitted to the cache")
	require.NoError(t, mock.ExpectationsWereMet())
}
