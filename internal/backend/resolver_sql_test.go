package backend

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"gotest.tools/assert"
)

func TestSQLResolver(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	assert.NilError(t, err)
	r := NewSQLResolver(db)
	defer r.Close()

	columns := []string{"pool_id", "user_id", "pool_name", "pool_address", "pool_port"}
	mock.ExpectQuery(regexp.QuoteMeta(minerQuery)).
		WithArgs("198.51.100.4").
		WillReturnRows(sqlmock.NewRows(columns).AddRow(7, 42, "Main", "pool.example", 3333))
	mock.ExpectQuery(regexp.QuoteMeta(minerQuery)).
		WithArgs("198.51.100.5").
		WillReturnRows(sqlmock.NewRows(columns).AddRow(8, nil, nil, "other.example", 4444))
	mock.ExpectQuery(regexp.QuoteMeta(minerQuery)).
		WithArgs("198.51.100.6").
		WillReturnRows(sqlmock.NewRows(columns))
	mock.ExpectQuery(regexp.QuoteMeta(minerQuery)).
		WithArgs("198.51.100.7").
		WillReturnError(errors.New("connection reset"))

	ctx := context.Background()

	got, err := r.Resolve(ctx, "198.51.100.4")
	assert.NilError(t, err)
	assert.DeepEqual(t, got, Destination{PoolID: "7", UserID: "42", PoolName: "Main", Hostname: "pool.example", Port: 3333})

	got, err = r.Resolve(ctx, "198.51.100.5")
	assert.NilError(t, err)
	assert.DeepEqual(t, got, Destination{PoolID: "8", Hostname: "other.example", Port: 4444})

	_, err = r.Resolve(ctx, "198.51.100.6")
	assert.Assert(t, errors.Is(err, ErrNotFound), "got %v", err)

	_, err = r.Resolve(ctx, "198.51.100.7")
	assert.ErrorContains(t, err, "connection reset")

	assert.NilError(t, mock.ExpectationsWereMet())
}

func TestOpenMySQLRejectsBadDSN(t *testing.T) {
	t.Parallel()

	_, err := OpenMySQL("not a dsn")
	assert.Assert(t, err != nil)
}
