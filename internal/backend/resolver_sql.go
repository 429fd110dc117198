package backend

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
)

const minerQuery = `SELECT pool_id, user_id, pool_name, pool_address, pool_port FROM miners WHERE user_address = ? LIMIT 1`

// SQLResolver looks destinations up in the miners table.
type SQLResolver struct {
	db *sql.DB
}

// NewSQLResolver wraps an open database handle.
func NewSQLResolver(db *sql.DB) *SQLResolver {
	return &SQLResolver{db: db}
}

// OpenMySQL opens a pooled MySQL handle for dsn. No connection is made until
// first use; the pool reconnects on its own after failures.
func OpenMySQL(dsn string) (*SQLResolver, error) {
	mc, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, errors.Wrap(err, "mysql dsn")
	}
	connector, err := mysql.NewConnector(mc)
	if err != nil {
		return nil, errors.Wrap(err, "mysql connector")
	}
	db := sql.OpenDB(connector)
	db.SetConnMaxLifetime(3 * time.Minute)
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(4)
	return NewSQLResolver(db), nil
}

// Ping checks that the database is reachable.
func (r *SQLResolver) Ping(ctx context.Context) error {
	return errors.Wrap(r.db.PingContext(ctx), "mysql ping")
}

func (r *SQLResolver) Resolve(ctx context.Context, clientAddress string) (Destination, error) {
	var (
		poolID, userID, poolName sql.NullString
		host                     string
		port                     int
	)
	err := r.db.QueryRowContext(ctx, minerQuery, clientAddress).Scan(&poolID, &userID, &poolName, &host, &port)
	if errors.Is(err, sql.ErrNoRows) {
		return Destination{}, errors.Wrapf(ErrNotFound, "miner %s", clientAddress)
	}
	if err != nil {
		return Destination{}, errors.Wrap(err, "query miner")
	}
	return newDestination(poolID.String, userID.String, poolName.String, host, strconv.Itoa(port))
}

func (r *SQLResolver) Close() error {
	return r.db.Close()
}
