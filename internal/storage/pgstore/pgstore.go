package pgstore

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

// pool: подмножество pgxpool.Pool, которое реализует и pgxmock.
type pool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

type Storage struct {
	db  pool
	now func() time.Time
}

func New(connString string) (*Storage, error) {
	if err := Migrate(connString); err != nil {
		return nil, err
	}

	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, errors.Wrap(err, "parse pg config")
	}

	db, err := pgxpool.NewWithConfig(context.Background(), cfg)
	if err != nil {
		return nil, errors.Wrap(err, "connect pg")
	}

	return newWithPool(db), nil
}

func newWithPool(db pool) *Storage {
	return &Storage{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (s *Storage) Close() {
	if s.db != nil {
		s.db.Close()
	}
}

type scanner interface {
	Scan(dest ...any) error
}
