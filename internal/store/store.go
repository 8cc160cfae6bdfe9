package store

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/lib/pq"
	"github.com/mohammad-safakhou/lessonplanner/config"
)

type Store struct {
	DB  *sql.DB
	now func() time.Time
}

// New opens the Postgres connection described by cfg.
func New(ctx context.Context, cfg config.PostgresConfig) (*Store, error) {
	return NewWithDSN(ctx, cfg.DSN())
}

// NewWithDSN constructs the Store using an explicit Postgres DSN
func NewWithDSN(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{DB: db, now: time.Now}, nil
}

// NewWithDB wraps an existing handle; used with sqlmock.
func NewWithDB(db *sql.DB) *Store {
	return &Store{DB: db, now: time.Now}
}

func (s *Store) Close() error { return s.DB.Close() }
