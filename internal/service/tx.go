package service

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
)

// txProvider is satisfied by *sqlx.DB.
type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}
