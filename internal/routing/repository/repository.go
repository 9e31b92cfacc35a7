// Package repository holds the persistence layer for the routing context.
// Methods that must participate in the assign transaction take a DB, which
// both the pool and an open pgx.Tx satisfy.
package repository

import (
	"context"

	"leadrouter/internal/outbox"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DB is the querying surface shared by *pgxpool.Pool and pgx.Tx.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type Repository struct {
	pool   *pgxpool.Pool
	outbox *outbox.Repository
}

func New(pool *pgxpool.Pool, ob *outbox.Repository) *Repository {
	return &Repository{pool: pool, outbox: ob}
}

// InTx runs fn inside a transaction, rolling back on error.
func (r *Repository) InTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// InsertOutbox writes an outbox row via db so the event commits with the
// state change it describes.
func (r *Repository) InsertOutbox(ctx context.Context, db DB, p outbox.InsertParams) error {
	_, err := r.outbox.Insert(ctx, db, p)
	return err
}
