package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"studio-booking-api/internal/apperr"
	"studio-booking-api/internal/booking"
)

type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// querier is satisfied by both the pool and an open transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Migrate applies path, or every *.sql file in it in name order when path
// is a directory. Statements are idempotent.
func (s *Store) Migrate(ctx context.Context, path string) error {
	files := []string{path}
	if fi, err := os.Stat(path); err != nil {
		return fmt.Errorf("read migrations: %w", err)
	} else if fi.IsDir() {
		files, err = filepath.Glob(filepath.Join(path, "*.sql"))
		if err != nil {
			return fmt.Errorf("read migrations: %w", err)
		}
		sort.Strings(files)
	}

	for _, f := range files {
		sql, err := os.ReadFile(f)
		if err != nil {
			return fmt.Errorf("read migration: %w", err)
		}
		if _, err := s.pool.Exec(ctx, string(sql)); err != nil {
			return fmt.Errorf("apply migration %s: %w", filepath.Base(f), err)
		}
		log.Printf("store: applied %s", filepath.Base(f))
	}
	return nil
}

// InTx runs fn in one transaction, committing only when fn succeeds.
func (s *Store) InTx(ctx context.Context, fn func(booking.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(&bookingTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return mapErr(err, "booking")
	}
	return nil
}

const (
	uniqueViolation = "23505"
	checkViolation  = "23514"
	fkViolation     = "23503"
)

// mapErr turns driver errors into apperr kinds; what names the entity.
func mapErr(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound("%s not found", what)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case uniqueViolation:
			return apperr.Conflict("%s already exists", what)
		case checkViolation:
			return apperr.Conflict("%s violates %s", what, pgErr.ConstraintName)
		case fkViolation:
			return apperr.NotFound("%s references a missing record", what)
		}
	}
	return err
}

func isUnique(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
