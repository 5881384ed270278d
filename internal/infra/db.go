package infra

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	_ "modernc.org/sqlite"
)

// Dialect names the SQL flavour behind a Database.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// Database is a transactional SQL backend. Statements passed through the
// executor carry `--sql <uuid>` markers and use $N placeholders.
type Database interface {
	Dialect() Dialect
	InTx(ctx context.Context, fn func(exec SQLExecutor) error) error
	ExecScript(ctx context.Context, script string) error
	Ping(ctx context.Context) error
	Close() error
}

// NewDBPool initializes a new pgx connection pool using the provided configuration.
func NewDBPool(ctx context.Context, cfg *Config) (*pgxpool.Pool, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 1
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	return pool, nil
}

// PostgresDB runs transactions on a pgx pool. Row locks taken with
// `for update` serialize concurrent writers per row.
type PostgresDB struct {
	Pool   *pgxpool.Pool
	logger zerolog.Logger
}

func NewPostgresDB(pool *pgxpool.Pool, logger zerolog.Logger) *PostgresDB {
	return &PostgresDB{Pool: pool, logger: logger}
}

func (d *PostgresDB) Dialect() Dialect { return DialectPostgres }

func (d *PostgresDB) InTx(ctx context.Context, fn func(exec SQLExecutor) error) error {
	tx, err := d.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(NewSQLRunner(pgxExecutor{q: tx}, d.logger)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (d *PostgresDB) ExecScript(ctx context.Context, script string) error {
	_, err := d.Pool.Exec(ctx, script)
	return err
}

func (d *PostgresDB) Ping(ctx context.Context) error { return d.Pool.Ping(ctx) }

func (d *PostgresDB) Close() error {
	d.Pool.Close()
	return nil
}

type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type pgxExecutor struct {
	q pgxQuerier
}

func (e pgxExecutor) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	tag, err := e.q.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (e pgxExecutor) QueryRow(ctx context.Context, query string, args ...any) Row {
	return e.q.QueryRow(ctx, query, args...)
}

func (e pgxExecutor) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	return e.q.Query(ctx, query, args...)
}

// SQLiteDB runs transactions on a single modernc connection, so writers are
// serialized by the connection itself.
type SQLiteDB struct {
	DB     *sql.DB
	logger zerolog.Logger
}

// OpenSQLite opens (or creates) the database file at path.
func OpenSQLite(path string, logger zerolog.Logger) (*SQLiteDB, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", sqliteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	return &SQLiteDB{DB: db, logger: logger}, nil
}

// sqliteDSN starts every transaction with BEGIN IMMEDIATE so the write lock
// is taken before the first read.
func sqliteDSN(path string) string {
	return path + "?" + url.Values{
		"_pragma": []string{
			"busy_timeout(30000)",
			"journal_mode(WAL)",
			"synchronous(NORMAL)",
		},
		"_txlock": []string{"immediate"},
	}.Encode()
}

func (d *SQLiteDB) Dialect() Dialect { return DialectSQLite }

func (d *SQLiteDB) InTx(ctx context.Context, fn func(exec SQLExecutor) error) error {
	tx, err := d.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(NewSQLRunner(sqlExecutor{q: tx}, d.logger)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			d.logger.Error().Err(rbErr).Msg("sqlite rollback failed")
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (d *SQLiteDB) ExecScript(ctx context.Context, script string) error {
	_, err := d.DB.ExecContext(ctx, script)
	return err
}

func (d *SQLiteDB) Ping(ctx context.Context) error { return d.DB.PingContext(ctx) }

func (d *SQLiteDB) Close() error { return d.DB.Close() }

type sqlQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// sqlExecutor adapts database/sql to SQLExecutor. SQLite has no row locks, so
// `for update` lines are dropped; the single connection already serializes
// transactions.
type sqlExecutor struct {
	q sqlQuerier
}

func (e sqlExecutor) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := e.q.ExecContext(ctx, stripRowLocks(query), args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (e sqlExecutor) QueryRow(ctx context.Context, query string, args ...any) Row {
	return e.q.QueryRowContext(ctx, stripRowLocks(query), args...)
}

func (e sqlExecutor) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	rows, err := e.q.QueryContext(ctx, stripRowLocks(query), args...)
	if err != nil {
		return nil, err
	}
	return sqlRows{rows}, nil
}

type sqlRows struct {
	*sql.Rows
}

func (r sqlRows) Close() { _ = r.Rows.Close() }

func stripRowLocks(query string) string {
	lines := strings.Split(query, "\n")
	out := lines[:0]
	for _, line := range lines {
		l := strings.ToLower(strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(line), ";")))
		if l == "for update" {
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

var (
	_ Database = (*PostgresDB)(nil)
	_ Database = (*SQLiteDB)(nil)
)
