// Copyright (c) The Thanos Community Authors.
// Licensed under the Apache License 2.0.

// Package store implements the HDB relational store used by computations: bound SQL queries with
// normalized results, and time series reads and writes against the interval fact tables.
package store

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	"github.com/efficientgo/core/errors"
	"github.com/efficientgo/core/merrors"
	"github.com/go-kit/log"

	"github.com/thanos-community/hdbcomp/pkg/series"

	// Drivers registered for database/sql.
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

var drivers = map[series.Type]string{
	series.POSTGRES: "pgx",
	series.SQLITE:   "sqlite3",
}

// DB is an HDB database handle. It is safe for sequential use by one batch at a time.
type DB struct {
	logger  log.Logger
	db      *sql.DB
	typ     series.Type
	timeout time.Duration
	cache   *Cache
}

// Open connects to the database described by cfg and verifies the connection.
func Open(ctx context.Context, logger log.Logger, cfg series.Config) (*DB, error) {
	typ := series.Type(strings.ToUpper(string(cfg.Type)))
	driver, ok := drivers[typ]
	if !ok {
		return nil, errors.Newf("unsupported store type %v", cfg.Type)
	}
	db, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", typ)
	}
	if typ == series.SQLITE {
		// Every connection to an in-memory database is a separate database.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, merrors.New(errors.Wrapf(err, "ping %s", typ), db.Close()).Err()
	}

	var cache *Cache
	if cfg.Cache.Enabled {
		cache, err = NewCache(logger, cfg.Cache)
		if err != nil {
			return nil, merrors.New(err, db.Close()).Err()
		}
	}
	return NewDB(logger, db, typ, time.Duration(cfg.QueryTimeout), cache), nil
}

// NewDB wraps an already opened database. Cache may be nil.
func NewDB(logger log.Logger, db *sql.DB, typ series.Type, timeout time.Duration, cache *Cache) *DB {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &DB{logger: logger, db: db, typ: typ, timeout: timeout, cache: cache}
}

func (d *DB) Close() error {
	errs := merrors.New(d.db.Close())
	if d.cache != nil {
		errs.Add(d.cache.Close())
	}
	return errs.Err()
}

func (d *DB) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d.timeout)
}

// Query runs q with bound args and reads the whole result.
// Queries use ? placeholders regardless of the driver.
func (d *DB) Query(ctx context.Context, q string, args ...any) (*ResultSet, error) {
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	rows, err := d.db.QueryContext(ctx, d.rebind(q), args...)
	if err != nil {
		return nil, errors.Wrap(err, "query")
	}
	return readRows(d.logger, rows)
}

func (d *DB) Exec(ctx context.Context, q string, args ...any) error {
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	if _, err := d.db.ExecContext(ctx, d.rebind(q), args...); err != nil {
		return errors.Wrap(err, "exec")
	}
	return nil
}

func readRows(logger log.Logger, rows *sql.Rows) (_ *ResultSet, err error) {
	defer func() {
		if cerr := rows.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	cols, err := rows.Columns()
	if err != nil {
		return nil, errors.Wrap(err, "columns")
	}
	rs := &ResultSet{Columns: cols, logger: logger}
	for rows.Next() {
		row := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range row {
			ptrs[i] = &row[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, errors.Wrap(err, "scan")
		}
		rs.Rows = append(rs.Rows, row)
	}
	return rs, errors.Wrap(rows.Err(), "iterate rows")
}

// rebind rewrites ? placeholders into the positional form of the driver.
func (d *DB) rebind(q string) string {
	if d.typ != series.POSTGRES {
		return q
	}
	return rebindDollar(q)
}

func rebindDollar(q string) string {
	var (
		b       strings.Builder
		n       int
		inQuote bool
	)
	b.Grow(len(q) + 8)
	for _, r := range q {
		switch {
		case r == '\'':
			inQuote = !inQuote
		case r == '?' && !inQuote:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// placeholders returns "?, ?, ..." for n bound values.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
