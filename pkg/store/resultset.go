// Copyright (c) The Thanos Community Authors.
// Licensed under the Apache License 2.0.

package store

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/efficientgo/core/errors"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/shopspring/decimal"
)

// ErrMalformed is returned by Row accessors for cells that cannot be converted.
var ErrMalformed = errors.New("malformed column data")

var timeFormats = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
}

// ResultSet holds a fully read query result.
//
// Every column accessor returns a sequence, whatever the row count: zero rows is an empty sequence
// (not found, not an error) and one row is a singleton. NULL cells, such as an aggregate over no
// rows, are not found either; only unparsable cells are reported.
type ResultSet struct {
	Columns []string
	Rows    [][]any

	logger log.Logger
}

// NewResultSet builds a result set from already materialized rows.
func NewResultSet(logger log.Logger, columns []string, rows [][]any) *ResultSet {
	return &ResultSet{Columns: columns, Rows: rows, logger: logger}
}

func (r *ResultSet) Len() int { return len(r.Rows) }

func (r *ResultSet) log() log.Logger {
	if r.logger == nil {
		return log.NewNopLogger()
	}
	return r.logger
}

func (r *ResultSet) index(column string) int {
	for i, c := range r.Columns {
		if strings.EqualFold(c, column) {
			return i
		}
	}
	return -1
}

// Values returns the raw cells of column. An unknown column yields an empty sequence.
func (r *ResultSet) Values(column string) []any {
	i := r.index(column)
	if i < 0 {
		return []any{}
	}
	out := make([]any, 0, len(r.Rows))
	for _, row := range r.Rows {
		out = append(out, row[i])
	}
	return out
}

// Each calls fn for every row. Rows for which fn reports ErrMalformed are logged and skipped;
// any other error stops the iteration.
func (r *ResultSet) Each(fn func(Row) error) error {
	for i := range r.Rows {
		if err := fn(Row{rs: r, i: i}); err != nil {
			if errors.Is(err, ErrMalformed) {
				level.Warn(r.log()).Log("msg", "skipping malformed row", "row", i, "err", err)
				continue
			}
			return err
		}
	}
	return nil
}

// Floats returns column as floats, skipping NULL and malformed cells.
func (r *ResultSet) Floats(column string) []float64 {
	out := make([]float64, 0, len(r.Rows))
	_ = r.Each(func(row Row) error {
		if row.IsNull(column) {
			return nil
		}
		v, err := row.Float(column)
		if err != nil {
			return err
		}
		out = append(out, v)
		return nil
	})
	return out
}

// Int64s returns column as integers, skipping NULL and malformed cells.
func (r *ResultSet) Int64s(column string) []int64 {
	out := make([]int64, 0, len(r.Rows))
	_ = r.Each(func(row Row) error {
		if row.IsNull(column) {
			return nil
		}
		v, err := row.Int64(column)
		if err != nil {
			return err
		}
		out = append(out, v)
		return nil
	})
	return out
}

// Strings returns column as strings, skipping NULL cells.
func (r *ResultSet) Strings(column string) []string {
	out := make([]string, 0, len(r.Rows))
	_ = r.Each(func(row Row) error {
		if row.IsNull(column) {
			return nil
		}
		v, err := row.String(column)
		if err != nil {
			return err
		}
		out = append(out, v)
		return nil
	})
	return out
}

// Times returns column as UTC times, skipping NULL and malformed cells.
func (r *ResultSet) Times(column string) []time.Time {
	out := make([]time.Time, 0, len(r.Rows))
	_ = r.Each(func(row Row) error {
		if row.IsNull(column) {
			return nil
		}
		v, err := row.Time(column)
		if err != nil {
			return err
		}
		out = append(out, v)
		return nil
	})
	return out
}

// Float returns the value of column when the result holds exactly one valid row.
func (r *ResultSet) Float(column string) (float64, bool) {
	vs := r.Floats(column)
	if r.Len() != 1 || len(vs) != 1 {
		return 0, false
	}
	return vs[0], true
}

// Row is a single row of a ResultSet.
type Row struct {
	rs *ResultSet
	i  int
}

func (r Row) cell(column string) (any, error) {
	idx := r.rs.index(column)
	if idx < 0 {
		return nil, errors.Wrapf(ErrMalformed, "no column %q", column)
	}
	v := r.rs.Rows[r.i][idx]
	if v == nil {
		return nil, errors.Wrapf(ErrMalformed, "NULL in column %q", column)
	}
	return v, nil
}

// IsNull reports whether column holds NULL in this row.
func (r Row) IsNull(column string) bool {
	idx := r.rs.index(column)
	return idx < 0 || r.rs.Rows[r.i][idx] == nil
}

func (r Row) Float(column string) (float64, error) {
	v, err := r.cell(column)
	if err != nil {
		return 0, err
	}
	f, err := toFloat(v)
	if err != nil {
		return 0, errors.Wrapf(err, "column %q", column)
	}
	return f, nil
}

func (r Row) Int64(column string) (int64, error) {
	v, err := r.cell(column)
	if err != nil {
		return 0, err
	}
	switch n := v.(type) {
	case int64:
		return n, nil
	case int32:
		return int64(n), nil
	case int:
		return int64(n), nil
	}
	f, err := toFloat(v)
	if err != nil {
		return 0, errors.Wrapf(err, "column %q", column)
	}
	if f != math.Trunc(f) {
		return 0, errors.Wrapf(ErrMalformed, "column %q: %v is not an integer", column, f)
	}
	return int64(f), nil
}

func (r Row) String(column string) (string, error) {
	v, err := r.cell(column)
	if err != nil {
		return "", err
	}
	switch s := v.(type) {
	case string:
		return s, nil
	case []byte:
		return string(s), nil
	default:
		return fmt.Sprint(s), nil
	}
}

func (r Row) Time(column string) (time.Time, error) {
	v, err := r.cell(column)
	if err != nil {
		return time.Time{}, err
	}
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), nil
	case string:
		return parseTime(t)
	case []byte:
		return parseTime(string(t))
	default:
		return time.Time{}, errors.Wrapf(ErrMalformed, "column %q: unexpected time type %T", column, v)
	}
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSuffix(s, "Z")
	for _, f := range timeFormats {
		if t, err := time.ParseInLocation(f, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, errors.Wrapf(ErrMalformed, "unparsable time %q", s)
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case bool:
		if n {
			return 1, nil
		}
		return 0, nil
	case []byte:
		return parseDecimal(string(n))
	case string:
		return parseDecimal(n)
	default:
		return 0, errors.Wrapf(ErrMalformed, "unexpected numeric type %T", v)
	}
}

// parseDecimal parses NUMERIC values drivers return as text.
func parseDecimal(s string) (float64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		if f, ferr := strconv.ParseFloat(strings.TrimSpace(s), 64); ferr == nil {
			return f, nil
		}
		return 0, errors.Wrapf(ErrMalformed, "unparsable number %q", s)
	}
	f, _ := d.Float64()
	return f, nil
}
