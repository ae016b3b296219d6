// Copyright (c) The Thanos Community Authors.
// Licensed under the Apache License 2.0.

package store

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/efficientgo/core/errors"
	"github.com/efficientgo/core/testutil"
	"github.com/go-kit/log"
)

var errBoom = errors.New("boom")

func TestResultSet_Values(t *testing.T) {
	for _, tcase := range []struct {
		name string
		rows [][]any
		exp  []any
	}{
		{name: "no rows", rows: nil, exp: []any{}},
		{name: "one row", rows: [][]any{{int64(5)}}, exp: []any{int64(5)}},
		{name: "many rows", rows: [][]any{{int64(5)}, {int64(6)}, {int64(7)}}, exp: []any{int64(5), int64(6), int64(7)}},
	} {
		t.Run(tcase.name, func(t *testing.T) {
			rs := NewResultSet(log.NewNopLogger(), []string{"SITE_ID"}, tcase.rows)
			testutil.Equals(t, tcase.exp, rs.Values("site_id"))
			testutil.Equals(t, []any{}, rs.Values("unknown"))
		})
	}
}

func TestResultSet_NullIsNotFound(t *testing.T) {
	var buf bytes.Buffer
	// SUM or MIN over no rows.
	rs := NewResultSet(log.NewLogfmtLogger(&buf), []string{"value", "t"}, [][]any{{nil, nil}})

	testutil.Equals(t, []float64{}, rs.Floats("value"))
	testutil.Equals(t, []time.Time{}, rs.Times("t"))
	_, ok := rs.Float("value")
	testutil.Assert(t, !ok, "expected no value for NULL")
	testutil.Equals(t, "", buf.String())

	rs = NewResultSet(log.NewLogfmtLogger(&buf), []string{"value"}, [][]any{{"abc"}})
	testutil.Equals(t, []float64{}, rs.Floats("value"))
	testutil.Assert(t, strings.Contains(buf.String(), "skipping malformed row"), buf.String())
}

func TestResultSet_MalformedRowsAreSkipped(t *testing.T) {
	rs := NewResultSet(log.NewNopLogger(), []string{"value", "t"}, [][]any{
		{1.5, "2020-01-01 00:00:00+00:00"},
		{nil, "2020-02-01 00:00:00+00:00"},
		{"not a number", "garbage"},
		{[]byte("2.25"), time.Date(2020, time.April, 1, 0, 0, 0, 0, time.UTC)},
		{int64(3), nil},
	})

	testutil.Equals(t, []float64{1.5, 2.25, 3}, rs.Floats("value"))
	testutil.Equals(t, []time.Time{
		time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2020, time.February, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2020, time.April, 1, 0, 0, 0, 0, time.UTC),
	}, rs.Times("t"))

	_, ok := rs.Float("value")
	testutil.Assert(t, !ok, "expected no single value for many rows")

	one := NewResultSet(nil, []string{"coef"}, [][]any{{"0.125"}})
	v, ok := one.Float("coef")
	testutil.Assert(t, ok)
	testutil.Equals(t, 0.125, v)
}

func TestResultSet_EachStopsOnOtherErrors(t *testing.T) {
	rs := NewResultSet(nil, []string{"id"}, [][]any{{int64(1)}, {int64(2)}, {int64(3)}})

	var seen []int64
	err := rs.Each(func(r Row) error {
		id, err := r.Int64("id")
		if err != nil {
			return err
		}
		if id == 2 {
			return errBoom
		}
		seen = append(seen, id)
		return nil
	})
	testutil.NotOk(t, err)
	testutil.Equals(t, []int64{1}, seen)

	testutil.Equals(t, []int64{1, 2, 3}, rs.Int64s("id"))
}

func TestRebind(t *testing.T) {
	testutil.Equals(t,
		"SELECT '?', site_id FROM hdb_site WHERE site_id = $1 AND site_name IN ($2, $3)",
		rebindDollar("SELECT '?', site_id FROM hdb_site WHERE site_id = ? AND site_name IN ("+placeholders(2)+")"),
	)

	d := NewDB(nil, nil, "SQLITE", 0, nil)
	testutil.Equals(t, "SELECT ?", d.rebind("SELECT ?"))
	testutil.Equals(t, "", placeholders(0))
}
