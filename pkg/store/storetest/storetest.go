// Copyright (c) The Thanos Community Authors.
// Licensed under the Apache License 2.0.

// Package storetest provides an in-memory HDB store and seeding helpers for tests.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/efficientgo/core/testutil"
	"github.com/go-kit/log"

	"github.com/thanos-community/hdbcomp/pkg/series"
	"github.com/thanos-community/hdbcomp/pkg/store"
)

// New returns an empty in-memory SQLite store with the HDB schema created.
func New(t testing.TB) *store.DB {
	t.Helper()

	db, err := store.Open(context.Background(), log.NewNopLogger(), series.Config{Type: series.SQLITE, DSN: ":memory:"})
	testutil.Ok(t, err)
	t.Cleanup(func() { testutil.Ok(t, db.Close()) })
	testutil.Ok(t, db.CreateSchema(context.Background()))
	return db
}

func Exec(t testing.TB, db *store.DB, q string, args ...any) {
	t.Helper()
	testutil.Ok(t, db.Exec(context.Background(), q, args...))
}

func nullable(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}

// Site is a row of hdb_site. Zero ids are stored as NULL.
type Site struct {
	ID         int64
	Name       string
	ObjectType int64
	Parent     int64
	Basin      int64
	State      int64
	HUC        string
}

func AddSite(t testing.TB, db *store.DB, s Site) {
	t.Helper()
	var huc any
	if s.HUC != "" {
		huc = s.HUC
	}
	Exec(t, db, `INSERT INTO hdb_site (site_id, site_name, objecttype_id, parent_site_id, basin_id, state_id, hydrologic_unit)
		VALUES (?, ?, ?, ?, ?, ?, ?)`, s.ID, s.Name, s.ObjectType, nullable(s.Parent), nullable(s.Basin), nullable(s.State), huc)
}

func AddObjectType(t testing.TB, db *store.DB, id int64, name string) {
	t.Helper()
	Exec(t, db, `INSERT INTO hdb_objecttype (objecttype_id, objecttype_name, objecttype_tag) VALUES (?, ?, ?)`, id, name, name)
}

func AddDatatype(t testing.TB, db *store.DB, id int64, name string) {
	t.Helper()
	Exec(t, db, `INSERT INTO hdb_datatype (datatype_id, datatype_name) VALUES (?, ?)`, id, name)
}

func AddSiteDatatype(t testing.TB, db *store.DB, sdi, site, datatype int64) {
	t.Helper()
	Exec(t, db, `INSERT INTO hdb_site_datatype (site_datatype_id, site_id, datatype_id) VALUES (?, ?, ?)`, sdi, site, datatype)
}

func AddAttr(t testing.TB, db *store.DB, id int64, name, valueType string) {
	t.Helper()
	Exec(t, db, `INSERT INTO hdb_attr (attr_id, attr_name, attr_value_type) VALUES (?, ?, ?)`, id, name, valueType)
}

// AddSiteCoefs stores coefs for site and attr with indexes starting at 1.
func AddSiteCoefs(t testing.TB, db *store.DB, site, attr int64, coefs ...float64) {
	t.Helper()
	for i, c := range coefs {
		Exec(t, db, `INSERT INTO ref_site_coef (site_id, attr_id, coef_idx, coef) VALUES (?, ?, ?, ?)`, site, attr, i+1, c)
	}
}

func AddLoadingApplication(t testing.TB, db *store.DB, id int64, name string) {
	t.Helper()
	Exec(t, db, `INSERT INTO hdb_loading_application (loading_application_id, loading_application_name) VALUES (?, ?)`, id, name)
}

// AddValue stores a real sample. A zero loading application is stored as NULL.
func AddValue(t testing.TB, db *store.DB, interval series.Interval, sdi int64, at time.Time, v float64, loadingApp int64) {
	t.Helper()
	tbl, err := interval.Table(series.RealTable)
	testutil.Ok(t, err)
	Exec(t, db, `INSERT INTO `+tbl+` (site_datatype_id, start_date_time, value, loading_application_id) VALUES (?, ?, ?, ?)`,
		sdi, at.UTC(), v, nullable(loadingApp))
}

// Samples returns every stored real sample of sdi at interval.
func Samples(t testing.TB, db *store.DB, interval series.Interval, sdi int64) []series.Sample {
	t.Helper()
	ctx := context.Background()
	id, err := db.LookupTSID(ctx, sdi, interval, series.RealTable)
	testutil.Ok(t, err)
	ts, err := db.Read(ctx, series.Params{
		ID:      id,
		MinTime: time.Date(1800, time.January, 1, 0, 0, 0, 0, time.UTC),
		MaxTime: time.Date(2200, time.January, 1, 0, 0, 0, 0, time.UTC),
	})
	testutil.Ok(t, err)
	return ts.Samples()
}

// Values returns the stored values of sdi at interval keyed by time.
func Values(t testing.TB, db *store.DB, interval series.Interval, sdi int64) map[time.Time]float64 {
	t.Helper()
	out := map[time.Time]float64{}
	for _, s := range Samples(t, db, interval, sdi) {
		out[s.Time] = s.Value
	}
	return out
}

func Date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
