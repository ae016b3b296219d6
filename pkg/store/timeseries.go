// Copyright (c) The Thanos Community Authors.
// Licensed under the Apache License 2.0.

package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/efficientgo/core/errcapture"
	"github.com/efficientgo/core/errors"
	"github.com/go-kit/log/level"

	"github.com/thanos-community/hdbcomp/pkg/series"
)

// Compile-time check if DB implements series.Reader interface.
var _ series.Reader = &DB{}

// ErrNotFound is returned when a time series identifier does not exist.
var ErrNotFound = errors.New("not found")

const tsidSelect = `SELECT id.ts_id, id.site_datatype_id, sd.site_id, sd.datatype_id, s.site_name, id.interval, id.table_selector
	FROM cp_ts_id id
	JOIN hdb_site_datatype sd ON sd.site_datatype_id = id.site_datatype_id
	JOIN hdb_site s ON s.site_id = sd.site_id`

func scanTSIDs(rs *ResultSet) ([]series.TSID, error) {
	var out []series.TSID
	err := rs.Each(func(r Row) error {
		var (
			id  series.TSID
			err error
		)
		if id.Key, err = r.Int64("ts_id"); err != nil {
			return err
		}
		if id.SDI, err = r.Int64("site_datatype_id"); err != nil {
			return err
		}
		if id.SiteID, err = r.Int64("site_id"); err != nil {
			return err
		}
		if id.DatatypeID, err = r.Int64("datatype_id"); err != nil {
			return err
		}
		if id.SiteName, err = r.String("site_name"); err != nil {
			return err
		}
		iv, err := r.String("interval")
		if err != nil {
			return err
		}
		if id.Interval, err = series.ParseInterval(iv); err != nil {
			return errors.Wrap(ErrMalformed, err.Error())
		}
		if id.TableSelector, err = r.String("table_selector"); err != nil {
			return err
		}
		out = append(out, id)
		return nil
	})
	return out, err
}

// TimeSeriesIdentifier resolves a cp_ts_id key.
func (d *DB) TimeSeriesIdentifier(ctx context.Context, key int64) (series.TSID, error) {
	if d.cache != nil {
		if id, ok := d.cache.Get(key); ok {
			return id, nil
		}
	}
	rs, err := d.Query(ctx, tsidSelect+` WHERE id.ts_id = ?`, key)
	if err != nil {
		return series.TSID{}, errors.Wrapf(err, "lookup ts_id %d", key)
	}
	ids, err := scanTSIDs(rs)
	if err != nil {
		return series.TSID{}, err
	}
	if len(ids) != 1 {
		return series.TSID{}, errors.Wrapf(ErrNotFound, "ts_id %d", key)
	}
	if d.cache != nil {
		d.cache.Put(ids[0])
	}
	return ids[0], nil
}

// LookupTSID returns the identifier of sdi at the given interval and table selector, creating the
// cp_ts_id entry when it does not exist yet.
func (d *DB) LookupTSID(ctx context.Context, sdi int64, interval series.Interval, selector string) (series.TSID, error) {
	if _, err := interval.Table(selector); err != nil {
		return series.TSID{}, err
	}
	find := func() ([]series.TSID, error) {
		rs, err := d.Query(ctx, tsidSelect+` WHERE id.site_datatype_id = ? AND id.interval = ? AND id.table_selector = ?`,
			sdi, string(interval), selector)
		if err != nil {
			return nil, errors.Wrapf(err, "lookup sdi %d", sdi)
		}
		return scanTSIDs(rs)
	}
	ids, err := find()
	if err != nil {
		return series.TSID{}, err
	}
	if len(ids) > 0 {
		return ids[0], nil
	}

	rs, err := d.Query(ctx, `SELECT site_id FROM hdb_site_datatype WHERE site_datatype_id = ?`, sdi)
	if err != nil {
		return series.TSID{}, errors.Wrapf(err, "lookup sdi %d", sdi)
	}
	if rs.Len() != 1 {
		return series.TSID{}, errors.Wrapf(ErrNotFound, "site_datatype_id %d", sdi)
	}
	if err := d.Exec(ctx, `INSERT INTO cp_ts_id (ts_id, site_datatype_id, interval, table_selector)
		SELECT COALESCE(MAX(ts_id), 0) + 1, CAST(? AS BIGINT), ?, ? FROM cp_ts_id`, sdi, string(interval), selector); err != nil {
		return series.TSID{}, errors.Wrapf(err, "create ts_id for sdi %d", sdi)
	}
	ids, err = find()
	if err != nil {
		return series.TSID{}, err
	}
	if len(ids) == 0 {
		return series.TSID{}, errors.Wrapf(ErrNotFound, "ts_id for sdi %d after insert", sdi)
	}
	level.Debug(d.logger).Log("msg", "created time series identifier", "tsid", ids[0].String(), "ts_id", ids[0].Key)
	return ids[0], nil
}

// Read loads the samples of p.ID in [p.MinTime, p.MaxTime).
func (d *DB) Read(ctx context.Context, p series.Params) (*series.TimeSeries, error) {
	ts := series.New(p.ID)
	if err := d.FillTimeSeries(ctx, ts, p.MinTime, p.MaxTime); err != nil {
		return nil, err
	}
	return ts, nil
}

// FillTimeSeries adds the stored samples in [from, until) to ts.
func (d *DB) FillTimeSeries(ctx context.Context, ts *series.TimeSeries, from, until time.Time) error {
	tbl, err := ts.ID.Interval.Table(ts.ID.TableSelector)
	if err != nil {
		return err
	}
	rs, err := d.Query(ctx, fmt.Sprintf(`SELECT start_date_time, value, validation, derivation_flags FROM %s
		WHERE site_datatype_id = ? AND start_date_time >= ? AND start_date_time < ?
		ORDER BY start_date_time`, tbl), ts.ID.SDI, from.UTC(), until.UTC())
	if err != nil {
		return errors.Wrapf(err, "fill %s", ts.ID)
	}
	return addSamples(rs, ts)
}

// FillTimeSeriesAt adds the stored samples at the given times to ts.
func (d *DB) FillTimeSeriesAt(ctx context.Context, ts *series.TimeSeries, times []time.Time) error {
	if len(times) == 0 {
		return nil
	}
	tbl, err := ts.ID.Interval.Table(ts.ID.TableSelector)
	if err != nil {
		return err
	}
	args := make([]any, 0, len(times)+1)
	args = append(args, ts.ID.SDI)
	for _, t := range times {
		args = append(args, t.UTC())
	}
	rs, err := d.Query(ctx, fmt.Sprintf(`SELECT start_date_time, value, validation, derivation_flags FROM %s
		WHERE site_datatype_id = ? AND start_date_time IN (%s)`, tbl, placeholders(len(times))), args...)
	if err != nil {
		return errors.Wrapf(err, "fill %s", ts.ID)
	}
	return addSamples(rs, ts)
}

func addSamples(rs *ResultSet, ts *series.TimeSeries) error {
	return rs.Each(func(r Row) error {
		t, err := r.Time("start_date_time")
		if err != nil {
			return err
		}
		v, err := r.Float("value")
		if err != nil {
			return err
		}
		s := series.Sample{Time: t, Value: v}
		if !r.IsNull("validation") {
			val, _ := r.String("validation")
			if val = strings.TrimSpace(val); len(val) > 0 {
				s.Validation = val[0]
			}
		}
		if !r.IsNull("derivation_flags") {
			s.Derivation, _ = r.String("derivation_flags")
		}
		ts.Add(s)
		return nil
	})
}

// SaveResult counts the samples persisted by SaveTimeSeries.
type SaveResult struct {
	Written int
	Deleted int
}

// SaveTimeSeries writes the ToWrite samples of ts and deletes its ToDelete samples in one transaction.
func (d *DB) SaveTimeSeries(ctx context.Context, ts *series.TimeSeries) (res SaveResult, err error) {
	tbl, err := ts.ID.Interval.Table(ts.ID.TableSelector)
	if err != nil {
		return res, err
	}
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return res, errors.Wrap(err, "begin")
	}
	defer func() {
		if err != nil {
			errcapture.Do(&err, tx.Rollback, "rollback")
			return
		}
		err = errors.Wrap(tx.Commit(), "commit")
	}()

	upsert := d.rebind(fmt.Sprintf(`INSERT INTO %s
		(site_datatype_id, start_date_time, value, validation, derivation_flags, computation_id, loading_application_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (site_datatype_id, start_date_time) DO UPDATE SET
		value = excluded.value, validation = excluded.validation, derivation_flags = excluded.derivation_flags,
		computation_id = excluded.computation_id, loading_application_id = excluded.loading_application_id`, tbl))
	del := d.rebind(fmt.Sprintf(`DELETE FROM %s WHERE site_datatype_id = ? AND start_date_time = ?`, tbl))

	for _, s := range ts.Samples() {
		switch {
		case s.Flags.Has(series.ToDelete):
			if _, err := tx.ExecContext(ctx, del, ts.ID.SDI, s.Time); err != nil {
				return res, errors.Wrapf(err, "delete %s at %s", ts.ID, s.Time)
			}
			res.Deleted++
		case s.Flags.Has(series.ToWrite):
			if _, err := tx.ExecContext(ctx, upsert, ts.ID.SDI, s.Time, s.Value,
				nullString(validation(s.Validation)), nullString(s.Derivation),
				nullInt(ts.ComputationID), nullInt(ts.LoadingApplicationID)); err != nil {
				return res, errors.Wrapf(err, "write %s at %s", ts.ID, s.Time)
			}
			res.Written++
		}
	}
	return res, nil
}

func validation(v byte) string {
	if v == 0 {
		return ""
	}
	return string(v)
}

func nullString(s string) sql.NullString { return sql.NullString{String: s, Valid: s != ""} }

func nullInt(i int64) sql.NullInt64 { return sql.NullInt64{Int64: i, Valid: i != 0} }

// LoadingApplicationIDs resolves loading application names. Unknown names are absent from the result.
func (d *DB) LoadingApplicationIDs(ctx context.Context, names ...string) (map[string]int64, error) {
	out := map[string]int64{}
	if len(names) == 0 {
		return out, nil
	}
	args := make([]any, 0, len(names))
	for _, n := range names {
		args = append(args, n)
	}
	rs, err := d.Query(ctx, fmt.Sprintf(`SELECT loading_application_id AS id, loading_application_name AS name
		FROM hdb_loading_application WHERE loading_application_name IN (%s)`, placeholders(len(names))), args...)
	if err != nil {
		return nil, errors.Wrap(err, "lookup loading applications")
	}
	err = rs.Each(func(r Row) error {
		id, err := r.Int64("id")
		if err != nil {
			return err
		}
		name, err := r.String("name")
		if err != nil {
			return err
		}
		out[name] = id
		return nil
	})
	return out, err
}
