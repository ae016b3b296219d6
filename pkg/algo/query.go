// Copyright (c) The Thanos Community Authors.
// Licensed under the Apache License 2.0.

package algo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/efficientgo/core/errors"

	"github.com/thanos-community/hdbcomp/pkg/series"
	"github.com/thanos-community/hdbcomp/pkg/store"
)

// Loading applications excluded by the estimation and gap filling queries.
const (
	DefaultEstimationProcess = "CU_estimation_process"
	AggDisaggProcess         = "CU_Agg_Disagg"
	FillMissingProcess       = "CU_FillMissing"
)

// NotLoadedBy returns a predicate on the loading_application_id column of alias that excludes rows
// written by the loading applications ids, and its arguments. Rows without a loading application
// are kept.
func NotLoadedBy(alias string, ids ...int64) (string, []any) {
	col := "loading_application_id"
	if alias != "" {
		col = alias + "." + col
	}
	if len(ids) == 0 {
		return "1 = 1", nil
	}
	args := make([]any, 0, len(ids))
	for _, id := range ids {
		args = append(args, id)
	}
	return fmt.Sprintf("(%[1]s IS NULL OR %[1]s NOT IN (%[2]s))", col,
		strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")), args
}

// loadingApplications resolves the ids of the named loading applications. Unknown names exclude nothing.
func loadingApplications(ctx context.Context, st Store, names ...string) ([]int64, error) {
	if len(names) == 0 {
		return nil, nil
	}
	byName, err := st.LoadingApplicationIDs(ctx, names...)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(byName))
	for _, n := range names {
		if id, ok := byName[n]; ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// Values loads the real samples of sdi at interval in [from, until), skipping rows loaded by the
// excluded loading applications.
func Values(ctx context.Context, st Store, sdi int64, interval series.Interval, from, until time.Time, exclude ...string) ([]series.Sample, error) {
	tbl, err := interval.Table(series.RealTable)
	if err != nil {
		return nil, err
	}
	ids, err := loadingApplications(ctx, st, exclude...)
	if err != nil {
		return nil, errors.Wrapf(err, "values of sdi %d", sdi)
	}
	pred, args := NotLoadedBy("v", ids...)
	rs, err := st.Query(ctx, fmt.Sprintf(`SELECT v.start_date_time, v.value FROM %s v
		WHERE v.site_datatype_id = ? AND v.start_date_time >= ? AND v.start_date_time < ? AND %s
		ORDER BY v.start_date_time`, tbl, pred), append([]any{sdi, from.UTC(), until.UTC()}, args...)...)
	if err != nil {
		return nil, errors.Wrapf(err, "values of sdi %d", sdi)
	}
	return samples(rs)
}

func samples(rs *store.ResultSet) ([]series.Sample, error) {
	var out []series.Sample
	err := rs.Each(func(r store.Row) error {
		t, err := r.Time("start_date_time")
		if err != nil {
			return err
		}
		v, err := r.Float("value")
		if err != nil {
			return err
		}
		out = append(out, series.Sample{Time: t, Value: v})
		return nil
	})
	return out, err
}

// SiteCoefficients returns the ref_site_coef values of site for the named attribute ordered by index.
func SiteCoefficients(ctx context.Context, st Store, site int64, attr string) ([]float64, error) {
	rs, err := st.Query(ctx, `SELECT c.coef FROM ref_site_coef c
		JOIN hdb_attr a ON a.attr_id = c.attr_id
		WHERE c.site_id = ? AND a.attr_name = ?
		ORDER BY c.coef_idx`, site, attr)
	if err != nil {
		return nil, errors.Wrapf(err, "coefficients %q of site %d", attr, site)
	}
	return rs.Floats("coef"), nil
}

// RequireMonthly checks that exactly one coefficient per month was found.
func RequireMonthly(coefs []float64, what string) error {
	if len(coefs) != 12 {
		return errors.Newf("expected 12 monthly %s coefficients, got %d", what, len(coefs))
	}
	return nil
}

// YearStart returns January 1st of year.
func YearStart(year int) time.Time {
	return time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
}

// MonthStart returns the first day of month in year.
func MonthStart(year int, month time.Month) time.Time {
	return time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
}

// History loads every real sample of sdi at interval, skipping rows loaded by the excluded loading
// applications.
func History(ctx context.Context, st Store, sdi int64, interval series.Interval, exclude ...string) ([]series.Sample, error) {
	return Values(ctx, st, sdi, interval, YearStart(1), YearStart(9999), exclude...)
}
