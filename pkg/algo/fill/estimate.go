// Copyright (c) The Thanos Community Authors.
// Licensed under the Apache License 2.0.

package fill

import (
	"context"
	"sort"
	"time"

	"github.com/efficientgo/core/errors"
	"github.com/go-kit/log/level"

	"github.com/thanos-community/hdbcomp/pkg/algo"
	"github.com/thanos-community/hdbcomp/pkg/series"
)

const EstimateFromSourceName = "ESTIMATE_FROM_SOURCE"

// trailingYears is the number of source years averaged by an estimate.
const trailingYears = 5

// EstimateFromSource estimates every month of the batch window without source data with the mean
// of the same calendar month over the last years with data. Months after the end date of the site
// are estimated as 0.
type EstimateFromSource struct {
	estimation string
	endDate    string
	round      algo.Rounder
}

func NewEstimateFromSource(p algo.Properties) (*EstimateFromSource, error) {
	e := &EstimateFromSource{}
	var err error
	if e.estimation, err = p.Match("estimation_process", algo.AggDisaggProcess, algo.Word); err != nil {
		return nil, err
	}
	if e.endDate, err = p.Match("endDateAttribute", "", algo.WordList); err != nil {
		return nil, err
	}
	if e.round, err = algo.ParseRounder(p, 7); err != nil {
		return nil, err
	}
	return e, nil
}

func (*EstimateFromSource) Name() string      { return EstimateFromSourceName }
func (*EstimateFromSource) Inputs() []string  { return []string{"input"} }
func (*EstimateFromSource) Outputs() []string { return []string{"output"} }

// siteEndDate returns the effective end of the site for attr.
func siteEndDate(ctx context.Context, st algo.Store, site int64, attr string) (time.Time, error) {
	rs, err := st.Query(ctx, `SELECT c.effective_end_date_time AS end_date FROM ref_site_coef c
		JOIN hdb_attr a ON a.attr_id = c.attr_id
		WHERE c.site_id = ? AND a.attr_name = ?`, site, attr)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "end date of site %d", site)
	}
	ends := rs.Times("end_date")
	if rs.Len() != 1 || len(ends) != 1 {
		return time.Time{}, errors.Newf("expected one %q end date for site %d, got %d", attr, site, rs.Len())
	}
	return ends[0], nil
}

// trailingMeans returns, per calendar month and source year, the mean of that month over the
// source year and up to four earlier years with data.
func trailingMeans(smps []series.Sample) map[time.Month]map[int]float64 {
	byMonth := map[time.Month][]series.Sample{}
	for _, s := range smps {
		byMonth[s.Time.Month()] = append(byMonth[s.Time.Month()], s)
	}
	out := map[time.Month]map[int]float64{}
	for m, ss := range byMonth {
		sort.Slice(ss, func(i, j int) bool { return ss[i].Time.Before(ss[j].Time) })
		out[m] = map[int]float64{}
		for i := range ss {
			lo := i - trailingYears + 1
			if lo < 0 {
				lo = 0
			}
			var sum float64
			for _, s := range ss[lo : i+1] {
				sum += s.Value
			}
			out[m][ss[i].Time.Year()] = sum / float64(i+1-lo)
		}
	}
	return out
}

// latest returns the mean of the latest source year not after year.
func latest(means map[int]float64, year int) (float64, bool) {
	best, found := 0, false
	for y := range means {
		if y <= year && (!found || y > best) {
			best, found = y, true
		}
	}
	return means[best], found
}

func (e *EstimateFromSource) Begin(ctx context.Context, b *algo.Batch) (algo.Run, error) {
	in := b.Input("input").ID()
	if in.Interval != series.Month {
		level.Warn(b.Logger).Log("msg", "estimates are computed from monthly data", "interval", in.Interval)
	}
	var end time.Time
	if e.endDate != "" {
		var err error
		if end, err = siteEndDate(ctx, b.Store, in.SiteID, e.endDate); err != nil {
			return nil, err
		}
	}

	return algo.EndFunc(func(ctx context.Context) error {
		smps, err := algo.History(ctx, b.Store, in.SDI, series.Month, algo.FillMissingProcess)
		if err != nil {
			return err
		}
		have := map[int64]struct{}{}
		for _, s := range smps {
			have[s.Time.Unix()] = struct{}{}
		}
		means := trailingMeans(smps)

		out := b.Output("output").Series
		until := b.Until
		if now := b.Now(); now.Before(until) {
			until = series.Month.Add(series.Month.Truncate(now), 1)
		}
		var n int
		for _, t := range series.Month.Steps(b.From, until) {
			if _, ok := have[t.Unix()]; ok {
				continue
			}
			v, ok := latest(means[t.Month()], t.Year())
			if !ok {
				continue
			}
			if !end.IsZero() && t.After(end) {
				v = 0
			}
			b.Write(out, t, e.round.Round(v))
			n++
		}
		if n == 0 {
			level.Warn(b.Logger).Log("msg", "no values to estimate", "sdi", in.SDI)
		}
		return nil
	}), nil
}
