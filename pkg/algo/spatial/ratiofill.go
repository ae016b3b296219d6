// Copyright (c) The Thanos Community Authors.
// Licensed under the Apache License 2.0.

package spatial

import (
	"context"
	"strconv"

	"github.com/efficientgo/core/errors"

	"github.com/thanos-community/hdbcomp/pkg/algo"
	"github.com/thanos-community/hdbcomp/pkg/series"
	"github.com/thanos-community/hdbcomp/pkg/store"
)

const RatioFillName = "RATIO_FILL"

// RatioFill distributes a basin total to the sites of the basin using each site's ratio of the
// coefficient year.
type RatioFill struct {
	coeffYear int
	round     algo.Rounder
}

func NewRatioFill(p algo.Properties) (*RatioFill, error) {
	y, err := p.Int("coeff_year", 1985)
	if err != nil {
		return nil, err
	}
	r, err := algo.ParseRounder(p, 7)
	if err != nil {
		return nil, err
	}
	return &RatioFill{coeffYear: y, round: r}, nil
}

func (*RatioFill) Name() string      { return RatioFillName }
func (*RatioFill) Inputs() []string  { return []string{"total", "ratio"} }
func (*RatioFill) Outputs() []string { return nil }

type ratioOutput struct {
	ts    *series.TimeSeries
	ratio float64
}

func (f *RatioFill) Begin(ctx context.Context, b *algo.Batch) (algo.Run, error) {
	total, ratio := b.Input("total").ID(), b.Input("ratio").ID()

	rs, err := b.Store.Query(ctx, `SELECT outsd.site_datatype_id AS sdi, r.value AS ratio
		FROM hdb_site_datatype insd
		JOIN hdb_site bs ON bs.basin_id = insd.site_id
		JOIN hdb_site_datatype outsd ON outsd.site_id = bs.site_id AND outsd.datatype_id = insd.datatype_id
		JOIN hdb_site_datatype ratiosd ON ratiosd.site_id = bs.site_id AND ratiosd.datatype_id = ?
		JOIN r_year r ON r.site_datatype_id = ratiosd.site_datatype_id
		WHERE insd.site_datatype_id = ? AND r.start_date_time >= ? AND r.start_date_time < ?
		ORDER BY bs.site_id`, ratio.DatatypeID, total.SDI, algo.YearStart(f.coeffYear), algo.YearStart(f.coeffYear+1))
	if err != nil {
		return nil, errors.Wrap(err, "find basin ratios")
	}
	if rs.Len() == 0 {
		return nil, errors.Newf("no ratio outputs for basin %s in %d", total.SiteName, f.coeffYear)
	}

	var outs []ratioOutput
	err = rs.Each(func(r store.Row) error {
		sdi, err := r.Int64("sdi")
		if err != nil {
			return err
		}
		v, err := r.Float("ratio")
		if err != nil {
			return err
		}
		id, err := b.Store.LookupTSID(ctx, sdi, ratio.Interval, ratio.TableSelector)
		if err != nil {
			return errors.Wrapf(err, "output sdi %s", strconv.FormatInt(sdi, 10))
		}
		outs = append(outs, ratioOutput{ts: b.NewOutput(id), ratio: v})
		return nil
	})
	if err != nil {
		return nil, err
	}

	return algo.SliceFunc(func(_ context.Context, s algo.Slice) error {
		if !s.Triggered("total") {
			return nil
		}
		v, ok := s.Value("total")
		if !ok {
			return errors.Newf("no total at %v", s.Time)
		}
		for _, o := range outs {
			b.Write(o.ts, series.Day.Truncate(s.Time), f.round.Round(v*o.ratio))
		}
		return nil
	}), nil
}
