// Copyright (c) The Thanos Community Authors.
// Licensed under the Apache License 2.0.

// Package ratio computes the static ratios and distribution coefficients later used to split
// totals between sites, sectors and months.
package ratio

import (
	"context"
	"math"
	"strings"

	"github.com/efficientgo/core/errors"
	"github.com/go-kit/log/level"

	"github.com/thanos-community/hdbcomp/pkg/algo"
	"github.com/thanos-community/hdbcomp/pkg/series"
	"github.com/thanos-community/hdbcomp/pkg/store"
)

const StateTribRatioComputeName = "STATE_TRIB_RATIO_COMPUTE"

const defaultCoeffYear = 1985

// ratioSumTolerance is how far the ratios of a basin may sum away from 1.
const ratioSumTolerance = 1e-7

// StateTribRatioCompute computes, for every site of the basin and objecttype of the triggering
// site, its mean share of the basin total over the source years.
type StateTribRatioCompute struct {
	zeroSites map[string]struct{}
	startYear int
	endYear   int
	coeffYear int
	round     algo.Rounder
}

func NewStateTribRatioCompute(p algo.Properties) (*StateTribRatioCompute, error) {
	list, err := p.Match("zeroSites", "", algo.SiteNames)
	if err != nil {
		return nil, err
	}
	s := &StateTribRatioCompute{zeroSites: parseSiteList(list)}
	if s.startYear, err = p.Int("src_startyr", 1986); err != nil {
		return nil, err
	}
	if s.endYear, err = p.Int("src_endyr", 1995); err != nil {
		return nil, err
	}
	if s.endYear < s.startYear {
		return nil, errors.Newf("src_endyr %d before src_startyr %d", s.endYear, s.startYear)
	}
	if s.coeffYear, err = p.Int("coeff_year", defaultCoeffYear); err != nil {
		return nil, err
	}
	if s.round, err = algo.ParseRounder(p, 11); err != nil {
		return nil, err
	}
	return s, nil
}

// parseSiteList parses a list of optionally quoted site names, e.g. 'A','B C'.
func parseSiteList(list string) map[string]struct{} {
	out := map[string]struct{}{}
	for _, n := range strings.Split(list, ",") {
		n = strings.Trim(strings.TrimSpace(n), "'")
		if n != "" && !strings.EqualFold(n, "null") {
			out[n] = struct{}{}
		}
	}
	return out
}

func (*StateTribRatioCompute) Name() string      { return StateTribRatioComputeName }
func (*StateTribRatioCompute) Inputs() []string  { return []string{"input"} }
func (*StateTribRatioCompute) Outputs() []string { return []string{"ratio"} }

type peer struct {
	site     int64
	name     string
	sdi      int64
	ratioSDI int64
}

func (s *StateTribRatioCompute) Begin(_ context.Context, b *algo.Batch) (algo.Run, error) {
	in := b.Input("input").ID()
	if in.Interval != series.Year {
		level.Warn(b.Logger).Log("msg", "state trib ratios are computed from yearly data", "interval", in.Interval)
	}
	return algo.EndFunc(func(ctx context.Context) error {
		peers, err := s.peers(ctx, b)
		if err != nil {
			return err
		}

		years := s.endYear - s.startYear + 1
		values := make([]map[int]float64, len(peers))
		totals := make([]float64, years)
		for i, p := range peers {
			values[i] = map[int]float64{}
			if _, ok := s.zeroSites[p.name]; ok {
				continue
			}
			smps, err := algo.Values(ctx, b.Store, p.sdi, series.Year, algo.YearStart(s.startYear), algo.YearStart(s.endYear+1))
			if err != nil {
				return err
			}
			for _, smp := range smps {
				y := smp.Time.Year() - s.startYear
				values[i][y] = smp.Value
				totals[y] += smp.Value
			}
		}

		ratioID := b.Output("ratio").ID()
		at := algo.YearStart(s.coeffYear)
		var sum float64
		for i, p := range peers {
			if p.ratioSDI == 0 {
				continue
			}
			var r float64
			for y := 0; y < years; y++ {
				if totals[y] != 0 {
					r += values[i][y] / totals[y]
				}
			}
			r = s.round.Round(r / float64(years))
			sum += r

			id, err := b.Store.LookupTSID(ctx, p.ratioSDI, ratioID.Interval, ratioID.TableSelector)
			if err != nil {
				return errors.Wrapf(err, "ratio output of site %d", p.site)
			}
			b.Write(b.NewOutput(id), at, r)
		}
		if math.Abs(sum-1) > ratioSumTolerance {
			level.Warn(b.Logger).Log("msg", "basin ratios do not sum to 1", "sum", sum, "sites", len(peers))
		}
		return nil
	}), nil
}

// peers returns the sites sharing basin, objecttype and datatype with the input site, with the
// site datatype of the ratio output's datatype when they have one.
func (s *StateTribRatioCompute) peers(ctx context.Context, b *algo.Batch) ([]peer, error) {
	rs, err := b.Store.Query(ctx, `SELECT p.site_id AS site_id, p.site_name AS site_name,
			peersd.site_datatype_id AS sdi, ratiosd.site_datatype_id AS ratio_sdi
		FROM hdb_site_datatype trigsd
		JOIN hdb_site trig ON trig.site_id = trigsd.site_id
		JOIN hdb_site p ON p.basin_id = trig.basin_id AND p.objecttype_id = trig.objecttype_id
		JOIN hdb_site_datatype peersd ON peersd.site_id = p.site_id AND peersd.datatype_id = trigsd.datatype_id
		JOIN hdb_site_datatype ratiotype ON ratiotype.site_datatype_id = ?
		LEFT JOIN hdb_site_datatype ratiosd ON ratiosd.site_id = p.site_id AND ratiosd.datatype_id = ratiotype.datatype_id
		WHERE trigsd.site_datatype_id = ?
		ORDER BY p.site_id`, b.Output("ratio").ID().SDI, b.Input("input").ID().SDI)
	if err != nil {
		return nil, errors.Wrap(err, "basin peers")
	}
	var out []peer
	err = rs.Each(func(r store.Row) (err error) {
		var p peer
		if p.site, err = r.Int64("site_id"); err != nil {
			return err
		}
		if p.name, err = r.String("site_name"); err != nil {
			return err
		}
		if p.sdi, err = r.Int64("sdi"); err != nil {
			return err
		}
		if !r.IsNull("ratio_sdi") {
			if p.ratioSDI, err = r.Int64("ratio_sdi"); err != nil {
				return err
			}
		}
		out = append(out, p)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, errors.Newf("no basin peers for sdi %d", b.Input("input").ID().SDI)
	}
	return out, nil
}
