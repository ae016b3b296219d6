// Copyright (c) The Thanos Community Authors.
// Licensed under the Apache License 2.0.

package fill

import (
	"context"
	"fmt"
	"time"

	"github.com/efficientgo/core/errors"
	"github.com/go-kit/log/level"

	"github.com/thanos-community/hdbcomp/pkg/algo"
	"github.com/thanos-community/hdbcomp/pkg/series"
	"github.com/thanos-community/hdbcomp/pkg/store"
)

const EstimateCUFromPopulationName = "ESTIMATE_CU_FROM_POPULATION"

// EstimateCUFromPopulation scales an estimated municipal and industrial consumptive use by the
// ratio of the current population to the population of the estimate.
//
// Slices with a current population are computed at the state tributary level and written to every
// state HUC of the tributary. Other slices are computed for the state HUC of the estimate input,
// with the populations of its parent tributary.
type EstimateCUFromPopulation struct {
	round algo.Rounder
}

func NewEstimateCUFromPopulation(p algo.Properties) (*EstimateCUFromPopulation, error) {
	r, err := algo.ParseRounder(p, 7)
	if err != nil {
		return nil, err
	}
	return &EstimateCUFromPopulation{round: r}, nil
}

func (*EstimateCUFromPopulation) Name() string { return EstimateCUFromPopulationName }
func (*EstimateCUFromPopulation) Inputs() []string {
	return []string{"est_mi_cu", "est_pop", "cur_pop"}
}
func (*EstimateCUFromPopulation) Outputs() []string { return []string{"cur_mi_cu"} }

type populationRun struct {
	e      *EstimateCUFromPopulation
	b      *algo.Batch
	curPop *series.TimeSeries
	// Datatypes of the parameters.
	estCU, estPop, curPopDT, curCU int64
}

func (e *EstimateCUFromPopulation) Begin(ctx context.Context, b *algo.Batch) (algo.Run, error) {
	r := &populationRun{
		e:        e,
		b:        b,
		curPop:   series.New(b.Input("cur_pop").ID()),
		estCU:    b.Input("est_mi_cu").ID().DatatypeID,
		estPop:   b.Input("est_pop").ID().DatatypeID,
		curPopDT: b.Input("cur_pop").ID().DatatypeID,
		curCU:    b.Output("cur_mi_cu").ID().DatatypeID,
	}
	for _, role := range []string{"est_pop", "est_mi_cu"} {
		times, err := r.untilNextEstimate(ctx, b.Input(role))
		if err != nil {
			return nil, err
		}
		b.AddBaseTimes(times...)
	}
	if err := b.Store.FillTimeSeriesAt(ctx, r.curPop, b.BaseTimes()); err != nil {
		return nil, errors.Wrap(err, "fill current population")
	}
	return r, nil
}

// untilNextEstimate returns the years following every triggering estimate up to, and excluding, the
// year of the next estimate. Without a next estimate the years run to the last current population
// after the estimate, or to the current year.
func (r *populationRun) untilNextEstimate(ctx context.Context, p *algo.Param) ([]time.Time, error) {
	var out []time.Time
	for _, s := range p.Series.Triggered() {
		next, err := r.firstAfter(ctx, p.ID().SDI, s.Time, "MIN")
		if err != nil {
			return nil, err
		}
		if next.IsZero() {
			if next, err = r.firstAfter(ctx, r.curPop.ID.SDI, s.Time, "MAX"); err != nil {
				return nil, err
			}
		}
		if next.IsZero() {
			next = series.Year.Truncate(r.b.Now())
		}
		years := monthsBetween(s.Time, next) / 12
		for j := 1; j < years; j++ {
			out = append(out, s.Time.AddDate(j, 0, 0))
		}
	}
	return out, nil
}

func (r *populationRun) firstAfter(ctx context.Context, sdi int64, t time.Time, agg string) (time.Time, error) {
	rs, err := r.b.Store.Query(ctx, fmt.Sprintf(`SELECT %s(start_date_time) AS t FROM r_year
		WHERE site_datatype_id = ? AND start_date_time > ?`, agg), sdi, t)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "next value of sdi %d", sdi)
	}
	if ts := rs.Times("t"); len(ts) == 1 {
		return ts[0], nil
	}
	return time.Time{}, nil
}

func monthsBetween(from, to time.Time) int {
	n := (to.Year()-from.Year())*12 + int(to.Month()-from.Month())
	if to.Day() < from.Day() {
		n--
	}
	return n
}

// latestYear returns the last yearly value of the site datatype of site and datatype not after t.
func (r *populationRun) latestYear(ctx context.Context, site, datatype int64, t time.Time) (float64, bool, error) {
	rs, err := r.b.Store.Query(ctx, `SELECT y.value AS value FROM r_year y
		JOIN hdb_site_datatype sd ON sd.site_datatype_id = y.site_datatype_id
		WHERE sd.site_id = ? AND sd.datatype_id = ? AND y.start_date_time <= ?
		ORDER BY y.start_date_time DESC LIMIT 1`, site, datatype, t)
	if err != nil {
		return 0, false, errors.Wrapf(err, "datatype %d of site %d", datatype, site)
	}
	v, ok := rs.Float("value")
	return v, ok, nil
}

type stateHUC struct {
	site int64
	sdi  int64
}

// children returns the state HUCs of trib with their current consumptive use site datatype.
func (r *populationRun) children(ctx context.Context, trib int64) ([]stateHUC, error) {
	rs, err := r.b.Store.Query(ctx, `SELECT h.site_id AS site_id, outsd.site_datatype_id AS sdi FROM hdb_site h
		JOIN hdb_site_datatype outsd ON outsd.site_id = h.site_id
		WHERE h.parent_site_id = ? AND outsd.datatype_id = ?
		ORDER BY h.site_id`, trib, r.curCU)
	if err != nil {
		return nil, errors.Wrapf(err, "state HUCs of site %d", trib)
	}
	var out []stateHUC
	err = rs.Each(func(row store.Row) (err error) {
		var h stateHUC
		if h.site, err = row.Int64("site_id"); err != nil {
			return err
		}
		if h.sdi, err = row.Int64("sdi"); err != nil {
			return err
		}
		out = append(out, h)
		return nil
	})
	return out, err
}

func (r *populationRun) write(ctx context.Context, sdi int64, t time.Time, v float64) error {
	id, err := r.b.Store.LookupTSID(ctx, sdi, series.Year, series.RealTable)
	if err != nil {
		return err
	}
	r.b.Write(r.b.NewOutput(id), t, r.e.round.Round(v))
	return nil
}

func (r *populationRun) TimeSlice(ctx context.Context, s algo.Slice) error {
	if cur, ok := r.curPop.Value(s.Time); ok {
		return r.tributary(ctx, s.Time, cur)
	}
	return r.stateHUC(ctx, s.Time)
}

func (r *populationRun) tributary(ctx context.Context, t time.Time, cur float64) error {
	trib := r.curPop.ID.SiteID
	est, ok, err := r.latestYear(ctx, trib, r.estPop, t)
	if err != nil {
		return err
	}
	if !ok || est == 0 {
		return errors.Newf("no estimated population for site %d at %v", trib, t)
	}
	hucs, err := r.children(ctx, trib)
	if err != nil {
		return err
	}
	if len(hucs) == 0 {
		return errors.Newf("no state HUC outputs for site %d", trib)
	}
	for _, h := range hucs {
		cu, ok, err := r.latestYear(ctx, h.site, r.estCU, t)
		if err != nil {
			return err
		}
		if !ok {
			level.Debug(r.b.Logger).Log("msg", "no consumptive use estimate", "site", h.site, "time", t)
			continue
		}
		if err := r.write(ctx, h.sdi, t, cu*cur/est); err != nil {
			return err
		}
	}
	return nil
}

func (r *populationRun) stateHUC(ctx context.Context, t time.Time) error {
	in := r.b.Input("est_mi_cu").ID()
	cu, ok, err := r.latestYear(ctx, in.SiteID, r.estCU, t)
	if err != nil {
		return err
	}
	if !ok {
		return errors.Newf("no consumptive use estimate for site %d at %v", in.SiteID, t)
	}
	rs, err := r.b.Store.Query(ctx, `SELECT h.parent_site_id AS trib, outsd.site_datatype_id AS sdi FROM hdb_site h
		JOIN hdb_site_datatype outsd ON outsd.site_id = h.site_id
		WHERE h.site_id = ? AND outsd.datatype_id = ?`, in.SiteID, r.curCU)
	if err != nil {
		return errors.Wrap(err, "state HUC output")
	}
	tribs, sdis := rs.Int64s("trib"), rs.Int64s("sdi")
	if len(tribs) != 1 || len(sdis) != 1 {
		return errors.Newf("expected one output and parent for site %d", in.SiteID)
	}
	est, ok, err := r.latestYear(ctx, tribs[0], r.estPop, t)
	if err != nil {
		return err
	}
	if !ok || est == 0 {
		return errors.Newf("no estimated population for site %d at %v", tribs[0], t)
	}
	rs, err = r.b.Store.Query(ctx, `SELECT y.value AS value FROM r_year y
		JOIN hdb_site_datatype sd ON sd.site_datatype_id = y.site_datatype_id
		WHERE sd.site_id = ? AND sd.datatype_id = ? AND y.start_date_time = ?`, tribs[0], r.curPopDT, t)
	if err != nil {
		return errors.Wrap(err, "current population")
	}
	cur, ok := rs.Float("value")
	if !ok {
		return errors.Newf("no current population for site %d at %v", tribs[0], t)
	}
	return r.write(ctx, sdis[0], t, cu*cur/est)
}

func (*populationRun) End(context.Context) error { return nil }
