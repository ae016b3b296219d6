// Copyright (c) The Thanos Community Authors.
// Licensed under the Apache License 2.0.

package temporal

import (
	"context"
	"fmt"
	"time"

	"github.com/efficientgo/core/errors"
	"github.com/go-kit/log/level"

	"github.com/thanos-community/hdbcomp/pkg/algo"
	"github.com/thanos-community/hdbcomp/pkg/series"
)

const PowerTemporalDisaggName = "POWER_TEMPORAL_DISAGG"

// PowerTemporalDisagg completes the monthly history of an annual series. For every year, the months
// without measured data receive the part of the annual value not covered by measured months,
// spread in proportion to the monthly coefficients.
type PowerTemporalDisagg struct {
	estimation string
	fill       string
}

func NewPowerTemporalDisagg(p algo.Properties) (*PowerTemporalDisagg, error) {
	est, err := p.Match("estimation_process", algo.AggDisaggProcess, algo.Word)
	if err != nil {
		return nil, err
	}
	fill, err := p.Match("fill_process", algo.FillMissingProcess, algo.OptionalWord)
	if err != nil {
		return nil, err
	}
	return &PowerTemporalDisagg{estimation: est, fill: fill}, nil
}

func (*PowerTemporalDisagg) Name() string      { return PowerTemporalDisaggName }
func (*PowerTemporalDisagg) Inputs() []string  { return []string{"AnnualInput", "CoefficientInput"} }
func (*PowerTemporalDisagg) Outputs() []string { return []string{"MonthlyOutput"} }

type powerRun struct {
	b *algo.Batch
	p *PowerTemporalDisagg
}

func (p *PowerTemporalDisagg) Begin(_ context.Context, b *algo.Batch) (algo.Run, error) {
	return &powerRun{b: b, p: p}, nil
}

func (*powerRun) TimeSlice(context.Context, algo.Slice) error { return nil }

func (r *powerRun) excluded() []string {
	if r.p.fill == "" {
		return []string{r.p.estimation}
	}
	return []string{r.p.estimation, r.p.fill}
}

func (r *powerRun) End(ctx context.Context) error {
	b := r.b
	annual := b.Input("AnnualInput").ID()
	annuals, err := algo.History(ctx, b.Store, annual.SDI, series.Year, r.excluded()...)
	if err != nil {
		return err
	}
	if len(annuals) == 0 {
		level.Warn(b.Logger).Log("msg", "no annual values to disaggregate", "sdi", annual.SDI)
		return nil
	}

	coeff := b.Input("CoefficientInput").ID()
	tbl, err := coeff.Interval.Table(coeff.TableSelector)
	if err != nil {
		return err
	}
	rs, err := b.Store.Query(ctx, fmt.Sprintf(`SELECT value FROM %s WHERE site_datatype_id = ? ORDER BY start_date_time`, tbl), coeff.SDI)
	if err != nil {
		return errors.Wrap(err, "monthly coefficients")
	}
	coefs := rs.Floats("value")
	if err := algo.RequireMonthly(coefs, "power"); err != nil {
		return err
	}

	monthly, err := algo.History(ctx, b.Store, annual.SDI, series.Month, r.excluded()...)
	if err != nil {
		return err
	}
	measured := map[int]map[int]float64{}
	for _, s := range monthly {
		y := s.Time.Year()
		if measured[y] == nil {
			measured[y] = map[int]float64{}
		}
		measured[y][int(s.Time.Month())] = s.Value
	}

	out := b.Output("MonthlyOutput").Series
	for _, a := range annuals {
		y := a.Time.Year()
		var measuredSum, coefSum float64
		for m := 1; m <= 12; m++ {
			if v, ok := measured[y][m]; ok {
				measuredSum += v
				continue
			}
			coefSum += coefs[m-1]
		}
		if coefSum == 0 {
			level.Debug(b.Logger).Log("msg", "nothing to disaggregate", "year", y)
			continue
		}
		for m := 1; m <= 12; m++ {
			if _, ok := measured[y][m]; ok {
				continue
			}
			b.Write(out, algo.MonthStart(y, time.Month(m)), (a.Value-measuredSum)*coefs[m-1]/coefSum)
		}
	}
	return nil
}
