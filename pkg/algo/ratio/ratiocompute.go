// Copyright (c) The Thanos Community Authors.
// Licensed under the Apache License 2.0.

package ratio

import (
	"context"

	"github.com/go-kit/log/level"

	"github.com/thanos-community/hdbcomp/pkg/algo"
	"github.com/thanos-community/hdbcomp/pkg/series"
)

const RatioComputeName = "RATIO_COMPUTE"

// RatioCompute computes the mean share of input1 in the sum of two yearly series over the years
// both have measured values.
type RatioCompute struct {
	estimation string
	coeffYear  int
	round      algo.Rounder
}

func NewRatioCompute(p algo.Properties) (*RatioCompute, error) {
	est, err := p.Match("estimation_process", algo.DefaultEstimationProcess, algo.Word)
	if err != nil {
		return nil, err
	}
	cy, err := p.Int("coeff_year", defaultCoeffYear)
	if err != nil {
		return nil, err
	}
	r, err := algo.ParseRounder(p, 7)
	if err != nil {
		return nil, err
	}
	return &RatioCompute{estimation: est, coeffYear: cy, round: r}, nil
}

func (*RatioCompute) Name() string      { return RatioComputeName }
func (*RatioCompute) Inputs() []string  { return []string{"input1", "input2"} }
func (*RatioCompute) Outputs() []string { return []string{"output"} }

func (c *RatioCompute) Begin(_ context.Context, b *algo.Batch) (algo.Run, error) {
	for _, role := range c.Inputs() {
		if iv := b.Input(role).ID().Interval; iv != series.Year {
			level.Warn(b.Logger).Log("msg", "ratios are computed from yearly data", "input", role, "interval", iv)
		}
	}
	return algo.EndFunc(func(ctx context.Context) error {
		first, err := algo.History(ctx, b.Store, b.Input("input1").ID().SDI, series.Year, c.estimation)
		if err != nil {
			return err
		}
		second, err := algo.History(ctx, b.Store, b.Input("input2").ID().SDI, series.Year, c.estimation)
		if err != nil {
			return err
		}
		others := map[int]float64{}
		for _, s := range second {
			others[s.Time.Year()] = s.Value
		}

		var sum float64
		var n int
		for _, s := range first {
			o, ok := others[s.Time.Year()]
			if !ok || s.Value+o == 0 {
				continue
			}
			sum += s.Value / (s.Value + o)
			n++
		}
		if n == 0 {
			level.Warn(b.Logger).Log("msg", "no common years to compute a ratio from")
			return nil
		}
		b.Write(b.Output("output").Series, algo.YearStart(c.coeffYear), c.round.Round(sum/float64(n)))
		return nil
	}), nil
}
