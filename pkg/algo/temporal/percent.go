// Copyright (c) The Thanos Community Authors.
// Licensed under the Apache License 2.0.

package temporal

import (
	"context"

	"github.com/efficientgo/core/errors"
	"github.com/go-kit/log/level"

	"github.com/thanos-community/hdbcomp/pkg/algo"
	"github.com/thanos-community/hdbcomp/pkg/series"
)

const TemporalPercentDisaggName = "TEMPORAL_PERCENT_DISAGG"

// TemporalPercentDisagg multiplies a total by the percentage series covering it. A new total
// rewrites every step it covers; a new percentage rewrites its own step with the total in effect.
type TemporalPercentDisagg struct{}

func NewTemporalPercentDisagg(algo.Properties) (*TemporalPercentDisagg, error) {
	return &TemporalPercentDisagg{}, nil
}

func (*TemporalPercentDisagg) Name() string      { return TemporalPercentDisaggName }
func (*TemporalPercentDisagg) Inputs() []string  { return []string{"total", "coeff"} }
func (*TemporalPercentDisagg) Outputs() []string { return []string{"output"} }

func (*TemporalPercentDisagg) Begin(ctx context.Context, b *algo.Batch) (algo.Run, error) {
	total := b.Input("total")
	totalIv, err := periodic(total)
	if err != nil {
		return nil, err
	}
	coeffIv, err := periodic(b.Input("coeff"))
	if err != nil {
		return nil, err
	}
	out := b.Output("output").Series

	// Percentages of every step covered by the totals of the batch, on top of the triggering ones.
	coeffs := series.New(b.Input("coeff").ID())
	if times := b.BaseTimes(); len(times) > 0 {
		if err := b.Store.FillTimeSeries(ctx, coeffs, times[0], totalIv.Add(times[len(times)-1], 1)); err != nil {
			return nil, errors.Wrap(err, "fill coefficients")
		}
	}

	return algo.SliceFunc(func(ctx context.Context, s algo.Slice) error {
		if s.Triggered("total") {
			v, ok := s.Value("total")
			if !ok {
				return errors.Newf("no total at %v", s.Time)
			}
			for _, t := range steps(s.Time, totalIv, coeffIv) {
				c, ok := coeffs.Value(t)
				if !ok {
					b.Delete(out, t)
					continue
				}
				b.Write(out, t, v*c)
			}
			return nil
		}

		c, ok := s.Value("coeff")
		if !ok {
			return errors.Newf("no coefficient at %v", s.Time)
		}
		v, ok := s.Value("total")
		if !ok {
			prev, err := algo.Values(ctx, b.Store, total.ID().SDI, totalIv, totalIv.Add(s.Time, -1), s.Time)
			if err != nil {
				return err
			}
			if len(prev) == 0 {
				level.Debug(b.Logger).Log("msg", "no total within one interval, deleting output", "time", s.Time)
				b.Delete(out, s.Time)
				return nil
			}
			v = prev[len(prev)-1].Value
		}
		b.Write(out, s.Time, v*c)
		return nil
	}), nil
}
