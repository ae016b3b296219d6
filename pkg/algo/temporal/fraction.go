// Copyright (c) The Thanos Community Authors.
// Licensed under the Apache License 2.0.

package temporal

import (
	"context"

	"github.com/efficientgo/core/errors"

	"github.com/thanos-community/hdbcomp/pkg/algo"
	"github.com/thanos-community/hdbcomp/pkg/series"
)

const FractionComputeDisaggName = "FRACTION_COMPUTE_DISAGG"

// FractionComputeDisagg computes, for every output step covered by a total, the fraction of the
// total held by the same site datatype at the output interval.
type FractionComputeDisagg struct{}

func NewFractionComputeDisagg(algo.Properties) (*FractionComputeDisagg, error) {
	return &FractionComputeDisagg{}, nil
}

func (*FractionComputeDisagg) Name() string      { return FractionComputeDisaggName }
func (*FractionComputeDisagg) Inputs() []string  { return []string{"total"} }
func (*FractionComputeDisagg) Outputs() []string { return []string{"output"} }

func (*FractionComputeDisagg) Begin(ctx context.Context, b *algo.Batch) (algo.Run, error) {
	total := b.Input("total")
	totalIv, err := periodic(total)
	if err != nil {
		return nil, err
	}
	out := b.Output("output")
	outIv, err := periodic(out)
	if err != nil {
		return nil, err
	}

	id, err := b.Store.LookupTSID(ctx, total.ID().SDI, outIv, total.ID().TableSelector)
	if err != nil {
		return nil, errors.Wrap(err, "component time series")
	}
	component := series.New(id)
	if times := b.BaseTimes(); len(times) > 0 {
		if err := b.Store.FillTimeSeries(ctx, component, times[0], totalIv.Add(times[len(times)-1], 1)); err != nil {
			return nil, errors.Wrap(err, "fill component")
		}
	}

	return algo.SliceFunc(func(_ context.Context, s algo.Slice) error {
		v, ok := s.Value("total")
		if !ok {
			return errors.Newf("no total at %v", s.Time)
		}
		for _, t := range steps(s.Time, totalIv, outIv) {
			c, ok := component.Value(t)
			if !ok || v == 0 {
				b.Delete(out.Series, t)
				continue
			}
			b.Write(out.Series, t, c/v)
		}
		return nil
	}), nil
}
