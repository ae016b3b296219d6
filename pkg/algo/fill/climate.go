// Copyright (c) The Thanos Community Authors.
// Licensed under the Apache License 2.0.

package fill

import (
	"context"

	"github.com/efficientgo/core/errors"
	"github.com/go-kit/log/level"

	"github.com/thanos-community/hdbcomp/pkg/algo"
	"github.com/thanos-community/hdbcomp/pkg/series"
)

const FillMissingClimateDataName = "FILL_MISSING_CLIMATE_DATA"

// FillMissingClimateData fills the months of the fill period without measured input data with the
// monthly climatology of the input.
type FillMissingClimateData struct {
	startYear, endYear int
	estimation         string
}

func NewFillMissingClimateData(p algo.Properties) (*FillMissingClimateData, error) {
	f := &FillMissingClimateData{}
	var err error
	if f.startYear, err = p.Int("fillStartYr", defaultFillStartYear); err != nil {
		return nil, err
	}
	if f.endYear, err = p.Int("fillEndYr", 2020); err != nil {
		return nil, err
	}
	if f.endYear < f.startYear {
		return nil, errors.Newf("fillEndYr %d before fillStartYr %d", f.endYear, f.startYear)
	}
	if f.estimation, err = p.Match("estimation_process", algo.DefaultEstimationProcess, algo.Word); err != nil {
		return nil, err
	}
	return f, nil
}

func (*FillMissingClimateData) Name() string      { return FillMissingClimateDataName }
func (*FillMissingClimateData) Inputs() []string  { return []string{"input"} }
func (*FillMissingClimateData) Outputs() []string { return []string{"output"} }

func (f *FillMissingClimateData) Begin(_ context.Context, b *algo.Batch) (algo.Run, error) {
	return algo.EndFunc(func(ctx context.Context) error {
		sdi := b.Input("input").ID().SDI
		avgs, ok, err := monthlyAverages(ctx, b.Store, sdi, f.estimation, compEditProcess)
		if err != nil {
			return err
		}
		if !ok {
			level.Warn(b.Logger).Log("msg", "monthly averages need data for every month, nothing filled")
			return nil
		}

		from, until := algo.YearStart(f.startYear), algo.YearStart(f.endYear+1)
		measured, err := algo.Values(ctx, b.Store, sdi, series.Month, from, until, f.estimation, compEditProcess)
		if err != nil {
			return err
		}
		have := map[int64]struct{}{}
		for _, s := range measured {
			have[s.Time.Unix()] = struct{}{}
		}

		out := b.Output("output").Series
		var filled int
		for _, t := range series.Month.Steps(from, until) {
			if _, ok := have[t.Unix()]; ok {
				continue
			}
			b.Write(out, t, avgs[t.Month()-1])
			filled++
		}
		level.Debug(b.Logger).Log("msg", "filled missing months", "months", filled)
		return nil
	}), nil
}
