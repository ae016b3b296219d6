// Copyright (c) The Thanos Community Authors.
// Licensed under the Apache License 2.0.

// Package fill estimates missing data: monthly climatologies, constant fills, trailing averages of
// a source and population scaled consumptive use.
package fill

import (
	"context"
	"time"

	"github.com/go-kit/log/level"

	"github.com/thanos-community/hdbcomp/pkg/algo"
	"github.com/thanos-community/hdbcomp/pkg/series"
)

// compEditProcess is the loading application of manual edits.
const compEditProcess = "compedit"

const defaultFillStartYear = 1971

// monthlyAverages returns the average of every calendar month of sdi, skipping the excluded
// loading applications. ok is false unless all twelve months have data.
func monthlyAverages(ctx context.Context, st algo.Store, sdi int64, exclude ...string) (avgs [12]float64, ok bool, err error) {
	smps, err := algo.History(ctx, st, sdi, series.Month, exclude...)
	if err != nil {
		return avgs, false, err
	}
	var counts [12]int
	for _, s := range smps {
		m := s.Time.Month() - 1
		avgs[m] += s.Value
		counts[m]++
	}
	for m := range avgs {
		if counts[m] == 0 {
			return avgs, false, nil
		}
		avgs[m] /= float64(counts[m])
	}
	return avgs, true, nil
}

// months returns the first day of every month in [from, until].
func months(from, until time.Time) []time.Time {
	return series.Month.Steps(from, series.Month.Add(series.Month.Truncate(until), 1))
}

const CopyAverageToTimeseriesName = "COPY_AVERAGE_TO_TIMESERIES"

// CopyAverageToTimeseries writes the monthly climatology of the input to every month from the
// fill start year through the current month.
type CopyAverageToTimeseries struct {
	startYear  int
	estimation string
}

func NewCopyAverageToTimeseries(p algo.Properties) (*CopyAverageToTimeseries, error) {
	y, err := p.Int("fillStartYr", defaultFillStartYear)
	if err != nil {
		return nil, err
	}
	est, err := p.Match("estimation_process", algo.AggDisaggProcess, algo.Word)
	if err != nil {
		return nil, err
	}
	return &CopyAverageToTimeseries{startYear: y, estimation: est}, nil
}

func (*CopyAverageToTimeseries) Name() string      { return CopyAverageToTimeseriesName }
func (*CopyAverageToTimeseries) Inputs() []string  { return []string{"input"} }
func (*CopyAverageToTimeseries) Outputs() []string { return []string{"output"} }

func (c *CopyAverageToTimeseries) Begin(_ context.Context, b *algo.Batch) (algo.Run, error) {
	return algo.EndFunc(func(ctx context.Context) error {
		avgs, ok, err := monthlyAverages(ctx, b.Store, b.Input("input").ID().SDI, c.estimation, algo.FillMissingProcess)
		if err != nil {
			return err
		}
		if !ok {
			level.Warn(b.Logger).Log("msg", "monthly averages need data for every month, nothing copied")
			return nil
		}
		out := b.Output("output").Series
		for _, t := range months(algo.YearStart(c.startYear), b.Now()) {
			b.Write(out, t, avgs[t.Month()-1])
		}
		return nil
	}), nil
}
