// Copyright (c) The Thanos Community Authors.
// Licensed under the Apache License 2.0.

package ratio

import (
	"context"
	"time"

	"github.com/efficientgo/core/errors"
	"github.com/go-kit/log/level"

	"github.com/thanos-community/hdbcomp/pkg/algo"
	"github.com/thanos-community/hdbcomp/pkg/series"
)

const (
	SourceDistributionComputeName    = "SOURCE_DISTRIBUTION_COMPUTE"
	CULSourceDistributionComputeName = "CUL_SOURCE_DISTRIBUTION_COMPUTE"
)

// SourceDistributionCompute computes the mean share of every month in the yearly total of a monthly
// series. The coefficients are written to the months of coeff_year.
//
// The CUL variant also ignores gap filled data, only uses years with a positive total and fails
// when a month has no coefficient. The plain variant deletes the coefficients instead.
type SourceDistributionCompute struct {
	name           string
	cul            bool
	ignorePartials bool
	estimation     string
	coeffYear      int
	round          algo.Rounder
}

func NewSourceDistributionCompute(name string, p algo.Properties) (*SourceDistributionCompute, error) {
	s := &SourceDistributionCompute{name: name, cul: name == CULSourceDistributionComputeName}
	def := algo.DefaultEstimationProcess
	if s.cul {
		def = algo.AggDisaggProcess
	}
	var err error
	if s.estimation, err = p.Match("estimation_process", def, algo.Word); err != nil {
		return nil, err
	}
	if s.ignorePartials, err = p.Bool("ignore_partials", true); err != nil {
		return nil, err
	}
	if s.coeffYear, err = p.Int("coeff_year", defaultCoeffYear); err != nil {
		return nil, err
	}
	if s.round, err = algo.ParseRounder(p, 7); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SourceDistributionCompute) Name() string    { return s.name }
func (*SourceDistributionCompute) Inputs() []string  { return []string{"input"} }
func (*SourceDistributionCompute) Outputs() []string { return []string{"output"} }

type sourceYear struct {
	total  float64
	months map[time.Month]float64
}

func (s *SourceDistributionCompute) Begin(_ context.Context, b *algo.Batch) (algo.Run, error) {
	in := b.Input("input").ID()
	if in.Interval != series.Month {
		level.Warn(b.Logger).Log("msg", "source distribution is computed from monthly data", "interval", in.Interval)
	}
	exclude := []string{s.estimation}
	if s.cul {
		exclude = append(exclude, algo.FillMissingProcess)
	}

	return algo.EndFunc(func(ctx context.Context) error {
		smps, err := algo.History(ctx, b.Store, in.SDI, series.Month, exclude...)
		if err != nil {
			return err
		}
		years := map[int]*sourceYear{}
		for _, smp := range smps {
			y, ok := years[smp.Time.Year()]
			if !ok {
				y = &sourceYear{months: map[time.Month]float64{}}
				years[smp.Time.Year()] = y
			}
			y.total += smp.Value
			y.months[smp.Time.Month()] = smp.Value
		}

		sums := map[time.Month]float64{}
		counts := map[time.Month]int{}
		for _, y := range years {
			if y.total == 0 || (s.cul && y.total < 0) {
				continue
			}
			if s.ignorePartials && len(y.months) != 12 {
				continue
			}
			for m, v := range y.months {
				sums[m] += v / y.total
				counts[m]++
			}
		}

		out := b.Output("output").Series
		if len(counts) != 12 {
			if s.cul {
				return errors.Newf("expected 12 monthly distribution coefficients, got %d", len(counts))
			}
			level.Warn(b.Logger).Log("msg", "not enough monthly coefficients, deleting them", "months", len(counts))
			for m := range counts {
				b.Delete(out, algo.MonthStart(s.coeffYear, m))
			}
			return nil
		}
		for m := time.January; m <= time.December; m++ {
			b.Write(out, algo.MonthStart(s.coeffYear, m), s.round.Round(sums[m]/float64(counts[m])))
		}
		return nil
	}), nil
}
