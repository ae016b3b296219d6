// Copyright (c) The Thanos Community Authors.
// Licensed under the Apache License 2.0.

package ratio

import (
	"context"

	"github.com/efficientgo/core/errors"

	"github.com/thanos-community/hdbcomp/pkg/algo"
	"github.com/thanos-community/hdbcomp/pkg/series"
)

const SectorRatioDisaggName = "SECTOR_RATIO_DISAGG"

// SectorRatioDisagg splits every measured yearly total into two sectors with the coefficient of
// coeff_year: sector1 receives total*coeff and sector2 the rest.
type SectorRatioDisagg struct {
	estimation string
	coeffYear  int
}

func NewSectorRatioDisagg(p algo.Properties) (*SectorRatioDisagg, error) {
	est, err := p.Match("estimation_process", algo.AggDisaggProcess, algo.Word)
	if err != nil {
		return nil, err
	}
	cy, err := p.Int("coeff_year", defaultCoeffYear)
	if err != nil {
		return nil, err
	}
	return &SectorRatioDisagg{estimation: est, coeffYear: cy}, nil
}

func (*SectorRatioDisagg) Name() string      { return SectorRatioDisaggName }
func (*SectorRatioDisagg) Inputs() []string  { return []string{"totalInput", "coefficient"} }
func (*SectorRatioDisagg) Outputs() []string { return []string{"sector1", "sector2"} }

func (d *SectorRatioDisagg) Begin(_ context.Context, b *algo.Batch) (algo.Run, error) {
	return algo.EndFunc(func(ctx context.Context) error {
		coeffs, err := algo.Values(ctx, b.Store, b.Input("coefficient").ID().SDI, series.Year,
			algo.YearStart(d.coeffYear), algo.YearStart(d.coeffYear+1))
		if err != nil {
			return err
		}
		if len(coeffs) != 1 {
			return errors.Newf("expected one sector coefficient in %d, got %d", d.coeffYear, len(coeffs))
		}
		coeff := coeffs[0].Value

		totals, err := algo.History(ctx, b.Store, b.Input("totalInput").ID().SDI, series.Year, algo.FillMissingProcess, d.estimation)
		if err != nil {
			return err
		}
		if len(totals) < 2 {
			return errors.Newf("expected at least two yearly totals, got %d", len(totals))
		}

		// Only the second sector carries the validation flag.
		first := algo.Flags{Derivation: b.Flags.Derivation}
		s1, s2 := b.Output("sector1").Series, b.Output("sector2").Series
		for _, t := range totals {
			at := algo.YearStart(t.Time.Year())
			b.WriteFlags(s1, at, t.Value*coeff, first)
			b.Write(s2, at, t.Value*(1-coeff))
		}
		return nil
	}), nil
}
