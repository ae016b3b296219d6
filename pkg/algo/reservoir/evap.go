// Copyright (c) The Thanos Community Authors.
// Licensed under the Apache License 2.0.

// Package reservoir implements reservoir evaporation computations from precipitation and reservoir
// metadata.
package reservoir

import (
	"context"

	"github.com/efficientgo/core/errors"
	"github.com/go-kit/log/level"

	"github.com/thanos-community/hdbcomp/pkg/algo"
	"github.com/thanos-community/hdbcomp/pkg/series"
)

const (
	MinorReservoirEvapName = "MINOR_RESERVOIR_EVAP"
	MajorReservoirEvapName = "MAJOR_RESERVOIR_EVAP"
)

// Reservoir metadata attributes.
const (
	surfaceAreaAttr = "maximum surface area"
	evapRateAttr    = "average free water surface evap rate"
	fullnessAttr    = "fullness factor"
	salvageAttr     = "salvage"

	monthlyCoefSite = "UPPER COLORADO RIVER BASIN"
	monthlyCoefAttr = "temporal disaggregation, annual to monthly, reservoir (other)"
)

// missingCoef marks a coefficient that could not be read.
const missingCoef = -999

// coefficient returns the single coefficient attr of site.
func coefficient(ctx context.Context, st algo.Store, site int64, attr string) (float64, error) {
	coefs, err := algo.SiteCoefficients(ctx, st, site, attr)
	if err != nil {
		return 0, err
	}
	if len(coefs) != 1 {
		return 0, errors.Newf("expected one %q coefficient for site %d, got %d", attr, site, len(coefs))
	}
	return coefs[0], nil
}

// MinorReservoirEvap computes the evaporation of a minor reservoir from its precipitation:
//
//	evap = (ER - max(P, S)) * (F * SA) / 12
//
// with ER the average free water surface evap rate, S the salvage, F the fullness factor and SA
// the maximum surface area of the reservoir.
type MinorReservoirEvap struct{}

func NewMinorReservoirEvap(algo.Properties) (*MinorReservoirEvap, error) {
	return &MinorReservoirEvap{}, nil
}

func (*MinorReservoirEvap) Name() string      { return MinorReservoirEvapName }
func (*MinorReservoirEvap) Inputs() []string  { return []string{"ResPrecip"} }
func (*MinorReservoirEvap) Outputs() []string { return []string{"evap"} }

func (*MinorReservoirEvap) Begin(ctx context.Context, b *algo.Batch) (algo.Run, error) {
	in := b.Input("ResPrecip").ID()
	coefs := map[string]float64{}
	for _, attr := range []string{surfaceAreaAttr, evapRateAttr, fullnessAttr, salvageAttr} {
		c, err := coefficient(ctx, b.Store, in.SiteID, attr)
		if err != nil {
			level.Warn(b.Logger).Log("msg", "problem with reservoir metadata", "site", in.SiteName, "err", err)
			c = missingCoef
		}
		coefs[attr] = c
	}
	sa, er, f, s := coefs[surfaceAreaAttr], coefs[evapRateAttr], coefs[fullnessAttr], coefs[salvageAttr]

	out := b.Output("evap").Series
	return algo.SliceFunc(func(_ context.Context, sl algo.Slice) error {
		if sa == missingCoef || er == missingCoef || f == missingCoef || s == missingCoef {
			level.Warn(b.Logger).Log("msg", "problem with metadata, skipping", "site", in.SiteName, "time", sl.Time)
			return nil
		}
		p, ok := sl.Value("ResPrecip")
		if !ok {
			return errors.Newf("no precipitation at %v", sl.Time)
		}
		b.Write(out, sl.Time, (er-max(p, s))*(f*sa)/12)
		return nil
	}), nil
}

// MajorReservoirEvap computes the monthly evaporation of a major reservoir:
//
//	evap = ((ER * MC[month]) - max(AP, S) * P / AP) * SA / 12
//
// with ER and S the annual evap rate and salvage of the reservoir, MC the basin wide monthly
// disaggregation coefficients, AP the precipitation of the calendar year, P the precipitation of
// the month and SA the surface area of the month.
type MajorReservoirEvap struct{}

func NewMajorReservoirEvap(algo.Properties) (*MajorReservoirEvap, error) {
	return &MajorReservoirEvap{}, nil
}

func (*MajorReservoirEvap) Name() string      { return MajorReservoirEvapName }
func (*MajorReservoirEvap) Inputs() []string  { return []string{"ResPrecip", "SurfaceArea"} }
func (*MajorReservoirEvap) Outputs() []string { return []string{"evap"} }

func (*MajorReservoirEvap) Begin(ctx context.Context, b *algo.Batch) (algo.Run, error) {
	in := b.Input("ResPrecip").ID()
	er, err := coefficient(ctx, b.Store, in.SiteID, evapRateAttr)
	if err != nil {
		return nil, errors.Wrapf(err, "reservoir metadata of %s", in.SiteName)
	}
	s, err := coefficient(ctx, b.Store, in.SiteID, salvageAttr)
	if err != nil {
		return nil, errors.Wrapf(err, "reservoir metadata of %s", in.SiteName)
	}
	rs, err := b.Store.Query(ctx, `SELECT c.coef FROM ref_site_coef c
		JOIN hdb_attr a ON a.attr_id = c.attr_id
		JOIN hdb_site site ON site.site_id = c.site_id
		WHERE site.site_name = ? AND a.attr_name = ?
		ORDER BY c.coef_idx`, monthlyCoefSite, monthlyCoefAttr)
	if err != nil {
		return nil, errors.Wrap(err, "monthly evaporation coefficients")
	}
	mc := rs.Floats("coef")
	if err := algo.RequireMonthly(mc, "evaporation"); err != nil {
		return nil, err
	}

	// Annual precipitation per year, nil when the year is incomplete.
	annual := map[int]*float64{}
	out := b.Output("evap").Series
	return algo.SliceFunc(func(ctx context.Context, sl algo.Slice) error {
		y := sl.Time.Year()
		ap, ok := annual[y]
		if !ok {
			smps, err := algo.Values(ctx, b.Store, in.SDI, series.Month, algo.YearStart(y), algo.YearStart(y+1))
			if err != nil {
				return err
			}
			if len(smps) == 12 {
				var sum float64
				for _, smp := range smps {
					sum += smp.Value
				}
				ap = &sum
			}
			annual[y] = ap
		}
		if ap == nil || *ap == 0 {
			level.Warn(b.Logger).Log("msg", "no annual precipitation, skipping", "site", in.SiteName, "year", y)
			return nil
		}
		p, ok := sl.Value("ResPrecip")
		if !ok {
			return errors.Newf("no precipitation at %v", sl.Time)
		}
		sa, ok := sl.Value("SurfaceArea")
		if !ok {
			return errors.Newf("no surface area at %v", sl.Time)
		}
		b.Write(out, sl.Time, ((er*mc[sl.Time.Month()-1])-max(*ap, s)*p/(*ap))*sa/12)
		return nil
	}), nil
}
