// Copyright (c) The Thanos Community Authors.
// Licensed under the Apache License 2.0.

// Package temporal implements computations that spread a value of a long interval over the steps of
// a shorter one using coefficients, and the reverse fraction computation.
package temporal

import (
	"context"
	"math"
	"time"

	"github.com/efficientgo/core/errors"

	"github.com/thanos-community/hdbcomp/pkg/algo"
	"github.com/thanos-community/hdbcomp/pkg/series"
)

const StaticCoeffTemporalDisaggName = "STATIC_COEFF_TEMPORAL_DISAGG"

const (
	defaultBasinID              = 2029
	defaultCoefficientAttribute = "temporal disaggregation, annual to monthly, M and I (urban)"
)

// StaticCoeffTemporalDisagg spreads every input value over the output steps it covers using the
// static coefficients of a basin.
type StaticCoeffTemporalDisagg struct {
	basinID   int64
	attribute string
	minValue  float64
}

func NewStaticCoeffTemporalDisagg(p algo.Properties) (*StaticCoeffTemporalDisagg, error) {
	basin, err := p.Int("basinId", defaultBasinID)
	if err != nil {
		return nil, err
	}
	attr, err := p.Match("coefficientAttribute", defaultCoefficientAttribute, algo.WordList)
	if err != nil {
		return nil, err
	}
	minValue, err := p.Float("minValue", 0)
	if err != nil {
		return nil, err
	}
	return &StaticCoeffTemporalDisagg{basinID: int64(basin), attribute: attr, minValue: minValue}, nil
}

func (*StaticCoeffTemporalDisagg) Name() string      { return StaticCoeffTemporalDisaggName }
func (*StaticCoeffTemporalDisagg) Inputs() []string  { return []string{"input"} }
func (*StaticCoeffTemporalDisagg) Outputs() []string { return []string{"output"} }

// periodic returns the interval of the parameter, rejecting instantaneous ones.
func periodic(p *algo.Param) (series.Interval, error) {
	iv := p.ID().Interval
	if iv.IsInstant() {
		return "", errors.Newf("cannot disaggregate %s with an instantaneous interval", p.Role)
	}
	return iv, nil
}

// steps returns the starts of the out intervals covered by the in interval starting at t.
func steps(t time.Time, in, out series.Interval) []time.Time {
	return out.Steps(t, in.Add(t, 1))
}

func (d *StaticCoeffTemporalDisagg) Begin(ctx context.Context, b *algo.Batch) (algo.Run, error) {
	inIv, err := periodic(b.Input("input"))
	if err != nil {
		return nil, err
	}
	out := b.Output("output")
	outIv, err := periodic(out)
	if err != nil {
		return nil, err
	}
	coefs, err := algo.SiteCoefficients(ctx, b.Store, d.basinID, d.attribute)
	if err != nil {
		return nil, err
	}
	if len(coefs) == 0 {
		return nil, errors.Newf("no %q coefficients for site %d", d.attribute, d.basinID)
	}

	return algo.SliceFunc(func(_ context.Context, s algo.Slice) error {
		v, ok := s.Value("input")
		if !ok {
			return errors.Newf("no input at %v", s.Time)
		}
		ts := steps(s.Time, inIv, outIv)
		if len(ts) > len(coefs) {
			return errors.Newf("%d output steps but only %d coefficients", len(ts), len(coefs))
		}
		for i, t := range ts {
			b.Write(out.Series, t, math.Max(v*coefs[i], d.minValue))
		}
		return nil
	}), nil
}
