// Copyright (c) The Thanos Community Authors.
// Licensed under the Apache License 2.0.

package temporal

import (
	"context"
	"math"

	"github.com/efficientgo/core/errors"

	"github.com/thanos-community/hdbcomp/pkg/algo"
)

const RequestFromDepletionName = "REQUEST_FROM_DEPLETION"

const defaultCoefficientFeature = "percent consumptive use of diversion request"

// RequestFromDepletion computes the diversion request from a consumptive use with the monthly
// percentage of consumptive use of the basin for the use type of the input datatype.
type RequestFromDepletion struct {
	basinID  int64
	feature  string
	minValue float64
}

func NewRequestFromDepletion(p algo.Properties) (*RequestFromDepletion, error) {
	basin, err := p.Int("basinId", defaultBasinID)
	if err != nil {
		return nil, err
	}
	feature, err := p.Match("coefficientFeature", defaultCoefficientFeature, algo.WordList)
	if err != nil {
		return nil, err
	}
	minValue, err := p.Float("minValue", 0)
	if err != nil {
		return nil, err
	}
	return &RequestFromDepletion{basinID: int64(basin), feature: feature, minValue: minValue}, nil
}

func (*RequestFromDepletion) Name() string      { return RequestFromDepletionName }
func (*RequestFromDepletion) Inputs() []string  { return []string{"conuse"} }
func (*RequestFromDepletion) Outputs() []string { return []string{"request"} }

func (d *RequestFromDepletion) Begin(ctx context.Context, b *algo.Batch) (algo.Run, error) {
	in := b.Input("conuse").ID()
	rs, err := b.Store.Query(ctx, `SELECT c.coef AS coef FROM ref_site_coef c
		JOIN hdb_attr_feature af ON af.attr_id = c.attr_id
		JOIN hdb_datatype_feature df ON df.feature_id = af.feature_id
		JOIN hdb_feature_class fc ON fc.feature_class_id = df.feature_class_id
		JOIN hdb_feature feat ON feat.feature_name = ?
		JOIN hdb_feature_class featc ON featc.feature_class_id = feat.feature_class_id
		JOIN hdb_attr_feature coefaf ON coefaf.attr_id = c.attr_id AND coefaf.feature_id = feat.feature_id
		WHERE c.site_id = ? AND df.datatype_id = ?
			AND fc.feature_class_name = 'Consumptive Use Type' AND featc.feature_class_name = 'Attribute Group'
		ORDER BY c.coef_idx`, d.feature, d.basinID, in.DatatypeID)
	if err != nil {
		return nil, errors.Wrap(err, "consumptive use coefficients")
	}
	coefs := rs.Floats("coef")
	if err := algo.RequireMonthly(coefs, d.feature); err != nil {
		return nil, err
	}
	out := b.Output("request").Series

	return algo.SliceFunc(func(_ context.Context, s algo.Slice) error {
		v, ok := s.Value("conuse")
		if !ok {
			return errors.Newf("no consumptive use at %v", s.Time)
		}
		pct := coefs[s.Time.Month()-1]
		if pct == 0 {
			return errors.Newf("zero consumptive use percentage for %v", s.Time.Month())
		}
		b.Write(out, s.Time, math.Max(v/(pct/100), d.minValue))
		return nil
	}), nil
}
