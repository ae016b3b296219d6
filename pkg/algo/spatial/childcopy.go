// Copyright (c) The Thanos Community Authors.
// Licensed under the Apache License 2.0.

// Package spatial implements computations that move values between related sites: parent to
// child copies, HUC to reservoir fan out, peer aggregates and spatial relations.
package spatial

import (
	"context"

	"github.com/efficientgo/core/errors"
	"github.com/go-kit/log/level"

	"github.com/thanos-community/hdbcomp/pkg/algo"
	"github.com/thanos-community/hdbcomp/pkg/series"
)

const ChildCopyMultiplierName = "CHILD_COPY_MULTIPLIER"

// ChildCopyMultiplier copies the input, scaled by a multiplier, to the single child site of the
// input site that has the datatype of the datatype parameter.
type ChildCopyMultiplier struct {
	multiplier float64
}

func NewChildCopyMultiplier(p algo.Properties) (*ChildCopyMultiplier, error) {
	m, err := p.Float("multiplier", -1)
	if err != nil {
		return nil, err
	}
	return &ChildCopyMultiplier{multiplier: m}, nil
}

func (*ChildCopyMultiplier) Name() string      { return ChildCopyMultiplierName }
func (*ChildCopyMultiplier) Inputs() []string  { return []string{"input", "datatype"} }
func (*ChildCopyMultiplier) Outputs() []string { return nil }

func (c *ChildCopyMultiplier) Begin(ctx context.Context, b *algo.Batch) (algo.Run, error) {
	in, dt := b.Input("input").ID(), b.Input("datatype").ID()

	rs, err := b.Store.Query(ctx, `SELECT outsd.site_datatype_id AS sdi
		FROM hdb_site_datatype insd
		JOIN hdb_site child ON child.parent_site_id = insd.site_id
		JOIN hdb_site_datatype outsd ON outsd.site_id = child.site_id
		WHERE insd.site_datatype_id = ? AND outsd.datatype_id = ?`, in.SDI, dt.DatatypeID)
	if err != nil {
		return nil, errors.Wrap(err, "find child output")
	}
	if rs.Len() != 1 {
		level.Warn(b.Logger).Log("msg", "expected exactly one child output, nothing will be written",
			"site", dt.SiteName, "outputs", rs.Len())
		return algo.SliceFunc(func(context.Context, algo.Slice) error { return nil }), nil
	}
	outs, err := b.ResolveOutputSDIs(ctx, rs, "sdi", dt.Interval, dt.TableSelector, algo.BySite)
	if err != nil {
		return nil, err
	}
	out := outs.All()[0]

	return algo.SliceFunc(func(_ context.Context, s algo.Slice) error {
		// Slices of datatype samples alone.
		if !s.Triggered("input") {
			return nil
		}
		v, ok := s.Value("input")
		if !ok {
			return errors.Newf("no input at %v", s.Time)
		}
		b.Write(out, series.Day.Truncate(s.Time), v*c.multiplier)
		return nil
	}), nil
}
