// Copyright (c) The Thanos Community Authors.
// Licensed under the Apache License 2.0.

package spatial

import (
	"context"
	"fmt"
	"strconv"

	"github.com/efficientgo/core/errors"

	"github.com/thanos-community/hdbcomp/pkg/algo"
	"github.com/thanos-community/hdbcomp/pkg/store"
)

const DynamicSpatialRelationName = "DYNAMIC_SPATIAL_RELATION"

// DynamicSpatialRelation writes to every site related to the input site through ref_spatial_relation
// the sum of the values of all sites related to it, weighted by the relation value when the
// attribute holds numbers.
type DynamicSpatialRelation struct {
	attribute string
	round     algo.Rounder
}

func NewDynamicSpatialRelation(p algo.Properties) (*DynamicSpatialRelation, error) {
	attr, err := p.Required("attribute")
	if err != nil {
		return nil, err
	}
	if attr, err = p.Match("attribute", "", algo.WordList); err != nil {
		return nil, err
	}
	r, err := algo.ParseRounder(p, 7)
	if err != nil {
		return nil, err
	}
	return &DynamicSpatialRelation{attribute: attr, round: r}, nil
}

func (*DynamicSpatialRelation) Name() string      { return DynamicSpatialRelationName }
func (*DynamicSpatialRelation) Inputs() []string  { return []string{"input"} }
func (*DynamicSpatialRelation) Outputs() []string { return nil }

func (d *DynamicSpatialRelation) Begin(ctx context.Context, b *algo.Batch) (algo.Run, error) {
	in := b.Input("input").ID()
	tbl, err := in.Interval.Table(in.TableSelector)
	if err != nil {
		return nil, err
	}

	rs, err := b.Store.Query(ctx, `SELECT outsd.site_datatype_id AS sdi
		FROM hdb_site_datatype srcsd
		JOIN ref_spatial_relation sr ON sr.a_site_id = srcsd.site_id
		JOIN hdb_attr a ON a.attr_id = sr.attr_id
		JOIN hdb_site_datatype outsd ON outsd.site_id = sr.b_site_id AND outsd.datatype_id = srcsd.datatype_id
		WHERE srcsd.site_datatype_id = ? AND a.attr_name = ?
		ORDER BY sr.b_site_id`, in.SDI, d.attribute)
	if err != nil {
		return nil, errors.Wrap(err, "find related outputs")
	}
	outs, err := b.ResolveOutputSDIs(ctx, rs, "sdi", in.Interval, in.TableSelector, algo.BySite)
	if err != nil {
		return nil, err
	}
	if outs.Len() == 0 {
		return algo.SliceFunc(func(context.Context, algo.Slice) error { return nil }), nil
	}

	q := fmt.Sprintf(`SELECT sr_as.b_site_id AS output_site,
			SUM(r.value * CASE WHEN a.attr_value_type = 'number' THEN sr_as.value ELSE 1.0 END) AS value,
			SUM(sr_as.value) AS weight
		FROM %s r
		JOIN hdb_site_datatype members ON members.site_datatype_id = r.site_datatype_id
		JOIN ref_spatial_relation sr_as ON sr_as.a_site_id = members.site_id
		JOIN ref_spatial_relation sr_trig ON sr_trig.b_site_id = sr_as.b_site_id AND sr_trig.attr_id = sr_as.attr_id
		JOIN hdb_site_datatype trig ON trig.site_id = sr_trig.a_site_id AND trig.datatype_id = members.datatype_id
		JOIN hdb_attr a ON a.attr_id = sr_as.attr_id
		WHERE trig.site_datatype_id = ? AND a.attr_name = ? AND r.start_date_time = ?
		GROUP BY sr_as.b_site_id`, tbl)

	return algo.SliceFunc(func(ctx context.Context, s algo.Slice) error {
		rs, err := b.Store.Query(ctx, q, in.SDI, d.attribute, s.Time)
		if err != nil {
			return errors.Wrap(err, "weighted sums")
		}
		if rs.Len() != outs.Len() {
			return errors.Newf("got %d weighted sums for %d outputs", rs.Len(), outs.Len())
		}
		return rs.Each(func(r store.Row) error {
			site, err := r.Int64("output_site")
			if err != nil {
				return err
			}
			v, err := r.Float("value")
			if err != nil {
				return err
			}
			out, ok := outs.Get(strconv.FormatInt(site, 10))
			if !ok {
				return errors.Newf("no output for site %d", site)
			}
			b.Write(out, s.Time, d.round.Round(v))
			return nil
		})
	}), nil
}
