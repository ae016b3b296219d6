// Copyright (c) The Thanos Community Authors.
// Licensed under the Apache License 2.0.

package spatial

import (
	"context"
	"fmt"
	"strings"

	"github.com/efficientgo/core/errors"
	"github.com/go-kit/log/level"

	"github.com/thanos-community/hdbcomp/pkg/algo"
)

const (
	DynamicSiteAggregateName    = "DYNAMIC_SITE_AGGREGATE"
	DynamicSpatialAggregateName = "DYNAMIC_SPATIAL_AGGREGATE"
)

// SiteMethod relates a site to other sites of the hierarchy.
type SiteMethod string

const (
	HUC         SiteMethod = "HUC"
	Basin       SiteMethod = "BASIN"
	Parent      SiteMethod = "PARENT"
	CompDepends SiteMethod = "COMPDEPENDS"
)

func parseMethod(p algo.Properties, name string, allowed ...SiteMethod) (SiteMethod, error) {
	v, err := p.Match(name, string(HUC), algo.Word)
	if err != nil {
		return "", err
	}
	m := SiteMethod(strings.ToUpper(v))
	for _, a := range allowed {
		if m == a {
			return m, nil
		}
	}
	return "", errors.Newf("property %q: unsupported site method %q", name, v)
}

// DynamicAggregate sums, at every slice, the values of the peers of the triggering site and writes
// the sum to the site related to it by the output method.
type DynamicAggregate struct {
	name   string
	output SiteMethod
	peers  SiteMethod
	round  algo.Rounder
}

func NewDynamicAggregate(name string, p algo.Properties) (*DynamicAggregate, error) {
	out, err := parseMethod(p, "output_site_method", HUC, Basin, Parent)
	if err != nil {
		return nil, err
	}
	peers, err := parseMethod(p, "peer_site_method", HUC, Basin, Parent, CompDepends)
	if err != nil {
		return nil, err
	}
	r, err := algo.ParseRounder(p, 7)
	if err != nil {
		return nil, err
	}
	return &DynamicAggregate{name: name, output: out, peers: peers, round: r}, nil
}

func (a *DynamicAggregate) Name() string    { return a.name }
func (*DynamicAggregate) Inputs() []string  { return []string{"input"} }
func (*DynamicAggregate) Outputs() []string { return nil }

func (a *DynamicAggregate) outputQuery() string {
	q := `SELECT outsd.site_datatype_id AS sdi
		FROM hdb_site_datatype srcsd
		JOIN hdb_site trig ON trig.site_id = srcsd.site_id
		JOIN hdb_site_datatype outsd ON outsd.datatype_id = srcsd.datatype_id
		JOIN hdb_site outsite ON outsite.site_id = outsd.site_id
		JOIN hdb_objecttype obj ON obj.objecttype_id = outsite.objecttype_id
		WHERE srcsd.site_datatype_id = ? AND `
	switch a.output {
	case HUC:
		return q + `outsite.site_name = trig.hydrologic_unit AND obj.objecttype_tag = 'huc'`
	case Basin:
		return q + `outsd.site_id = trig.basin_id`
	default:
		return q + `outsd.site_id = trig.parent_site_id`
	}
}

func (a *DynamicAggregate) sumQuery(table string) string {
	if a.peers == CompDepends {
		return fmt.Sprintf(`SELECT SUM(r.value) AS value FROM %s r
			WHERE r.site_datatype_id IN (SELECT id.site_datatype_id FROM cp_comp_depends dep
				JOIN cp_ts_id id ON id.ts_id = dep.ts_id WHERE dep.computation_id = ?)
			AND r.start_date_time = ?`, table)
	}
	var peer string
	switch a.peers {
	case HUC:
		peer = "members.hydrologic_unit = trig.hydrologic_unit"
	case Basin:
		peer = "members.basin_id = trig.basin_id"
	default:
		peer = "members.parent_site_id = trig.parent_site_id"
	}
	return fmt.Sprintf(`SELECT SUM(r.value) AS value FROM %s r
		JOIN hdb_site_datatype destsd ON destsd.site_datatype_id = r.site_datatype_id
		JOIN hdb_site members ON members.site_id = destsd.site_id
		JOIN hdb_site_datatype srcsd ON srcsd.datatype_id = destsd.datatype_id
		JOIN hdb_site trig ON trig.site_id = srcsd.site_id AND trig.objecttype_id = members.objecttype_id
		WHERE srcsd.site_datatype_id = ? AND %s AND r.start_date_time = ?`, table, peer)
}

func (a *DynamicAggregate) Begin(ctx context.Context, b *algo.Batch) (algo.Run, error) {
	in := b.Input("input").ID()
	tbl, err := in.Interval.Table(in.TableSelector)
	if err != nil {
		return nil, err
	}

	rs, err := b.Store.Query(ctx, a.outputQuery(), in.SDI)
	if err != nil {
		return nil, errors.Wrap(err, "find aggregate output")
	}
	if rs.Len() != 1 {
		return nil, errors.Newf("expected one %s output for site %s, got %d", strings.ToLower(string(a.output)), in.SiteName, rs.Len())
	}
	outs, err := b.ResolveOutputSDIs(ctx, rs, "sdi", in.Interval, in.TableSelector, algo.BySite)
	if err != nil {
		return nil, err
	}
	out := outs.All()[0]

	q := a.sumQuery(tbl)
	key := in.SDI
	if a.peers == CompDepends {
		key = b.Computation.ID
	}
	return algo.SliceFunc(func(ctx context.Context, s algo.Slice) error {
		rs, err := b.Store.Query(ctx, q, key, s.Time)
		if err != nil {
			level.Warn(b.Logger).Log("msg", "peer sum failed, deleting output", "time", s.Time, "err", err)
			b.Delete(out, s.Time)
			return nil
		}
		sum, ok := rs.Float("value")
		if !ok {
			level.Debug(b.Logger).Log("msg", "no peer values, deleting output", "time", s.Time)
			b.Delete(out, s.Time)
			return nil
		}
		b.Write(out, s.Time, a.round.Round(sum))
		return nil
	}), nil
}
