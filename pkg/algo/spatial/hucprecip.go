// Copyright (c) The Thanos Community Authors.
// Licensed under the Apache License 2.0.

package spatial

import (
	"context"
	"strconv"

	"github.com/efficientgo/core/errors"

	"github.com/thanos-community/hdbcomp/pkg/algo"
	"github.com/thanos-community/hdbcomp/pkg/series"
)

const HUCPrecipToReservoirsName = "HUC_PRECIP_TO_RESERVOIRS"

// HUCPrecipToReservoirs copies the precipitation of a HUC to every reservoir of the sector located
// in that HUC.
type HUCPrecipToReservoirs struct {
	sector string
}

func NewHUCPrecipToReservoirs(p algo.Properties) (*HUCPrecipToReservoirs, error) {
	sector, err := p.Match("sector", "minor", algo.Word)
	if err != nil {
		return nil, err
	}
	return &HUCPrecipToReservoirs{sector: sector}, nil
}

func (*HUCPrecipToReservoirs) Name() string      { return HUCPrecipToReservoirsName }
func (*HUCPrecipToReservoirs) Inputs() []string  { return []string{"HUCPrecip"} }
func (*HUCPrecipToReservoirs) Outputs() []string { return nil }

func byKey(id series.TSID) string { return strconv.FormatInt(id.Key, 10) }

func (h *HUCPrecipToReservoirs) Begin(ctx context.Context, b *algo.Batch) (algo.Run, error) {
	in := b.Input("HUCPrecip").ID()

	rs, err := b.Store.Query(ctx, `SELECT outsd.site_datatype_id AS sdi
		FROM hdb_site_datatype srcsd
		JOIN hdb_site src ON src.site_id = srcsd.site_id
		JOIN hdb_site res ON res.hydrologic_unit = src.site_name
		JOIN hdb_objecttype obj ON obj.objecttype_id = res.objecttype_id
		JOIN hdb_site_datatype outsd ON outsd.site_id = res.site_id AND outsd.datatype_id = srcsd.datatype_id
		WHERE srcsd.site_datatype_id = ? AND obj.objecttype_name = ?
		ORDER BY res.site_id`, in.SDI, "cul site - "+h.sector+" reservoir")
	if err != nil {
		return nil, errors.Wrap(err, "find reservoir outputs")
	}
	outs, err := b.ResolveOutputSDIs(ctx, rs, "sdi", in.Interval, in.TableSelector, byKey)
	if err != nil {
		return nil, err
	}

	return algo.SliceFunc(func(_ context.Context, s algo.Slice) error {
		v, ok := s.Value("HUCPrecip")
		if !ok {
			return errors.Newf("no HUC precipitation at %v", s.Time)
		}
		for _, out := range outs.All() {
			b.Write(out, s.Time, v)
		}
		return nil
	}), nil
}
