// Copyright (c) The Thanos Community Authors.
// Licensed under the Apache License 2.0.

package fill

import (
	"context"
	"strconv"
	"strings"

	"github.com/efficientgo/core/errors"
	"github.com/go-kit/log/level"

	"github.com/thanos-community/hdbcomp/pkg/algo"
	"github.com/thanos-community/hdbcomp/pkg/series"
	"github.com/thanos-community/hdbcomp/pkg/store"
)

const FillMissingTSDatatypeMapName = "FILL_MISSING_TS_DATATYPE_MAP"

const defaultExtDataMap = "RiverWare Natural Flow Model to CUL"

// FillMissingTSDatatypeMap writes a constant to every missing step, from the fill start year
// through the current month, of the series mapped to an external data source for a set of
// datatypes.
type FillMissingTSDatatypeMap struct {
	source    string
	datatypes []any
	startYear int
	value     float64
}

func NewFillMissingTSDatatypeMap(p algo.Properties) (*FillMissingTSDatatypeMap, error) {
	f := &FillMissingTSDatatypeMap{}
	var err error
	if f.source, err = p.Match("extDataMap", defaultExtDataMap, algo.Text); err != nil {
		return nil, err
	}
	list, err := p.Required("datatypes")
	if err != nil {
		return nil, err
	}
	for _, d := range strings.Split(list, ",") {
		id, err := strconv.ParseInt(strings.TrimSpace(d), 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "property %q", "datatypes")
		}
		f.datatypes = append(f.datatypes, id)
	}
	if f.startYear, err = p.Int("fillStartYr", defaultFillStartYear); err != nil {
		return nil, err
	}
	if f.value, err = p.Float("fillValue", 0); err != nil {
		return nil, err
	}
	return f, nil
}

func (*FillMissingTSDatatypeMap) Name() string      { return FillMissingTSDatatypeMapName }
func (*FillMissingTSDatatypeMap) Inputs() []string  { return []string{"input"} }
func (*FillMissingTSDatatypeMap) Outputs() []string { return nil }

func (f *FillMissingTSDatatypeMap) Begin(ctx context.Context, b *algo.Batch) (algo.Run, error) {
	rs, err := b.Store.Query(ctx, `SELECT m.hdb_site_datatype_id AS sdi, m.hdb_interval_name AS interval_name
		FROM ref_ext_site_data_map m
		JOIN hdb_ext_data_source src ON src.ext_data_source_id = m.ext_data_source_id
		JOIN hdb_site_datatype sd ON sd.site_datatype_id = m.hdb_site_datatype_id
		WHERE src.ext_data_source_name = ? AND m.is_active_y_n = 'Y'
			AND sd.datatype_id IN (`+strings.TrimSuffix(strings.Repeat("?, ", len(f.datatypes)), ", ")+`)
		ORDER BY m.mapping_id`, append([]any{f.source}, f.datatypes...)...)
	if err != nil {
		return nil, errors.Wrap(err, "mapped series")
	}
	var outs []*series.TimeSeries
	err = rs.Each(func(r store.Row) error {
		sdi, err := r.Int64("sdi")
		if err != nil {
			return err
		}
		name, err := r.String("interval_name")
		if err != nil {
			return err
		}
		iv, err := series.ParseInterval(name)
		if err != nil {
			return errors.Wrapf(store.ErrMalformed, "sdi %d: %v", sdi, err)
		}
		if iv.IsInstant() {
			return errors.Wrapf(store.ErrMalformed, "sdi %d: instantaneous series cannot be filled", sdi)
		}
		id, err := b.Store.LookupTSID(ctx, sdi, iv, series.RealTable)
		if err != nil {
			return err
		}
		outs = append(outs, b.NewOutput(id))
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "resolve mapped series")
	}
	if len(outs) == 0 {
		return nil, errors.Newf("no active series mapped to %q for datatypes %v", f.source, f.datatypes)
	}

	return algo.EndFunc(func(ctx context.Context) error {
		from := algo.YearStart(f.startYear)
		for _, out := range outs {
			iv := out.ID.Interval
			until := iv.Add(iv.Truncate(b.Now()), 1)
			existing := series.New(out.ID)
			if err := b.Store.FillTimeSeries(ctx, existing, from, until); err != nil {
				return err
			}
			var filled int
			for _, t := range iv.Steps(from, until) {
				if _, ok := existing.At(t); ok {
					continue
				}
				b.Write(out, t, f.value)
				filled++
			}
			level.Debug(b.Logger).Log("msg", "filled missing steps", "tsid", out.ID.String(), "steps", filled)
		}
		return nil
	}), nil
}
