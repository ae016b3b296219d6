// Copyright (c) The Thanos Community Authors.
// Licensed under the Apache License 2.0.

package spatial

import (
	"context"
	"testing"
	"time"

	"github.com/efficientgo/core/testutil"
	"github.com/go-kit/log"

	"github.com/thanos-community/hdbcomp/pkg/algo"
	"github.com/thanos-community/hdbcomp/pkg/series"
	"github.com/thanos-community/hdbcomp/pkg/store"
	"github.com/thanos-community/hdbcomp/pkg/store/storetest"
)

var (
	jan = storetest.Date(2020, time.January, 1)
	feb = storetest.Date(2020, time.February, 1)
)

func run(t *testing.T, db *store.DB, comp algo.Computation, alg algo.Algorithm) (algo.Result, error) {
	t.Helper()
	return algo.NewRunner(log.NewNopLogger(), db).Run(context.Background(), comp, alg, jan, storetest.Date(2021, time.January, 1))
}

func param(sdi int64, iv series.Interval) algo.ParamConfig {
	return algo.ParamConfig{SDI: sdi, Interval: iv, TableSelector: series.RealTable}
}

func TestChildCopyMultiplier(t *testing.T) {
	db := storetest.New(t)
	storetest.AddObjectType(t, db, 1, "cul site")
	storetest.AddSite(t, db, storetest.Site{ID: 1, Name: "PARENT", ObjectType: 1})
	storetest.AddSite(t, db, storetest.Site{ID: 2, Name: "CHILD", ObjectType: 1, Parent: 1})
	storetest.AddSite(t, db, storetest.Site{ID: 3, Name: "TEMPLATE", ObjectType: 1})
	storetest.AddDatatype(t, db, 10, "flow")
	storetest.AddDatatype(t, db, 11, "depletion")
	storetest.AddSiteDatatype(t, db, 100, 1, 10)
	storetest.AddSiteDatatype(t, db, 201, 2, 11)
	storetest.AddSiteDatatype(t, db, 300, 3, 11)
	storetest.AddValue(t, db, series.Month, 100, jan, 100, 0)
	storetest.AddValue(t, db, series.Month, 300, feb, 5, 0)

	alg, err := NewChildCopyMultiplier(algo.Properties{"multiplier": "-1.0"})
	testutil.Ok(t, err)
	res, err := run(t, db, algo.Computation{
		ID:     1,
		Inputs: map[string]algo.ParamConfig{"input": param(100, series.Month), "datatype": param(300, series.Month)},
	}, alg)
	testutil.Ok(t, err)
	testutil.Equals(t, map[time.Time]float64{jan: -100}, storetest.Values(t, db, series.Month, 201))
	// The datatype sample in February is a slice without input.
	testutil.Equals(t, 2, res.Slices)
	testutil.Equals(t, 0, res.FailedSlices)
}

func TestChildCopyMultiplier_NoChild(t *testing.T) {
	db := storetest.New(t)
	storetest.AddObjectType(t, db, 1, "cul site")
	storetest.AddSite(t, db, storetest.Site{ID: 1, Name: "PARENT", ObjectType: 1})
	storetest.AddDatatype(t, db, 10, "flow")
	storetest.AddSiteDatatype(t, db, 100, 1, 10)
	storetest.AddValue(t, db, series.Month, 100, jan, 100, 0)

	alg, err := NewChildCopyMultiplier(algo.Properties{})
	testutil.Ok(t, err)
	res, err := run(t, db, algo.Computation{
		ID:     1,
		Inputs: map[string]algo.ParamConfig{"input": param(100, series.Month), "datatype": param(100, series.Month)},
	}, alg)
	testutil.Ok(t, err)
	testutil.Equals(t, 0, res.Written)
}

// hucFixture has HUC 5 with minor reservoirs 6 and 7 and major reservoir 8.
func hucFixture(t *testing.T) *store.DB {
	db := storetest.New(t)
	storetest.AddObjectType(t, db, 2, "cul site - minor reservoir")
	storetest.AddObjectType(t, db, 3, "huc")
	storetest.AddObjectType(t, db, 4, "cul site - major reservoir")
	storetest.AddSite(t, db, storetest.Site{ID: 5, Name: "14010001", ObjectType: 3})
	storetest.AddSite(t, db, storetest.Site{ID: 6, Name: "RES A", ObjectType: 2, HUC: "14010001"})
	storetest.AddSite(t, db, storetest.Site{ID: 7, Name: "RES B", ObjectType: 2, HUC: "14010001"})
	storetest.AddSite(t, db, storetest.Site{ID: 8, Name: "RES C", ObjectType: 4, HUC: "14010001"})
	storetest.AddSite(t, db, storetest.Site{ID: 9, Name: "LONE", ObjectType: 2})
	storetest.AddDatatype(t, db, 20, "precip")
	storetest.AddDatatype(t, db, 30, "depletion")
	for _, site := range []int64{5, 6, 7, 8, 9} {
		storetest.AddSiteDatatype(t, db, site*100, site, 20)
		storetest.AddSiteDatatype(t, db, site*100+10, site, 30)
	}
	return db
}

func TestHUCPrecipToReservoirs(t *testing.T) {
	db := hucFixture(t)
	storetest.AddValue(t, db, series.Month, 500, jan, 1.25, 0)

	alg, err := NewHUCPrecipToReservoirs(algo.Properties{"sector": "minor"})
	testutil.Ok(t, err)
	_, err = run(t, db, algo.Computation{ID: 2, Inputs: map[string]algo.ParamConfig{"HUCPrecip": param(500, series.Month)}}, alg)
	testutil.Ok(t, err)

	testutil.Equals(t, map[time.Time]float64{jan: 1.25}, storetest.Values(t, db, series.Month, 600))
	testutil.Equals(t, map[time.Time]float64{jan: 1.25}, storetest.Values(t, db, series.Month, 700))
	testutil.Equals(t, map[time.Time]float64{}, storetest.Values(t, db, series.Month, 800))

	_, err = NewHUCPrecipToReservoirs(algo.Properties{"sector": "minor' OR '1'='1"})
	testutil.NotOk(t, err)
}

func TestDynamicAggregate(t *testing.T) {
	db := hucFixture(t)
	storetest.AddValue(t, db, series.Month, 610, jan, 2, 0)
	storetest.AddValue(t, db, series.Month, 710, jan, 3, 0)
	storetest.AddValue(t, db, series.Month, 610, feb, 4, 0)

	alg, err := NewDynamicAggregate(DynamicSpatialAggregateName, algo.Properties{"peer_site_method": "huc", "output_site_method": "HUC"})
	testutil.Ok(t, err)
	_, err = run(t, db, algo.Computation{ID: 3, Inputs: map[string]algo.ParamConfig{"input": param(610, series.Month)}}, alg)
	testutil.Ok(t, err)
	testutil.Equals(t, map[time.Time]float64{jan: 5, feb: 4}, storetest.Values(t, db, series.Month, 510))

	// Site 9 is in no HUC.
	storetest.AddValue(t, db, series.Month, 910, jan, 1, 0)
	_, err = run(t, db, algo.Computation{ID: 4, Inputs: map[string]algo.ParamConfig{"input": param(910, series.Month)}}, alg)
	testutil.NotOk(t, err)

	_, err = NewDynamicAggregate(DynamicSiteAggregateName, algo.Properties{"output_site_method": "CompDepends"})
	testutil.NotOk(t, err)
}

func TestDynamicSpatialRelation(t *testing.T) {
	db := hucFixture(t)
	storetest.AddAttr(t, db, 1, "contributes to", "number")
	storetest.Exec(t, db, `INSERT INTO ref_spatial_relation (a_site_id, b_site_id, attr_id, value) VALUES (6, 9, 1, 0.5), (7, 9, 1, 0.25)`)
	storetest.AddValue(t, db, series.Month, 610, jan, 2, 0)
	storetest.AddValue(t, db, series.Month, 710, jan, 3, 0)

	alg, err := NewDynamicSpatialRelation(algo.Properties{"attribute": "contributes to"})
	testutil.Ok(t, err)
	_, err = run(t, db, algo.Computation{ID: 5, Inputs: map[string]algo.ParamConfig{"input": param(610, series.Month)}}, alg)
	testutil.Ok(t, err)
	testutil.Equals(t, map[time.Time]float64{jan: 1.75}, storetest.Values(t, db, series.Month, 910))

	// No relation for site 8 is not an error.
	storetest.AddValue(t, db, series.Month, 810, jan, 3, 0)
	res, err := run(t, db, algo.Computation{ID: 6, Inputs: map[string]algo.ParamConfig{"input": param(810, series.Month)}}, alg)
	testutil.Ok(t, err)
	testutil.Equals(t, 0, res.Written)

	_, err = NewDynamicSpatialRelation(algo.Properties{})
	testutil.NotOk(t, err)
}

func TestRatioFill(t *testing.T) {
	db := storetest.New(t)
	storetest.AddObjectType(t, db, 1, "cul site")
	storetest.AddSite(t, db, storetest.Site{ID: 20, Name: "BASIN", ObjectType: 1})
	storetest.AddSite(t, db, storetest.Site{ID: 21, Name: "A", ObjectType: 1, Basin: 20})
	storetest.AddSite(t, db, storetest.Site{ID: 22, Name: "B", ObjectType: 1, Basin: 20})
	storetest.AddDatatype(t, db, 40, "total")
	storetest.AddDatatype(t, db, 41, "ratio")
	for _, site := range []int64{20, 21, 22} {
		storetest.AddSiteDatatype(t, db, site*100+40, site, 40)
		storetest.AddSiteDatatype(t, db, site*100+41, site, 41)
	}
	storetest.AddValue(t, db, series.Year, 2141, storetest.Date(1985, time.January, 1), 0.25, 0)
	storetest.AddValue(t, db, series.Year, 2241, storetest.Date(1985, time.January, 1), 0.75, 0)
	storetest.AddValue(t, db, series.Year, 2040, jan, 100, 0)

	alg, err := NewRatioFill(algo.Properties{})
	testutil.Ok(t, err)
	_, err = run(t, db, algo.Computation{ID: 7, Inputs: map[string]algo.ParamConfig{
		"total": param(2040, series.Year),
		"ratio": param(2141, series.Year),
	}}, alg)
	testutil.Ok(t, err)
	testutil.Equals(t, map[time.Time]float64{jan: 25}, storetest.Values(t, db, series.Year, 2140))
	testutil.Equals(t, map[time.Time]float64{jan: 75}, storetest.Values(t, db, series.Year, 2240))

	alg, err = NewRatioFill(algo.Properties{"coeff_year": "1990"})
	testutil.Ok(t, err)
	_, err = run(t, db, algo.Computation{ID: 8, Inputs: map[string]algo.ParamConfig{
		"total": param(2040, series.Year),
		"ratio": param(2141, series.Year),
	}}, alg)
	testutil.NotOk(t, err)
}
