// Copyright (c) The Thanos Community Authors.
// Licensed under the Apache License 2.0.

package reservoir

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

func param(sdi int64) algo.ParamConfig {
	return algo.ParamConfig{SDI: sdi, Interval: series.Month, TableSelector: series.RealTable}
}

func run(t *testing.T, db *store.DB, comp algo.Computation, alg algo.Algorithm) (algo.Result, error) {
	t.Helper()
	return algo.NewRunner(log.NewNopLogger(), db).Run(context.Background(), comp, alg, algo.YearStart(2020), algo.YearStart(2022))
}

// fixture creates reservoir 1 with precipitation 11, surface area 12 and evaporation 13, and the
// basin site 2.
func fixture(t *testing.T) *store.DB {
	db := storetest.New(t)
	storetest.AddObjectType(t, db, 1, "cul site - minor reservoir")
	storetest.AddSite(t, db, storetest.Site{ID: 1, Name: "RES", ObjectType: 1})
	storetest.AddSite(t, db, storetest.Site{ID: 2, Name: monthlyCoefSite, ObjectType: 1})
	for dt := int64(1); dt <= 3; dt++ {
		storetest.AddDatatype(t, db, dt, "datatype")
		storetest.AddSiteDatatype(t, db, 10+dt, 1, dt)
	}
	for i, attr := range []string{surfaceAreaAttr, evapRateAttr, fullnessAttr, salvageAttr, monthlyCoefAttr} {
		storetest.AddAttr(t, db, int64(i+1), attr, "number")
	}
	return db
}

var minor = algo.Computation{
	ID:      1,
	Inputs:  map[string]algo.ParamConfig{"ResPrecip": param(11)},
	Outputs: map[string]algo.ParamConfig{"evap": param(13)},
}

func TestMinorReservoirEvap(t *testing.T) {
	db := fixture(t)
	storetest.AddSiteCoefs(t, db, 1, 1, 1000)
	storetest.AddSiteCoefs(t, db, 1, 2, 10)
	storetest.AddSiteCoefs(t, db, 1, 3, 0.5)
	storetest.AddValue(t, db, series.Month, 11, algo.MonthStart(2020, time.January), 3, 0)

	alg, err := NewMinorReservoirEvap(algo.Properties{})
	testutil.Ok(t, err)

	// No salvage.
	res, err := run(t, db, minor, alg)
	testutil.Ok(t, err)
	testutil.Equals(t, 0, res.Written)

	storetest.AddSiteCoefs(t, db, 1, 4, 2)
	_, err = run(t, db, minor, alg)
	testutil.Ok(t, err)
	testutil.Equals(t, map[time.Time]float64{algo.MonthStart(2020, time.January): 7 * 500.0 / 12}, storetest.Values(t, db, series.Month, 13))
}

func TestMajorReservoirEvap(t *testing.T) {
	db := fixture(t)
	storetest.AddSiteCoefs(t, db, 1, 2, 24)
	storetest.AddSiteCoefs(t, db, 1, 4, 2)
	for m := time.January; m <= time.December; m++ {
		storetest.AddValue(t, db, series.Month, 11, algo.MonthStart(2020, m), 1, 0)
	}
	storetest.AddValue(t, db, series.Month, 12, algo.MonthStart(2020, time.January), 120, 0)
	// 2021 has a single month of precipitation.
	storetest.AddValue(t, db, series.Month, 11, algo.MonthStart(2021, time.January), 1, 0)
	storetest.AddValue(t, db, series.Month, 12, algo.MonthStart(2021, time.January), 120, 0)

	comp := algo.Computation{
		ID:      2,
		Inputs:  map[string]algo.ParamConfig{"ResPrecip": param(11), "SurfaceArea": param(12)},
		Outputs: map[string]algo.ParamConfig{"evap": param(13)},
	}
	alg, err := NewMajorReservoirEvap(algo.Properties{})
	testutil.Ok(t, err)

	// Eleven monthly coefficients.
	storetest.AddSiteCoefs(t, db, 2, 5, 0.25, 0.25, 0.25, 0.25, 0.25, 0.25, 0.25, 0.25, 0.25, 0.25, 0.25)
	_, err = run(t, db, comp, alg)
	testutil.NotOk(t, err)

	storetest.Exec(t, db, `INSERT INTO ref_site_coef (site_id, attr_id, coef_idx, coef) VALUES (2, 5, 12, 0.25)`)
	res, err := run(t, db, comp, alg)
	testutil.Ok(t, err)
	// Months without surface area fail.
	testutil.Equals(t, 11, res.FailedSlices)
	// (24 * 0.25 - max(12, 2) * 1 / 12) * 120 / 12
	testutil.Equals(t, map[time.Time]float64{algo.MonthStart(2020, time.January): 50}, storetest.Values(t, db, series.Month, 13))

	// Without salvage the computation aborts.
	storetest.Exec(t, db, `DELETE FROM ref_site_coef WHERE site_id = 1 AND attr_id = 4`)
	_, err = run(t, db, comp, alg)
	testutil.NotOk(t, err)
}
