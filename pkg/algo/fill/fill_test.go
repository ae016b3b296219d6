// Copyright (c) The Thanos Community Authors.
// Licensed under the Apache License 2.0.

package fill

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

func run(t *testing.T, db *store.DB, now time.Time, comp algo.Computation, alg algo.Algorithm, from, until time.Time) (algo.Result, error) {
	t.Helper()
	r := algo.NewRunner(log.NewNopLogger(), db, algo.WithNow(func() time.Time { return now }))
	return r.Run(context.Background(), comp, alg, from, until)
}

func param(sdi int64, iv series.Interval) algo.ParamConfig {
	return algo.ParamConfig{SDI: sdi, Interval: iv, TableSelector: series.RealTable}
}

func month(y int, m time.Month) time.Time { return algo.MonthStart(y, m) }

// fixture creates sites 1 to 3, site 1 being the parent of the others, with datatypes 1 to 4.
// Site datatypes are numbered site*10+datatype.
func fixture(t *testing.T) *store.DB {
	db := storetest.New(t)
	storetest.AddObjectType(t, db, 1, "cul site")
	storetest.AddSite(t, db, storetest.Site{ID: 1, Name: "TRIB", ObjectType: 1})
	storetest.AddSite(t, db, storetest.Site{ID: 2, Name: "HUC A", ObjectType: 1, Parent: 1})
	storetest.AddSite(t, db, storetest.Site{ID: 3, Name: "HUC B", ObjectType: 1, Parent: 1})
	for dt := int64(1); dt <= 4; dt++ {
		storetest.AddDatatype(t, db, dt, "datatype")
		for site := int64(1); site <= 3; site++ {
			storetest.AddSiteDatatype(t, db, site*10+dt, site, dt)
		}
	}
	storetest.AddLoadingApplication(t, db, 1, algo.DefaultEstimationProcess)
	storetest.AddLoadingApplication(t, db, 2, algo.AggDisaggProcess)
	storetest.AddLoadingApplication(t, db, 3, algo.FillMissingProcess)
	storetest.AddLoadingApplication(t, db, 4, compEditProcess)
	return db
}

func addYear(t *testing.T, db *store.DB, sdi int64, y int) {
	for m := time.January; m <= time.December; m++ {
		storetest.AddValue(t, db, series.Month, sdi, month(y, m), float64(m), 0)
	}
}

var single = algo.Computation{
	ID:      1,
	Inputs:  map[string]algo.ParamConfig{"input": param(11, series.Month)},
	Outputs: map[string]algo.ParamConfig{"output": param(12, series.Month)},
}

func TestCopyAverageToTimeseries(t *testing.T) {
	db := fixture(t)
	addYear(t, db, 11, 2000)
	storetest.AddValue(t, db, series.Month, 11, month(2001, time.January), 3, 0)
	storetest.AddValue(t, db, series.Month, 11, month(2001, time.February), 100, 3)

	alg, err := NewCopyAverageToTimeseries(algo.Properties{})
	testutil.Ok(t, err)
	_, err = run(t, db, storetest.Date(1972, time.March, 15), single, alg, algo.YearStart(2000), algo.YearStart(2002))
	testutil.Ok(t, err)

	got := storetest.Values(t, db, series.Month, 12)
	testutil.Equals(t, 15, len(got))
	testutil.Equals(t, 2.0, got[month(1971, time.January)])
	testutil.Equals(t, 2.0, got[month(1972, time.February)])
	testutil.Equals(t, 3.0, got[month(1972, time.March)])

	// Only January has data.
	storetest.AddValue(t, db, series.Month, 21, month(2000, time.January), 1, 0)
	comp := single
	comp.Inputs = map[string]algo.ParamConfig{"input": param(21, series.Month)}
	comp.Outputs = map[string]algo.ParamConfig{"output": param(22, series.Month)}
	res, err := run(t, db, storetest.Date(1972, time.March, 15), comp, alg, algo.YearStart(2000), algo.YearStart(2002))
	testutil.Ok(t, err)
	testutil.Equals(t, 0, res.Written)
}

func TestFillMissingClimateData(t *testing.T) {
	db := fixture(t)
	addYear(t, db, 11, 2000)
	storetest.AddValue(t, db, series.Month, 11, month(2001, time.March), 50, 4)
	storetest.AddValue(t, db, series.Month, 11, month(2001, time.April), 4, 0)

	alg, err := NewFillMissingClimateData(algo.Properties{"fillStartYr": "2000", "fillEndYr": "2001"})
	testutil.Ok(t, err)
	_, err = run(t, db, time.Now(), single, alg, algo.YearStart(2000), algo.YearStart(2002))
	testutil.Ok(t, err)

	exp := map[time.Time]float64{}
	for m := time.January; m <= time.December; m++ {
		if m != time.April {
			exp[month(2001, m)] = float64(m)
		}
	}
	testutil.Equals(t, exp, storetest.Values(t, db, series.Month, 12))

	_, err = NewFillMissingClimateData(algo.Properties{"fillStartYr": "2000", "fillEndYr": "1999"})
	testutil.NotOk(t, err)
}

func TestFillMissingTSDatatypeMap(t *testing.T) {
	db := fixture(t)
	storetest.Exec(t, db, `INSERT INTO hdb_ext_data_source (ext_data_source_id, ext_data_source_name) VALUES (1, ?)`, defaultExtDataMap)
	storetest.Exec(t, db, `INSERT INTO ref_ext_site_data_map (mapping_id, ext_data_source_id, hdb_site_datatype_id, hdb_interval_name, is_active_y_n)
		VALUES (1, 1, 11, 'month', 'Y'), (2, 1, 21, 'month', 'N'), (3, 1, 12, 'month', 'Y')`)
	storetest.AddValue(t, db, series.Month, 11, month(2020, time.February), 5, 0)

	alg, err := NewFillMissingTSDatatypeMap(algo.Properties{"datatypes": "1, 3", "fillStartYr": "2020"})
	testutil.Ok(t, err)
	comp := algo.Computation{ID: 2, Inputs: map[string]algo.ParamConfig{"input": param(11, series.Month)}}
	_, err = run(t, db, storetest.Date(2020, time.March, 10), comp, alg, algo.YearStart(2020), algo.YearStart(2021))
	testutil.Ok(t, err)

	testutil.Equals(t, map[time.Time]float64{
		month(2020, time.January):  0,
		month(2020, time.February): 5,
		month(2020, time.March):    0,
	}, storetest.Values(t, db, series.Month, 11))
	testutil.Equals(t, map[time.Time]float64{}, storetest.Values(t, db, series.Month, 21))
	testutil.Equals(t, map[time.Time]float64{}, storetest.Values(t, db, series.Month, 12))

	alg, err = NewFillMissingTSDatatypeMap(algo.Properties{"datatypes": "4"})
	testutil.Ok(t, err)
	_, err = run(t, db, storetest.Date(2020, time.March, 10), comp, alg, algo.YearStart(2020), algo.YearStart(2021))
	testutil.NotOk(t, err)

	_, err = NewFillMissingTSDatatypeMap(algo.Properties{})
	testutil.NotOk(t, err)
	_, err = NewFillMissingTSDatatypeMap(algo.Properties{"datatypes": "1", "extDataMap": "x' OR 'a'='a"})
	testutil.NotOk(t, err)
}

func TestEstimateFromSource(t *testing.T) {
	db := fixture(t)
	for y := 2000; y <= 2005; y++ {
		storetest.AddValue(t, db, series.Month, 11, month(y, time.January), float64(y-1999), 0)
	}
	storetest.AddValue(t, db, series.Month, 11, month(2004, time.January+1), 99, 3)
	storetest.AddValue(t, db, series.Month, 11, month(2006, time.February), 10, 0)
	now := storetest.Date(2006, time.March, 15)

	alg, err := NewEstimateFromSource(algo.Properties{})
	testutil.Ok(t, err)
	_, err = run(t, db, now, single, alg, algo.YearStart(2006), algo.YearStart(2007))
	testutil.Ok(t, err)
	// Mean of January 2001 to 2005; March has no source data.
	testutil.Equals(t, map[time.Time]float64{month(2006, time.January): 4}, storetest.Values(t, db, series.Month, 12))

	storetest.AddAttr(t, db, 1, "end date", "date")
	storetest.Exec(t, db, `INSERT INTO ref_site_coef (site_id, attr_id, coef_idx, coef, effective_end_date_time) VALUES (1, 1, 1, 0, ?)`,
		storetest.Date(2005, time.December, 31))
	alg, err = NewEstimateFromSource(algo.Properties{"endDateAttribute": "end date"})
	testutil.Ok(t, err)
	_, err = run(t, db, now, single, alg, algo.YearStart(2006), algo.YearStart(2007))
	testutil.Ok(t, err)
	testutil.Equals(t, map[time.Time]float64{month(2006, time.January): 0}, storetest.Values(t, db, series.Month, 12))

	alg, err = NewEstimateFromSource(algo.Properties{"endDateAttribute": "unknown"})
	testutil.Ok(t, err)
	_, err = run(t, db, now, single, alg, algo.YearStart(2006), algo.YearStart(2007))
	testutil.NotOk(t, err)
}

func TestTrailingMeans(t *testing.T) {
	var smps []series.Sample
	for y := 2000; y <= 2006; y++ {
		smps = append(smps, series.Sample{Time: month(y, time.May), Value: float64(y - 1999)})
	}
	means := trailingMeans(smps)
	testutil.Equals(t, 1.0, means[time.May][2000])
	testutil.Equals(t, 1.5, means[time.May][2001])
	testutil.Equals(t, 5.0, means[time.May][2006])

	v, ok := latest(means[time.May], 2010)
	testutil.Assert(t, ok)
	testutil.Equals(t, 5.0, v)
	_, ok = latest(means[time.May], 1999)
	testutil.Assert(t, !ok)
}

func TestEstimateCUFromPopulation(t *testing.T) {
	db := fixture(t)
	storetest.AddValue(t, db, series.Year, 12, algo.YearStart(2000), 100, 0)
	storetest.AddValue(t, db, series.Year, 13, algo.YearStart(2000), 100, 0)
	storetest.AddValue(t, db, series.Year, 13, algo.YearStart(2001), 150, 0)
	storetest.AddValue(t, db, series.Year, 13, algo.YearStart(2002), 200, 0)
	storetest.AddValue(t, db, series.Year, 21, algo.YearStart(2000), 10, 0)
	storetest.AddValue(t, db, series.Year, 31, algo.YearStart(2000), 20, 0)
	now := storetest.Date(2002, time.June, 1)

	alg, err := NewEstimateCUFromPopulation(algo.Properties{})
	testutil.Ok(t, err)

	t.Run("state tributary", func(t *testing.T) {
		comp := algo.Computation{
			ID: 3,
			Inputs: map[string]algo.ParamConfig{
				"est_mi_cu": param(21, series.Year),
				"est_pop":   param(12, series.Year),
				"cur_pop":   param(13, series.Year),
			},
			Outputs: map[string]algo.ParamConfig{"cur_mi_cu": param(24, series.Year)},
		}
		// The 2000 estimates also produce 2001, the year before the last current population.
		_, err := run(t, db, now, comp, alg, algo.YearStart(2000), algo.YearStart(2001))
		testutil.Ok(t, err)
		testutil.Equals(t, map[time.Time]float64{algo.YearStart(2000): 10, algo.YearStart(2001): 15}, storetest.Values(t, db, series.Year, 24))
		testutil.Equals(t, map[time.Time]float64{algo.YearStart(2000): 20, algo.YearStart(2001): 30}, storetest.Values(t, db, series.Year, 34))
	})
	t.Run("state HUC", func(t *testing.T) {
		storetest.AddValue(t, db, series.Year, 21, algo.YearStart(2001), 12, 0)
		comp := algo.Computation{
			ID: 4,
			Inputs: map[string]algo.ParamConfig{
				"est_mi_cu": param(21, series.Year),
				"est_pop":   param(22, series.Year),
				"cur_pop":   param(23, series.Year),
			},
			Outputs: map[string]algo.ParamConfig{"cur_mi_cu": param(24, series.Year)},
		}
		_, err := run(t, db, now, comp, alg, algo.YearStart(2001), algo.YearStart(2002))
		testutil.Ok(t, err)
		testutil.Equals(t, 18.0, storetest.Values(t, db, series.Year, 24)[algo.YearStart(2001)])
	})
}
