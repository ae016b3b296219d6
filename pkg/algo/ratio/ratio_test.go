// Copyright (c) The Thanos Community Authors.
// Licensed under the Apache License 2.0.

package ratio

import (
	"bytes"
	"context"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/efficientgo/core/testutil"
	"github.com/go-kit/log"

	"github.com/thanos-community/hdbcomp/pkg/algo"
	"github.com/thanos-community/hdbcomp/pkg/series"
	"github.com/thanos-community/hdbcomp/pkg/store"
	"github.com/thanos-community/hdbcomp/pkg/store/storetest"
)

func year(y int) time.Time { return algo.YearStart(y) }

func run(t *testing.T, db *store.DB, logger log.Logger, comp algo.Computation, alg algo.Algorithm, from, until time.Time) (algo.Result, error) {
	t.Helper()
	return algo.NewRunner(logger, db).Run(context.Background(), comp, alg, from, until)
}

func param(sdi int64, iv series.Interval) algo.ParamConfig {
	return algo.ParamConfig{SDI: sdi, Interval: iv, TableSelector: series.RealTable}
}

// fixture creates sites 1 to 4 in basin 9 with datatypes 1 and 2. Site datatypes are numbered
// site*10+datatype; site 4 has no datatype 2.
func fixture(t *testing.T) *store.DB {
	db := storetest.New(t)
	storetest.AddObjectType(t, db, 1, "cul site")
	storetest.AddSite(t, db, storetest.Site{ID: 9, Name: "BASIN", ObjectType: 1})
	for i, name := range []string{"A", "B", "C", "D"} {
		storetest.AddSite(t, db, storetest.Site{ID: int64(i + 1), Name: name, ObjectType: 1, Basin: 9})
	}
	storetest.AddDatatype(t, db, 1, "depletion")
	storetest.AddDatatype(t, db, 2, "ratio")
	for site := int64(1); site <= 4; site++ {
		storetest.AddSiteDatatype(t, db, site*10+1, site, 1)
		if site != 4 {
			storetest.AddSiteDatatype(t, db, site*10+2, site, 2)
		}
	}
	storetest.AddLoadingApplication(t, db, 1, algo.DefaultEstimationProcess)
	storetest.AddLoadingApplication(t, db, 2, algo.AggDisaggProcess)
	storetest.AddLoadingApplication(t, db, 3, algo.FillMissingProcess)
	return db
}

func TestStateTribRatioCompute(t *testing.T) {
	db := fixture(t)
	for _, v := range []struct {
		sdi   int64
		y2000 float64
		y2001 float64
	}{{11, 1, 3}, {21, 3, 1}, {31, 100, 100}, {41, 4, 4}} {
		storetest.AddValue(t, db, series.Year, v.sdi, year(2000), v.y2000, 0)
		storetest.AddValue(t, db, series.Year, v.sdi, year(2001), v.y2001, 0)
	}

	alg, err := NewStateTribRatioCompute(algo.Properties{"zeroSites": "'C'", "src_startyr": "2000", "src_endyr": "2001"})
	testutil.Ok(t, err)
	var buf bytes.Buffer
	_, err = run(t, db, log.NewLogfmtLogger(&buf), algo.Computation{
		ID:      1,
		Inputs:  map[string]algo.ParamConfig{"input": param(11, series.Year)},
		Outputs: map[string]algo.ParamConfig{"ratio": param(12, series.Year)},
	}, alg, year(2000), year(2002))
	testutil.Ok(t, err)

	testutil.Equals(t, map[time.Time]float64{year(1985): 0.25}, storetest.Values(t, db, series.Year, 12))
	testutil.Equals(t, map[time.Time]float64{year(1985): 0.25}, storetest.Values(t, db, series.Year, 22))
	testutil.Equals(t, map[time.Time]float64{year(1985): 0}, storetest.Values(t, db, series.Year, 32))
	// Site D has no ratio series, so the written ratios only sum to 0.5.
	testutil.Assert(t, strings.Contains(buf.String(), "basin ratios do not sum to 1"), buf.String())

	_, err = NewStateTribRatioCompute(algo.Properties{"zeroSites": "'C'); DROP TABLE hdb_site; --"})
	testutil.NotOk(t, err)
	_, err = NewStateTribRatioCompute(algo.Properties{"src_startyr": "2000", "src_endyr": "1999"})
	testutil.NotOk(t, err)
}

func TestStateTribRatioCompute_RatiosSumToOne(t *testing.T) {
	db := fixture(t)
	storetest.AddSiteDatatype(t, db, 42, 4, 2)
	for _, v := range []struct {
		sdi   int64
		y2000 float64
		y2001 float64
	}{{11, 1, 1}, {21, 1, 2}, {31, 1, 3}, {41, 0, 1}} {
		storetest.AddValue(t, db, series.Year, v.sdi, year(2000), v.y2000, 0)
		storetest.AddValue(t, db, series.Year, v.sdi, year(2001), v.y2001, 0)
	}

	alg, err := NewStateTribRatioCompute(algo.Properties{"src_startyr": "2000", "src_endyr": "2001"})
	testutil.Ok(t, err)
	var buf bytes.Buffer
	_, err = run(t, db, log.NewLogfmtLogger(&buf), algo.Computation{
		ID:      1,
		Inputs:  map[string]algo.ParamConfig{"input": param(11, series.Year)},
		Outputs: map[string]algo.ParamConfig{"ratio": param(12, series.Year)},
	}, alg, year(2000), year(2002))
	testutil.Ok(t, err)

	var sum float64
	for _, sdi := range []int64{12, 22, 32, 42} {
		got := storetest.Values(t, db, series.Year, sdi)
		testutil.Equals(t, 1, len(got))
		sum += got[year(1985)]
	}
	testutil.Assert(t, math.Abs(sum-1) <= 1e-7, "ratios sum to %v", sum)
	testutil.Assert(t, !strings.Contains(buf.String(), "do not sum to 1"), buf.String())
}

func TestParseSiteList(t *testing.T) {
	testutil.Equals(t, map[string]struct{}{}, parseSiteList("null"))
	testutil.Equals(t, map[string]struct{}{"Crystal": {}, "Blue Mesa": {}}, parseSiteList("'Crystal', 'Blue Mesa'"))
}

func TestRatioCompute(t *testing.T) {
	db := fixture(t)
	storetest.AddValue(t, db, series.Year, 11, year(2000), 1, 0)
	storetest.AddValue(t, db, series.Year, 11, year(2001), 3, 0)
	storetest.AddValue(t, db, series.Year, 11, year(2002), 5, 1)
	storetest.AddValue(t, db, series.Year, 21, year(2000), 3, 0)
	storetest.AddValue(t, db, series.Year, 21, year(2001), 1, 0)
	storetest.AddValue(t, db, series.Year, 21, year(2002), 5, 0)

	alg, err := NewRatioCompute(algo.Properties{"coeff_year": "1990"})
	testutil.Ok(t, err)
	_, err = run(t, db, log.NewNopLogger(), algo.Computation{
		ID: 2,
		Inputs: map[string]algo.ParamConfig{
			"input1": param(11, series.Year),
			"input2": param(21, series.Year),
		},
		Outputs: map[string]algo.ParamConfig{"output": param(12, series.Year)},
	}, alg, year(2000), year(2003))
	testutil.Ok(t, err)
	testutil.Equals(t, map[time.Time]float64{year(1990): 0.5}, storetest.Values(t, db, series.Year, 12))
}

func TestSectorRatioDisagg(t *testing.T) {
	db := fixture(t)
	storetest.AddValue(t, db, series.Year, 22, year(1985), 0.25, 0)
	storetest.AddValue(t, db, series.Year, 11, year(2000), 100, 0)

	alg, err := NewSectorRatioDisagg(algo.Properties{})
	testutil.Ok(t, err)
	comp := algo.Computation{
		ID:         3,
		Properties: algo.Properties{"validation_flag": "'V'", "flags": "E"},
		Inputs: map[string]algo.ParamConfig{
			"totalInput":  param(11, series.Year),
			"coefficient": param(22, series.Year),
		},
		Outputs: map[string]algo.ParamConfig{
			"sector1": param(12, series.Year),
			"sector2": param(32, series.Year),
		},
	}
	// A single total is not enough.
	_, err = run(t, db, log.NewNopLogger(), comp, alg, year(2000), year(2002))
	testutil.NotOk(t, err)

	storetest.AddValue(t, db, series.Year, 11, year(2001), 200, 0)
	storetest.AddValue(t, db, series.Year, 11, year(1999), 1000, 3)
	_, err = run(t, db, log.NewNopLogger(), comp, alg, year(2000), year(2002))
	testutil.Ok(t, err)

	s1 := storetest.Samples(t, db, series.Year, 12)
	testutil.Equals(t, 2, len(s1))
	testutil.Equals(t, 25.0, s1[0].Value)
	testutil.Equals(t, 50.0, s1[1].Value)
	testutil.Equals(t, byte(0), s1[0].Validation)
	testutil.Equals(t, "E", s1[0].Derivation)

	s2 := storetest.Samples(t, db, series.Year, 32)
	testutil.Equals(t, 2, len(s2))
	testutil.Equals(t, 75.0, s2[0].Value)
	testutil.Equals(t, 150.0, s2[1].Value)
	testutil.Equals(t, byte('V'), s2[0].Validation)
}

func addFullYear(t *testing.T, db *store.DB, sdi int64, y int) {
	storetest.AddValue(t, db, series.Month, sdi, algo.MonthStart(y, time.January), 5, 0)
	for m := time.February; m <= time.December; m++ {
		storetest.AddValue(t, db, series.Month, sdi, algo.MonthStart(y, m), 1, 0)
	}
}

func TestSourceDistributionCompute(t *testing.T) {
	comp := algo.Computation{
		ID:      4,
		Inputs:  map[string]algo.ParamConfig{"input": param(11, series.Month)},
		Outputs: map[string]algo.ParamConfig{"output": param(12, series.Month)},
	}

	t.Run("full years", func(t *testing.T) {
		db := fixture(t)
		addFullYear(t, db, 11, 2000)
		addFullYear(t, db, 11, 2001)
		storetest.AddValue(t, db, series.Month, 11, algo.MonthStart(2002, time.January), 100, 0)
		storetest.AddValue(t, db, series.Month, 11, algo.MonthStart(2003, time.January), 100, 3)

		alg, err := NewSourceDistributionCompute(CULSourceDistributionComputeName, algo.Properties{})
		testutil.Ok(t, err)
		_, err = run(t, db, log.NewNopLogger(), comp, alg, year(2000), year(2004))
		testutil.Ok(t, err)

		exp := map[time.Time]float64{algo.MonthStart(1985, time.January): 0.3125}
		for m := time.February; m <= time.December; m++ {
			exp[algo.MonthStart(1985, m)] = 0.0625
		}
		testutil.Equals(t, exp, storetest.Values(t, db, series.Month, 12))
	})
	t.Run("partial years", func(t *testing.T) {
		db := fixture(t)
		storetest.AddValue(t, db, series.Month, 11, algo.MonthStart(2002, time.January), 100, 0)
		storetest.AddValue(t, db, series.Month, 12, algo.MonthStart(1985, time.January), 9, 0)

		alg, err := NewSourceDistributionCompute(CULSourceDistributionComputeName, algo.Properties{})
		testutil.Ok(t, err)
		_, err = run(t, db, log.NewNopLogger(), comp, alg, year(2002), year(2003))
		testutil.NotOk(t, err)

		alg, err = NewSourceDistributionCompute(SourceDistributionComputeName, algo.Properties{"ignore_partials": "false"})
		testutil.Ok(t, err)
		res, err := run(t, db, log.NewNopLogger(), comp, alg, year(2002), year(2003))
		testutil.Ok(t, err)
		testutil.Equals(t, 1, res.Deleted)
		testutil.Equals(t, map[time.Time]float64{}, storetest.Values(t, db, series.Month, 12))
	})
}
