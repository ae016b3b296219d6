// Copyright (c) The Thanos Community Authors.
// Licensed under the Apache License 2.0.

package factory

import (
	"sort"
	"strings"

	"github.com/efficientgo/core/errors"

	"github.com/thanos-community/hdbcomp/pkg/algo"
	"github.com/thanos-community/hdbcomp/pkg/algo/fill"
	"github.com/thanos-community/hdbcomp/pkg/algo/ratio"
	"github.com/thanos-community/hdbcomp/pkg/algo/reservoir"
	"github.com/thanos-community/hdbcomp/pkg/algo/spatial"
	"github.com/thanos-community/hdbcomp/pkg/algo/temporal"
)

type constructor func(algo.Properties) (algo.Algorithm, error)

func wrap[A algo.Algorithm](fn func(algo.Properties) (A, error)) constructor {
	return func(p algo.Properties) (algo.Algorithm, error) {
		a, err := fn(p)
		if err != nil {
			return nil, err
		}
		return a, nil
	}
}

func named[A algo.Algorithm](name string, fn func(string, algo.Properties) (A, error)) constructor {
	return wrap(func(p algo.Properties) (A, error) { return fn(name, p) })
}

var constructors = map[string]constructor{
	spatial.ChildCopyMultiplierName:     wrap(spatial.NewChildCopyMultiplier),
	spatial.HUCPrecipToReservoirsName:   wrap(spatial.NewHUCPrecipToReservoirs),
	spatial.DynamicSiteAggregateName:    named(spatial.DynamicSiteAggregateName, spatial.NewDynamicAggregate),
	spatial.DynamicSpatialAggregateName: named(spatial.DynamicSpatialAggregateName, spatial.NewDynamicAggregate),
	spatial.DynamicSpatialRelationName:  wrap(spatial.NewDynamicSpatialRelation),
	spatial.RatioFillName:               wrap(spatial.NewRatioFill),

	temporal.StaticCoeffTemporalDisaggName: wrap(temporal.NewStaticCoeffTemporalDisagg),
	temporal.RequestFromDepletionName:      wrap(temporal.NewRequestFromDepletion),
	temporal.TemporalPercentDisaggName:     wrap(temporal.NewTemporalPercentDisagg),
	temporal.PowerTemporalDisaggName:       wrap(temporal.NewPowerTemporalDisagg),
	temporal.FractionComputeDisaggName:     wrap(temporal.NewFractionComputeDisagg),

	ratio.StateTribRatioComputeName:        wrap(ratio.NewStateTribRatioCompute),
	ratio.RatioComputeName:                 wrap(ratio.NewRatioCompute),
	ratio.SectorRatioDisaggName:            wrap(ratio.NewSectorRatioDisagg),
	ratio.SourceDistributionComputeName:    named(ratio.SourceDistributionComputeName, ratio.NewSourceDistributionCompute),
	ratio.CULSourceDistributionComputeName: named(ratio.CULSourceDistributionComputeName, ratio.NewSourceDistributionCompute),

	fill.FillMissingClimateDataName:   wrap(fill.NewFillMissingClimateData),
	fill.CopyAverageToTimeseriesName:  wrap(fill.NewCopyAverageToTimeseries),
	fill.FillMissingTSDatatypeMapName: wrap(fill.NewFillMissingTSDatatypeMap),
	fill.EstimateFromSourceName:       wrap(fill.NewEstimateFromSource),
	fill.EstimateCUFromPopulationName: wrap(fill.NewEstimateCUFromPopulation),

	reservoir.MinorReservoirEvapName: wrap(reservoir.NewMinorReservoirEvap),
	reservoir.MajorReservoirEvapName: wrap(reservoir.NewMajorReservoirEvap),
}

// NewAlgorithm returns the algorithm of comp configured from its properties.
func NewAlgorithm(comp algo.Computation) (algo.Algorithm, error) {
	c, ok := constructors[strings.ToUpper(comp.Algorithm)]
	if !ok {
		return nil, errors.Newf("unsupported algorithm %v", comp.Algorithm)
	}
	a, err := c(comp.Properties)
	if err != nil {
		return nil, errors.Wrapf(err, "computation %d: %s properties", comp.ID, strings.ToUpper(comp.Algorithm))
	}
	return a, nil
}

// Names returns the names of all supported algorithms, sorted.
func Names() []string {
	out := make([]string, 0, len(constructors))
	for n := range constructors {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
