// Copyright (c) The Thanos Community Authors.
// Licensed under the Apache License 2.0.

package dataframe

import (
	"github.com/thanos-community/hdbcomp/pkg/series"
)

// Schema of dataframes built from time series.
var timeSeriesSchema = Schema{
	{Name: "ts_id", Type: TypeInt},
	{Name: "sdi", Type: TypeInt},
	{Name: "interval", Type: TypeString},
	{Name: "table_selector", Type: TypeString},
	{Name: "start_date_time", Type: TypeTime},
	{Name: "value", Type: TypeFloat},
	{Name: "validation", Type: TypeString},
	{Name: "derivation_flags", Type: TypeString},
	{Name: "action", Type: TypeString},
}

// Options determine which samples end up in the dataframe.
type Options struct {
	// PendingOnly keeps only the samples to be written or deleted.
	PendingOnly bool
}

type OptionFunc func(*Options)

// PendingOnly drops samples that are neither written nor deleted, e.g. loaded inputs.
func PendingOnly() OptionFunc {
	return func(o *Options) { o.PendingOnly = true }
}

// FromTimeSeries returns a dataframe with a row for every sample of the given series, in the order
// of the series and then by time.
func FromTimeSeries(tss []*series.TimeSeries, opts ...OptionFunc) Dataframe {
	o := Options{}
	for _, f := range opts {
		f(&o)
	}

	df := &seriesDataframe{schema: timeSeriesSchema}
	for _, ts := range tss {
		rs := seriesRecordSet{ID: ts.ID}
		for _, s := range ts.Samples() {
			act := ActionOf(s.Flags)
			if o.PendingOnly && act == ActionNone {
				continue
			}
			var validation string
			if s.Validation != 0 {
				validation = string(s.Validation)
			}
			rs.Records = append(rs.Records, Record{Values: map[string]interface{}{
				"ts_id":            ts.ID.Key,
				"sdi":              ts.ID.SDI,
				"interval":         string(ts.ID.Interval),
				"table_selector":   ts.ID.TableSelector,
				"start_date_time":  s.Time,
				"value":            s.Value,
				"validation":       validation,
				"derivation_flags": s.Derivation,
				"action":           string(act),
			}})
		}
		if len(rs.Records) > 0 {
			df.recordSets = append(df.recordSets, rs)
		}
	}
	return df
}

// seriesDataframe implements dataframe.Dataframe.
type seriesDataframe struct {
	schema     Schema
	recordSets []seriesRecordSet
}

func (df seriesDataframe) Schema() Schema {
	return df.schema
}

func (df seriesDataframe) RowsIterator() RowsIterator {
	return &seriesDataframeRowIterator{seriesRecordSets: df.recordSets, schema: df.schema, seriesPos: 0, recordPos: -1}
}

// seriesDataframeRowIterator implements dataframe.RowIterator.
type seriesDataframeRowIterator struct {
	seriesRecordSets []seriesRecordSet
	schema           Schema
	seriesPos        int
	recordPos        int
}

func (i *seriesDataframeRowIterator) Next() bool {
	if len(i.seriesRecordSets) == 0 {
		return false
	}
	s := i.seriesRecordSets[i.seriesPos]

	if i.recordPos < len(s.Records)-1 {
		i.recordPos += 1
		return true
	}

	if i.seriesPos < len(i.seriesRecordSets)-1 {
		i.seriesPos += 1
		i.recordPos = 0
		return true
	}

	return false
}

func (i *seriesDataframeRowIterator) At() Row {
	s := i.seriesRecordSets[i.seriesPos]
	ret := make([]interface{}, 0, len(i.schema))
	vals := s.Records[i.recordPos].Values
	for _, c := range i.schema {
		ret = append(ret, vals[c.Name])
	}
	return ret
}

// seriesRecordSet is a set of records of a single time series.
type seriesRecordSet struct {
	ID      series.TSID
	Records []Record
}

// Record is a single instance of values for specific sample.
type Record struct {
	Values map[string]interface{}
}
