// Copyright (c) The Thanos Community Authors.
// Licensed under the Apache License 2.0.

// Package algo drives HDB computations. An Algorithm is configured once from the computation's
// properties; for every batch it begins a Run that discovers its outputs and static coefficients,
// transforms each time slice and finally hands the produced series back for persistence.
package algo

import (
	"context"
	"time"

	"github.com/thanos-community/hdbcomp/pkg/series"
	"github.com/thanos-community/hdbcomp/pkg/store"
)

// Store is the database access computations need.
type Store interface {
	series.Reader
	Query(ctx context.Context, q string, args ...any) (*store.ResultSet, error)
	TimeSeriesIdentifier(ctx context.Context, key int64) (series.TSID, error)
	LookupTSID(ctx context.Context, sdi int64, interval series.Interval, selector string) (series.TSID, error)
	FillTimeSeries(ctx context.Context, ts *series.TimeSeries, from, until time.Time) error
	FillTimeSeriesAt(ctx context.Context, ts *series.TimeSeries, times []time.Time) error
	SaveTimeSeries(ctx context.Context, ts *series.TimeSeries) (store.SaveResult, error)
	LoadingApplicationIDs(ctx context.Context, names ...string) (map[string]int64, error)
}

// Compile-time check if store.DB implements Store interface.
var _ Store = &store.DB{}

// Algorithm is a configured computation algorithm. Implementations hold only configuration parsed
// when they are constructed and must not keep state between batches.
type Algorithm interface {
	Name() string
	// Inputs and Outputs are the parameter roles the algorithm requires.
	Inputs() []string
	Outputs() []string
	// Begin prepares a batch: discovery queries, coefficients and dynamic outputs.
	// An error aborts the batch.
	Begin(ctx context.Context, b *Batch) (Run, error)
}

// Run is the state of an algorithm for a single batch.
type Run interface {
	// TimeSlice computes the outputs at one time slice. An error skips that slice only.
	TimeSlice(ctx context.Context, s Slice) error
	// End is called once all slices were processed.
	End(ctx context.Context) error
}

// SliceFunc is a Run without end of batch work.
type SliceFunc func(ctx context.Context, s Slice) error

func (f SliceFunc) TimeSlice(ctx context.Context, s Slice) error { return f(ctx, s) }

func (SliceFunc) End(context.Context) error { return nil }

// EndFunc is a Run that does all of its work once every slice was seen.
type EndFunc func(ctx context.Context) error

func (EndFunc) TimeSlice(context.Context, Slice) error { return nil }

func (f EndFunc) End(ctx context.Context) error { return f(ctx) }
