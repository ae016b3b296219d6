// Copyright (c) The Thanos Community Authors.
// Licensed under the Apache License 2.0.

package algo

import (
	"context"
	"time"

	"github.com/efficientgo/core/errors"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"

	"github.com/thanos-community/hdbcomp/pkg/series"
)

// Result summarises a batch.
type Result struct {
	BatchID      uuid.UUID
	Slices       int
	FailedSlices int
	Written      int
	Deleted      int
	SaveFailures int
	Outputs      []*series.TimeSeries
}

// Runner executes computations against a store.
type Runner struct {
	logger log.Logger
	store  Store
	now    func() time.Time
}

type RunnerOption func(*Runner)

// WithNow sets the clock used by computations that fill data up to the current time.
func WithNow(now func() time.Time) RunnerOption {
	return func(r *Runner) { r.now = now }
}

func NewRunner(logger log.Logger, st Store, opts ...RunnerOption) *Runner {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	r := &Runner{logger: logger, store: st, now: time.Now}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Run executes comp with alg over [from, until).
//
// Every input sample found in the window triggers the computation, a window without input samples
// does nothing. Begin failures abort the batch before any slice runs; slice failures are logged and
// skip only that slice. Outputs are saved after End returned without error.
func (r *Runner) Run(ctx context.Context, comp Computation, alg Algorithm, from, until time.Time) (Result, error) {
	if !from.Before(until) {
		return Result{}, errors.Newf("empty time window [%v, %v)", from, until)
	}
	if err := comp.validate(alg); err != nil {
		return Result{}, err
	}
	b, err := NewBatch(r.logger, r.store, comp, from, until)
	if err != nil {
		return Result{}, errors.Wrapf(err, "computation %d", comp.ID)
	}
	b.Now = r.now
	res := Result{BatchID: b.ID}

	if err := r.bind(ctx, b); err != nil {
		return res, errors.Wrap(err, "bind parameters")
	}
	if len(b.BaseTimes()) == 0 {
		level.Debug(b.Logger).Log("msg", "no triggering samples in window")
		return res, nil
	}

	run, err := alg.Begin(ctx, b)
	if err != nil {
		return res, errors.Wrap(err, "before time slices")
	}

	for _, t := range b.BaseTimes() {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Slices++
		if err := run.TimeSlice(ctx, NewSlice(b, t)); err != nil {
			res.FailedSlices++
			level.Warn(b.Logger).Log("msg", "time slice failed, skipping", "time", t, "err", err)
		}
	}

	if err := run.End(ctx); err != nil {
		return res, errors.Wrap(err, "after time slices")
	}

	for _, ts := range b.OutputSeries() {
		if !pending(ts) {
			continue
		}
		saved, err := r.store.SaveTimeSeries(ctx, ts)
		if err != nil {
			res.SaveFailures++
			level.Warn(b.Logger).Log("msg", "saving output time series failed", "tsid", ts.ID.String(), "err", err)
			continue
		}
		res.Written += saved.Written
		res.Deleted += saved.Deleted
		res.Outputs = append(res.Outputs, ts)
	}
	level.Info(b.Logger).Log("msg", "batch done", "slices", res.Slices, "failed_slices", res.FailedSlices,
		"written", res.Written, "deleted", res.Deleted, "save_failures", res.SaveFailures)
	return res, nil
}

// bind resolves the computation's parameters. Input samples in the batch window are loaded and
// flagged as triggering.
func (r *Runner) bind(ctx context.Context, b *Batch) error {
	lookup := func(kind, role string, p ParamConfig) (series.TSID, error) {
		iv, err := series.ParseInterval(string(p.Interval))
		if err != nil {
			return series.TSID{}, errors.Wrapf(err, "%s %q", kind, role)
		}
		id, err := r.store.LookupTSID(ctx, p.SDI, iv, p.selector())
		if err != nil {
			return series.TSID{}, errors.Wrapf(err, "%s %q", kind, role)
		}
		return id, nil
	}

	for _, role := range sortedRoles(b.Computation.Inputs) {
		id, err := lookup("input", role, b.Computation.Inputs[role])
		if err != nil {
			return err
		}
		loaded, err := r.store.Read(ctx, series.Params{ID: id, MinTime: b.From, MaxTime: b.Until})
		if err != nil {
			return errors.Wrapf(err, "input %q", role)
		}
		ts := series.New(id)
		for _, s := range loaded.Samples() {
			s.Flags |= series.DBAdded
			ts.Add(s)
		}
		b.SetInput(role, ts)
	}
	for _, role := range sortedRoles(b.Computation.Outputs) {
		id, err := lookup("output", role, b.Computation.Outputs[role])
		if err != nil {
			return err
		}
		b.SetOutput(role, series.New(id))
	}
	return nil
}

func pending(ts *series.TimeSeries) bool {
	for _, s := range ts.Samples() {
		if s.Flags.Has(series.ToWrite) || s.Flags.Has(series.ToDelete) {
			return true
		}
	}
	return false
}
