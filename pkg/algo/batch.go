// Copyright (c) The Thanos Community Authors.
// Licensed under the Apache License 2.0.

package algo

import (
	"context"
	"sort"
	"time"

	"github.com/efficientgo/core/errors"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"

	"github.com/thanos-community/hdbcomp/pkg/series"
	"github.com/thanos-community/hdbcomp/pkg/store"
)

// Param is a resolved parameter of a computation.
type Param struct {
	Role   string
	Series *series.TimeSeries
}

func (p *Param) ID() series.TSID { return p.Series.ID }

// Batch is the context of one computation run over a time window. It is owned by a single
// goroutine for the duration of the run.
type Batch struct {
	ID          uuid.UUID
	Logger      log.Logger
	Store       Store
	Computation Computation
	Flags       Flags
	// From and Until bound the window of the batch, Until is exclusive.
	From, Until time.Time
	// Now is the clock of the batch.
	Now func() time.Time

	inputs    map[string]*Param
	outputs   map[string]*Param
	dynamic   []*series.TimeSeries
	baseTimes map[int64]time.Time
}

// NewBatch creates an empty batch. Parameters are added by the runner.
func NewBatch(logger log.Logger, st Store, comp Computation, from, until time.Time) (*Batch, error) {
	flags, err := ParseFlags(comp.Properties)
	if err != nil {
		return nil, err
	}
	id := uuid.New()
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Batch{
		ID:          id,
		Logger:      log.With(logger, "batch", id.String(), "computation", comp.ID, "algorithm", comp.Algorithm),
		Store:       st,
		Computation: comp,
		Flags:       flags,
		From:        from.UTC(),
		Until:       until.UTC(),
		Now:         time.Now,
		inputs:      map[string]*Param{},
		outputs:     map[string]*Param{},
		baseTimes:   map[int64]time.Time{},
	}, nil
}

// Input returns the input parameter of role, nil when the computation does not bind it.
func (b *Batch) Input(role string) *Param { return b.inputs[role] }

// Output returns the output parameter of role, nil when the computation does not bind it.
func (b *Batch) Output(role string) *Param { return b.outputs[role] }

// SetInput binds ts as the input of role. Its sample times become base times.
func (b *Batch) SetInput(role string, ts *series.TimeSeries) {
	b.inputs[role] = &Param{Role: role, Series: ts}
	b.AddBaseTimes(ts.Times()...)
}

// SetOutput binds ts as the output of role.
func (b *Batch) SetOutput(role string, ts *series.TimeSeries) {
	ts.ComputationID = b.Computation.ID
	ts.LoadingApplicationID = b.Computation.LoadingApplicationID
	b.outputs[role] = &Param{Role: role, Series: ts}
}

// AddBaseTimes adds slice times to the batch.
func (b *Batch) AddBaseTimes(times ...time.Time) {
	for _, t := range times {
		t = t.UTC()
		b.baseTimes[t.Unix()] = t
	}
}

// BaseTimes returns the slice times in order.
func (b *Batch) BaseTimes() []time.Time {
	out := make([]time.Time, 0, len(b.baseTimes))
	for _, t := range b.baseTimes {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// NewOutput returns the series to write for id. Static outputs are reused, other series are
// registered for persistence at the end of the batch.
func (b *Batch) NewOutput(id series.TSID) *series.TimeSeries {
	for _, p := range b.outputs {
		if p.Series.ID.Key == id.Key {
			return p.Series
		}
	}
	for _, ts := range b.dynamic {
		if ts.ID.Key == id.Key {
			return ts
		}
	}
	ts := series.New(id)
	ts.ComputationID = b.Computation.ID
	ts.LoadingApplicationID = b.Computation.LoadingApplicationID
	b.dynamic = append(b.dynamic, ts)
	return ts
}

// OutputSeries returns every series written by the batch: static outputs by role, then dynamic ones.
func (b *Batch) OutputSeries() []*series.TimeSeries {
	var out []*series.TimeSeries
	for _, r := range sortedParamRoles(b.outputs) {
		out = append(out, b.outputs[r].Series)
	}
	return append(out, b.dynamic...)
}

func sortedParamRoles(params map[string]*Param) []string {
	out := make([]string, 0, len(params))
	for r := range params {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

// Write stores v at t in ts with the computation's validation and derivation flags.
func (b *Batch) Write(ts *series.TimeSeries, t time.Time, v float64) {
	b.WriteFlags(ts, t, v, b.Flags)
}

// WriteFlags stores v at t in ts with the given flags.
func (b *Batch) WriteFlags(ts *series.TimeSeries, t time.Time, v float64, f Flags) {
	ts.Add(series.Apply(series.Sample{Time: t, Value: v, Flags: series.ToWrite}, f.Validation, f.Derivation))
}

// Delete marks the sample of ts at t for deletion.
func (b *Batch) Delete(ts *series.TimeSeries, t time.Time) {
	ts.Add(series.Sample{Time: t, Flags: series.ToDelete})
}

// KeyFunc derives the identity outputs are collapsed on.
type KeyFunc func(series.TSID) string

// BySite collapses outputs sharing a site.
func BySite(id series.TSID) string { return id.SiteKey() }

// OutputSet maps derived keys to output series.
type OutputSet struct {
	keys   []string
	series map[string]*series.TimeSeries
}

func NewOutputSet() *OutputSet {
	return &OutputSet{series: map[string]*series.TimeSeries{}}
}

// Add stores ts under key unless the key is already taken. It reports whether ts was added.
func (o *OutputSet) Add(key string, ts *series.TimeSeries) bool {
	if _, ok := o.series[key]; ok {
		return false
	}
	o.keys = append(o.keys, key)
	o.series[key] = ts
	return true
}

func (o *OutputSet) Len() int { return len(o.keys) }

func (o *OutputSet) Get(key string) (*series.TimeSeries, bool) {
	ts, ok := o.series[key]
	return ts, ok
}

// Keys returns the keys in discovery order.
func (o *OutputSet) Keys() []string { return append([]string(nil), o.keys...) }

// All returns the series in discovery order.
func (o *OutputSet) All() []*series.TimeSeries {
	out := make([]*series.TimeSeries, 0, len(o.keys))
	for _, k := range o.keys {
		out = append(out, o.series[k])
	}
	return out
}

// ResolveOutputs builds the outputs named by the ts_id values of column. No outputs is not an
// error: it is logged and an empty set is returned.
func (b *Batch) ResolveOutputs(ctx context.Context, rs *store.ResultSet, column string, key KeyFunc) (*OutputSet, error) {
	ids := rs.Int64s(column)
	return b.resolve(len(ids), key, func(i int) (series.TSID, error) {
		return b.Store.TimeSeriesIdentifier(ctx, ids[i])
	})
}

// ResolveOutputSDIs builds the outputs named by the site datatype ids of column at interval and selector.
func (b *Batch) ResolveOutputSDIs(ctx context.Context, rs *store.ResultSet, column string, interval series.Interval, selector string, key KeyFunc) (*OutputSet, error) {
	sdis := rs.Int64s(column)
	return b.resolve(len(sdis), key, func(i int) (series.TSID, error) {
		return b.Store.LookupTSID(ctx, sdis[i], interval, selector)
	})
}

func (b *Batch) resolve(n int, key KeyFunc, get func(int) (series.TSID, error)) (*OutputSet, error) {
	set := NewOutputSet()
	if n == 0 {
		level.Warn(b.Logger).Log("msg", "zero output time series")
		return set, nil
	}
	if key == nil {
		key = BySite
	}
	for i := 0; i < n; i++ {
		id, err := get(i)
		if err != nil {
			return nil, errors.Wrap(err, "resolve output time series")
		}
		k := key(id)
		if _, ok := set.Get(k); ok {
			level.Debug(b.Logger).Log("msg", "output collapsed on existing key", "key", k, "tsid", id.String())
			continue
		}
		set.Add(k, b.NewOutput(id))
	}
	return set, nil
}

// Slice is a single time slice of a batch.
type Slice struct {
	Time  time.Time
	batch *Batch
}

// NewSlice returns the slice of b at t.
func NewSlice(b *Batch, t time.Time) Slice { return Slice{Time: t.UTC(), batch: b} }

// Value returns the input of role at the slice time.
func (s Slice) Value(role string) (float64, bool) {
	p := s.batch.Input(role)
	if p == nil {
		return 0, false
	}
	return p.Series.Value(s.Time)
}

// Triggered reports whether the input of role triggered this slice.
func (s Slice) Triggered(role string) bool {
	p := s.batch.Input(role)
	if p == nil {
		return false
	}
	smp, ok := p.Series.At(s.Time)
	return ok && (smp.Flags.Has(series.DBAdded) || smp.Flags.Has(series.DBDeleted))
}

// Deleted reports whether the input of role was deleted at the slice time.
func (s Slice) Deleted(role string) bool {
	p := s.batch.Input(role)
	if p == nil {
		return false
	}
	smp, ok := p.Series.At(s.Time)
	return ok && smp.Flags.Has(series.DBDeleted)
}
