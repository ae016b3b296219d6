// Copyright (c) The Thanos Community Authors.
// Licensed under the Apache License 2.0.

package series

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// Flags encode the write intent and the trigger state of a sample.
type Flags uint32

const (
	ToWrite Flags = 1 << iota
	ToDelete
	// DBAdded marks a sample that was added to the database since the last run and so triggers computations.
	DBAdded
	// DBDeleted marks a sample deleted from the database that triggers computations.
	DBDeleted
)

func (f Flags) Has(o Flags) bool { return f&o != 0 }

// Sample is a single value of a time series.
type Sample struct {
	Time  time.Time
	Value float64
	Flags Flags
	// Validation is the HDB validation character, 0 when unset.
	Validation byte
	// Derivation holds HDB derivation flag letters.
	Derivation string
}

// Missing reports whether the sample holds no usable value.
func (s Sample) Missing() bool { return s.Flags.Has(ToDelete) || s.Flags.Has(DBDeleted) }

// TSID identifies a time series through the cp_ts_id table.
type TSID struct {
	Key           int64    `json:"key"`
	SDI           int64    `json:"sdi"`
	SiteID        int64    `json:"site_id"`
	DatatypeID    int64    `json:"datatype_id"`
	SiteName      string   `json:"site_name"`
	Interval      Interval `json:"interval"`
	TableSelector string   `json:"table_selector"`
}

func (id TSID) String() string {
	return fmt.Sprintf("%d.%s.%s", id.SDI, id.Interval, id.TableSelector)
}

// SiteKey is the site identity of the series. Outputs sharing a site collapse on it.
func (id TSID) SiteKey() string { return strconv.FormatInt(id.SiteID, 10) }

// TimeSeries is an ordered set of samples with unique timestamps.
type TimeSeries struct {
	ID                   TSID
	ComputationID        int64
	LoadingApplicationID int64

	samples map[int64]Sample
}

func New(id TSID) *TimeSeries {
	return &TimeSeries{ID: id, samples: map[int64]Sample{}}
}

// Add stores s, replacing any sample at the same time.
func (ts *TimeSeries) Add(s Sample) {
	s.Time = s.Time.UTC()
	ts.samples[s.Time.Unix()] = s
}

func (ts *TimeSeries) At(t time.Time) (Sample, bool) {
	s, ok := ts.samples[t.UTC().Unix()]
	return s, ok
}

// Value returns the value at t. Absent and deleted samples are missing.
func (ts *TimeSeries) Value(t time.Time) (float64, bool) {
	s, ok := ts.At(t)
	if !ok || s.Missing() {
		return 0, false
	}
	return s.Value, true
}

func (ts *TimeSeries) Len() int { return len(ts.samples) }

// Samples returns all samples sorted by time.
func (ts *TimeSeries) Samples() []Sample {
	out := make([]Sample, 0, len(ts.samples))
	for _, s := range ts.samples {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out
}

func (ts *TimeSeries) Times() []time.Time {
	samples := ts.Samples()
	out := make([]time.Time, 0, len(samples))
	for _, s := range samples {
		out = append(out, s.Time)
	}
	return out
}

// Triggered returns the samples that trigger computations.
func (ts *TimeSeries) Triggered() []Sample {
	var out []Sample
	for _, s := range ts.Samples() {
		if s.Flags.Has(DBAdded) || s.Flags.Has(DBDeleted) {
			out = append(out, s)
		}
	}
	return out
}

// ValidationFlag extracts the validation character from a validation_flag property.
// HDB computations carry the flag quoted (e.g. 'V'), so the second character is used when present.
func ValidationFlag(prop string) (byte, bool) {
	switch len(prop) {
	case 0:
		return 0, false
	case 1:
		return prop[0], true
	default:
		return prop[1], true
	}
}

// Apply sets the validation and derivation flags of s. Zero values leave the sample unchanged.
func Apply(s Sample, validation byte, derivation string) Sample {
	if validation != 0 {
		s.Validation = validation
	}
	if derivation != "" {
		s.Derivation = derivation
	}
	return s
}

// DerivationFlags keeps only the flag letters of a flags property.
func DerivationFlags(prop string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) {
			return r
		}
		return -1
	}, prop)
}
