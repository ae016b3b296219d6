// Copyright (c) The Thanos Community Authors.
// Licensed under the Apache License 2.0.

// Package dataframe turns computed time series into a tabular form for export.
package dataframe

import (
	"github.com/thanos-community/hdbcomp/pkg/series"
)

// Type is the type of the cells of a column. Cells of TypeString are strings, TypeFloat float64,
// TypeInt int64 and TypeTime UTC time.Time.
type Type string

const (
	TypeString Type = "string"
	TypeFloat  Type = "float"
	TypeInt    Type = "int"
	TypeTime   Type = "time"
)

// Action is what a computation does with an exported sample. It is exported as a TypeString cell.
type Action string

const (
	ActionWrite  Action = "write"
	ActionDelete Action = "delete"
	ActionNone   Action = "none"
)

// ActionOf returns the action of a sample with flags f. Deletion wins over a write.
func ActionOf(f series.Flags) Action {
	switch {
	case f.Has(series.ToDelete):
		return ActionDelete
	case f.Has(series.ToWrite):
		return ActionWrite
	default:
		return ActionNone
	}
}

type Column struct {
	Name string
	Type Type
}

type Schema []Column

// Names returns the column names in order.
func (s Schema) Names() []string {
	out := make([]string, 0, len(s))
	for _, c := range s {
		out = append(out, c.Name)
	}
	return out
}

type RowsIterator interface {
	Next() bool
	At() Row
}

// Row holds one cell per schema column.
type Row []interface{}

// Dataframe stores samples in a tabular format.
type Dataframe interface {
	Schema() Schema
	RowsIterator() RowsIterator
}
