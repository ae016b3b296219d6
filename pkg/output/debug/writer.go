// Copyright (c) The Thanos Community Authors.
// Licensed under the Apache License 2.0.

package debug

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/thanos-community/hdbcomp/pkg/dataframe"
	"github.com/thanos-community/hdbcomp/pkg/output"
)

// Compile-time check if DebugWriter implements output.Writer interface.
var _ output.Writer = &DebugWriter{}

// DebugWriter formats the dataframe into format usable for debugging and testing purposes (e.g. in
// examples). Uses tabwriter to produce the table in readable format and shortens
// fields when possible (such as using only the date part of a timestamp) so it fits
// nicer into the output.
//
// If nextW present, it forwards the data there as well.
type DebugWriter struct {
	w       *tabwriter.Writer
	nextW   output.Writer
	started bool
}

func NewDebugWriter(w io.Writer, nextW output.Writer) *DebugWriter {
	tabw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	return &DebugWriter{w: tabw, nextW: nextW}
}

func (w *DebugWriter) Write(df dataframe.Dataframe) error {
	if !w.started {
		w.PrintHeader(df)
		w.started = true
	}
	i := df.RowsIterator()
	for i.Next() {
		w.PrintRow(df.Schema(), i.At())
	}
	if w.nextW != nil {
		return w.nextW.Write(df)
	}
	return nil
}

func (w *DebugWriter) PrintHeader(df dataframe.Dataframe) {
	// Adding | <-   -> | around the lines to avoid dealing with training spaces
	// in example output checking
	fmt.Fprint(w.w, "| ")
	for _, c := range df.Schema() {
		fmt.Fprintf(w.w, "%s\t", c.Name)
	}
	fmt.Fprint(w.w, "|\n")
}

func (w *DebugWriter) PrintRow(s dataframe.Schema, r dataframe.Row) {
	fmt.Fprint(w.w, "| ")
	for i, cell := range r {
		switch s[i].Type {
		case dataframe.TypeString:
			fmt.Fprintf(w.w, "%s\t", cell)
		case dataframe.TypeFloat:
			fmt.Fprintf(w.w, "%g\t", cell.(float64))
		case dataframe.TypeInt:
			fmt.Fprintf(w.w, "%d\t", cell.(int64))
		case dataframe.TypeTime:
			t := cell.(time.Time)
			if t.Hour() == 0 && t.Minute() == 0 {
				fmt.Fprintf(w.w, "%s\t", t.Format("2006-01-02"))
				continue
			}
			fmt.Fprintf(w.w, "%s\t", t.Format("2006-01-02 15:04"))
		default:
			fmt.Fprintf(w.w, "%v\t", cell)
		}
	}
	fmt.Fprint(w.w, "|\n")
}

func (w *DebugWriter) Close() error {
	if err := w.w.Flush(); err != nil {
		return err
	}
	if w.nextW != nil {
		return w.nextW.Close()
	}
	return nil
}
