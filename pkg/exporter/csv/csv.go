// Copyright (c) The Thanos Community Authors.
// Licensed under the Apache License 2.0.

package csv

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"github.com/efficientgo/core/errcapture"
	"github.com/efficientgo/core/errors"
	"github.com/klauspost/compress/zstd"

	"github.com/thanos-community/hdbcomp/pkg/dataframe"
	"github.com/thanos-community/hdbcomp/pkg/exporter"
)

// Compile-time check if csv Encoder implements exporter.Encoder interface.
var _ exporter.Encoder = &Encoder{}

// Encoder writes a header line followed by one line per row. Times are RFC 3339 in UTC.
type Encoder struct {
	zstd bool
}

func NewEncoder(c exporter.Compression) (*Encoder, error) {
	switch c {
	case "", exporter.NoCompression:
		return &Encoder{}, nil
	case exporter.ZSTD:
		return &Encoder{zstd: true}, nil
	default:
		return nil, errors.Newf("unsupported CSV compression %v", c)
	}
}

func (e *Encoder) Encode(w io.Writer, df dataframe.Dataframe) (err error) {
	if e.zstd {
		zw, zerr := zstd.NewWriter(w)
		if zerr != nil {
			return errors.Wrap(zerr, "zstd writer")
		}
		defer errcapture.Do(&err, zw.Close, "close zstd writer")
		w = zw
	}

	cw := csv.NewWriter(w)
	s := df.Schema()
	if err := cw.Write(s.Names()); err != nil {
		return errors.Wrap(err, "writing the header")
	}

	i := df.RowsIterator()
	for i.Next() {
		r := i.At()
		rec := make([]string, 0, len(r))
		for i, cell := range r {
			rec = append(rec, format(s[i].Type, cell))
		}
		if err := cw.Write(rec); err != nil {
			return errors.Wrap(err, "writing a row")
		}
	}
	cw.Flush()
	return cw.Error()
}

func format(t dataframe.Type, cell interface{}) string {
	switch t {
	case dataframe.TypeString:
		return cell.(string)
	case dataframe.TypeFloat:
		return strconv.FormatFloat(cell.(float64), 'g', -1, 64)
	case dataframe.TypeInt:
		return strconv.FormatInt(cell.(int64), 10)
	case dataframe.TypeTime:
		return cell.(time.Time).UTC().Format(time.RFC3339)
	default:
		return ""
	}
}
