// Copyright (c) The Thanos Community Authors.
// Licensed under the Apache License 2.0.

package parquet

import (
	"fmt"
	"io"
	"time"

	"github.com/efficientgo/core/errors"
	parquetwriter "github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/thanos-community/hdbcomp/pkg/dataframe"
	"github.com/thanos-community/hdbcomp/pkg/exporter"
)

// Compile-time check if parquet Encoder implements exporter.Encoder interface.
var _ exporter.Encoder = &Encoder{}

type Encoder struct{}

func NewEncoder() *Encoder {
	return &Encoder{}
}

func (e *Encoder) Encode(w io.Writer, df dataframe.Dataframe) (err error) {
	parqf := parquetwriter.NewWriterFile(w)
	parqw, err := initCSVWriter(parqf, df)
	if err != nil {
		return errors.Wrap(err, "initializing the schema")
	}
	defer func() {
		if serr := parqw.WriteStop(); serr != nil && err == nil {
			err = serr
		}
	}()

	i := df.RowsIterator()
	s := df.Schema()
	for i.Next() {
		r := i.At()
		d := make([]interface{}, 0, len(r))
		for i, cell := range r {
			switch s[i].Type {
			case dataframe.TypeTime:
				d = append(d, cell.(time.Time).UnixMilli())
			default:
				d = append(d, cell)
			}
		}
		if err := parqw.Write(d); err != nil {
			return errors.Wrap(err, "writing a row")
		}
	}
	return nil
}

func initCSVWriter(parqf source.ParquetFile, df dataframe.Dataframe) (*writer.CSVWriter, error) {
	schema := df.Schema()
	pqSchema := make([]string, 0, len(schema))
	for _, c := range schema {
		var pqType string
		switch c.Type {
		case dataframe.TypeString:
			pqType = "BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"
		case dataframe.TypeFloat:
			pqType = "DOUBLE"
		case dataframe.TypeInt:
			pqType = "INT64"
		case dataframe.TypeTime:
			pqType = "INT64, convertedtype=TIMESTAMP_MILLIS"
		default:
			return nil, errors.Newf("unsupported column type %v of column %s", c.Type, c.Name)
		}
		pqSchema = append(pqSchema, fmt.Sprintf("name=%s, type=%s", c.Name, pqType))
	}

	parqw, err := writer.NewCSVWriter(pqSchema, parqf, 4)
	if err != nil {
		return nil, err
	}
	parqw.CompressionType = parquet.CompressionCodec_SNAPPY

	return parqw, nil
}
