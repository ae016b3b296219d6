// Copyright (c) The Thanos Community Authors.
// Licensed under the Apache License 2.0.

package exporter_test

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/efficientgo/core/errors"
	"github.com/efficientgo/core/testutil"
	"github.com/go-kit/log"
	"github.com/klauspost/compress/zstd"
	"github.com/thanos-io/objstore"
	"github.com/xitongsys/parquet-go-source/buffer"
	"github.com/xitongsys/parquet-go/reader"

	"github.com/thanos-community/hdbcomp/pkg/dataframe"
	"github.com/thanos-community/hdbcomp/pkg/exporter"
	"github.com/thanos-community/hdbcomp/pkg/exporter/csv"
	"github.com/thanos-community/hdbcomp/pkg/exporter/parquet"
	"github.com/thanos-community/hdbcomp/pkg/series"
)

func testDataframe() dataframe.Dataframe {
	jan := time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC)
	ts := series.New(series.TSID{Key: 1, SDI: 101, Interval: series.Month, TableSelector: series.RealTable})
	ts.Add(series.Sample{Time: jan, Value: 2.5, Flags: series.ToWrite, Validation: 'V'})
	ts.Add(series.Sample{Time: jan.AddDate(0, 1, 0), Flags: series.ToDelete, Derivation: "CP"})
	return dataframe.FromTimeSeries([]*series.TimeSeries{ts})
}

func get(t *testing.T, bkt objstore.Bucket, name string) []byte {
	t.Helper()
	r, err := bkt.Get(context.Background(), name)
	testutil.Ok(t, err)
	b, err := io.ReadAll(r)
	testutil.Ok(t, err)
	testutil.Ok(t, r.Close())
	return b
}

func TestExport_CSV(t *testing.T) {
	ctx := context.Background()
	bkt := objstore.NewInMemBucket()
	exp := `ts_id,sdi,interval,table_selector,start_date_time,value,validation,derivation_flags,action
1,101,month,R_,2020-01-01T00:00:00Z,2.5,V,,write
1,101,month,R_,2020-02-01T00:00:00Z,0,,CP,delete
`

	enc, err := csv.NewEncoder(exporter.NoCompression)
	testutil.Ok(t, err)
	testutil.Ok(t, exporter.New(log.NewNopLogger(), enc, "plain.csv", bkt).Export(ctx, testDataframe()))
	testutil.Equals(t, exp, string(get(t, bkt, "plain.csv")))

	enc, err = csv.NewEncoder(exporter.ZSTD)
	testutil.Ok(t, err)
	testutil.Ok(t, exporter.New(log.NewNopLogger(), enc, "compressed.csv.zst", bkt).Export(ctx, testDataframe()))

	dec, err := zstd.NewReader(bytes.NewReader(get(t, bkt, "compressed.csv.zst")))
	testutil.Ok(t, err)
	defer dec.Close()
	b, err := io.ReadAll(dec)
	testutil.Ok(t, err)
	testutil.Equals(t, exp, string(b))

	_, err = csv.NewEncoder("gzip")
	testutil.NotOk(t, err)
}

func TestExport_Parquet(t *testing.T) {
	bkt := objstore.NewInMemBucket()
	testutil.Ok(t, exporter.New(log.NewNopLogger(), parquet.NewEncoder(), "out.parquet", bkt).Export(context.Background(), testDataframe()))

	b := get(t, bkt, "out.parquet")
	testutil.Equals(t, "PAR1", string(b[:4]))
	testutil.Equals(t, "PAR1", string(b[len(b)-4:]))

	pr, err := reader.NewParquetReader(buffer.NewBufferFileFromBytes(b), nil, 1)
	testutil.Ok(t, err)
	defer pr.ReadStop()
	testutil.Equals(t, int64(2), pr.GetNumRows())
}

type failingEncoder struct{}

func (failingEncoder) Encode(w io.Writer, _ dataframe.Dataframe) error {
	if _, err := w.Write([]byte("partial")); err != nil {
		return err
	}
	return errors.New("boom")
}

func TestExport_EncodeError(t *testing.T) {
	err := exporter.New(log.NewNopLogger(), failingEncoder{}, "broken", objstore.NewInMemBucket()).Export(context.Background(), testDataframe())
	testutil.NotOk(t, err)
}
