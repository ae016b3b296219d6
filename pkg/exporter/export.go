// Copyright (c) The Thanos Community Authors.
// Licensed under the Apache License 2.0.

// Package exporter uploads computed dataframes to object storage in analytics formats.
package exporter

import (
	"context"
	"io"

	"github.com/efficientgo/core/errors"
	"github.com/efficientgo/core/logerrcapture"
	"github.com/go-kit/log"
	"github.com/thanos-io/objstore"
	"github.com/thanos-io/objstore/client"

	"github.com/thanos-community/hdbcomp/pkg/dataframe"
)

type Type string

const (
	PARQUET Type = "PARQUET"
	CSV     Type = "CSV"
)

type Compression string

const (
	NoCompression Compression = "none"
	ZSTD          Compression = "zstd"
)

// Config contains the options determining the object storage where files will be uploaded to.
type Config struct {
	Type Type   `yaml:"type"`
	Path string `yaml:"path"`
	// Compression applies to CSV only, parquet pages are always snappy compressed.
	Compression Compression         `yaml:"compression"`
	Storage     client.BucketConfig `yaml:"storage"`
}

// An Encoder writes serialized type to an output stream.
type Encoder interface {
	Encode(io.Writer, dataframe.Dataframe) (err error)
}

type Exporter struct {
	logger log.Logger
	enc    Encoder

	path string
	bkt  objstore.Bucket
}

func New(logger log.Logger, c Encoder, path string, bkt objstore.Bucket) *Exporter {
	return &Exporter{
		logger: logger,
		enc:    c,
		path:   path,
		bkt:    bkt,
	}
}

// Path returns the object name the dataframe is uploaded to.
func (e *Exporter) Path() string { return e.path }

// Export encodes and streams the dataframe to given bucket. On error partial result might occur.
// It's caller responsibility to clean after error.
func (e *Exporter) Export(ctx context.Context, df dataframe.Dataframe) (err error) {
	r, w := io.Pipe()

	errch := make(chan error, 1)
	go func() {
		err := e.enc.Encode(w, df)
		if err != nil {
			err = errors.Wrap(err, "encode")
		}
		// Readers see the encoding error instead of a truncated stream.
		_ = w.CloseWithError(err)
		errch <- err
	}()
	defer func() {
		logerrcapture.Do(e.logger, r.Close, "close export pipe")
		if cerr := <-errch; cerr != nil && err == nil {
			err = cerr
		}
	}()

	if err := e.bkt.Upload(ctx, e.path, r); err != nil {
		return errors.Wrap(err, "upload")
	}
	return nil
}
