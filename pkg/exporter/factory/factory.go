// Copyright (c) The Thanos Community Authors.
// Licensed under the Apache License 2.0.

package factory

import (
	"path"
	"strings"

	"github.com/efficientgo/core/errors"
	"github.com/go-kit/log"
	"github.com/prometheus/common/version"
	"github.com/thanos-io/objstore/client"
	"gopkg.in/yaml.v2"

	"github.com/thanos-community/hdbcomp/pkg/exporter"
	"github.com/thanos-community/hdbcomp/pkg/exporter/csv"
	"github.com/thanos-community/hdbcomp/pkg/exporter/parquet"
)

// ParseConfig parses the YAML export configuration. Unknown fields are rejected.
func ParseConfig(confYaml []byte) (exporter.Config, error) {
	var cfg exporter.Config
	if err := yaml.UnmarshalStrict(confYaml, &cfg); err != nil {
		return cfg, errors.Wrap(err, "parsing export configuration")
	}
	return cfg, nil
}

// NewEncoder returns the encoder of the configured export type.
func NewEncoder(cfg exporter.Config) (exporter.Encoder, error) {
	switch exporter.Type(strings.ToUpper(string(cfg.Type))) {
	case exporter.PARQUET:
		return parquet.NewEncoder(), nil
	case exporter.CSV:
		enc, err := csv.NewEncoder(exporter.Compression(strings.ToLower(string(cfg.Compression))))
		if err != nil {
			return nil, err
		}
		return enc, nil
	default:
		return nil, errors.Newf("unsupported export type %v", cfg.Type)
	}
}

// NewExporter returns exporter based on configuration file.
func NewExporter(logger log.Logger, cfg exporter.Config) (*exporter.Exporter, error) {
	if cfg.Path == "" {
		return nil, errors.New("export path is required")
	}
	e, err := NewEncoder(cfg)
	if err != nil {
		return nil, err
	}

	storageConf, err := yaml.Marshal(cfg.Storage)
	if err != nil {
		return nil, errors.Wrap(err, "storage configuration")
	}
	bkt, err := client.NewBucket(logger, storageConf, nil, path.Join("hdbcomp", version.Version))
	if err != nil {
		return nil, errors.Wrap(err, "creating storage")
	}
	return exporter.New(logger, e, cfg.Path, bkt), nil
}
