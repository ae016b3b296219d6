// Copyright (c) The Thanos Community Authors.
// Licensed under the Apache License 2.0.

package factory

import (
	"context"
	"strings"

	"github.com/efficientgo/core/errors"
	"github.com/go-kit/log"
	"gopkg.in/yaml.v2"

	"github.com/thanos-community/hdbcomp/pkg/series"
	"github.com/thanos-community/hdbcomp/pkg/store"
)

// Compile-time check if store.DB implements series.Reader interface.
var _ series.Reader = &store.DB{}

// ParseConfig parses the YAML store configuration. Unknown fields are rejected.
func ParseConfig(confYaml []byte) (series.Config, error) {
	var cfg series.Config
	if err := yaml.UnmarshalStrict(confYaml, &cfg); err != nil {
		return cfg, errors.Wrap(err, "parsing store configuration")
	}
	return cfg, nil
}

// NewStore opens the HDB store based on configuration file.
func NewStore(ctx context.Context, logger log.Logger, confYaml []byte) (*store.DB, error) {
	cfg, err := ParseConfig(confYaml)
	if err != nil {
		return nil, err
	}
	switch series.Type(strings.ToUpper(string(cfg.Type))) {
	case series.POSTGRES, series.SQLITE:
		return store.Open(ctx, logger, cfg)
	default:
		return nil, errors.Newf("unsupported store type %v", cfg.Type)
	}
}
