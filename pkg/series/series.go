// Copyright (c) The Thanos Community Authors.
// Licensed under the Apache License 2.0.

package series

import (
	"context"
	"time"

	"github.com/prometheus/common/model"
)

type Type string

const (
	POSTGRES Type = "POSTGRES"
	SQLITE   Type = "SQLITE"
)

// Config contains the options determining the HDB database to talk to.
type Config struct {
	Type         Type           `yaml:"type"`
	DSN          string         `yaml:"dsn"`
	QueryTimeout model.Duration `yaml:"query_timeout"`
	Cache        CacheConfig    `yaml:"cache"`
}

// CacheConfig configures the on-disk cache of resolved time series identifiers.
type CacheConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Path     string `yaml:"path"`
	InMemory bool   `yaml:"in_memory"`
}

// Params determines what data should be loaded for a time series.
type Params struct {
	ID      TSID
	MinTime time.Time
	// MaxTime is exclusive.
	MaxTime time.Time
}

type Reader interface {
	Read(context.Context, Params) (*TimeSeries, error)
}
