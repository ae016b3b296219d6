// Copyright (c) The Thanos Community Authors.
// Licensed under the Apache License 2.0.

// Package output holds the sinks computed dataframes are written to.
package output

import (
	"github.com/thanos-community/hdbcomp/pkg/dataframe"
)

type Writer interface {
	Write(dataframe.Dataframe) error
	Close() error
}
