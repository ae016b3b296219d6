// Copyright (c) The Thanos Community Authors.
// Licensed under the Apache License 2.0.

package algo

import (
	"sort"

	"github.com/efficientgo/core/errors"
	"gopkg.in/yaml.v2"

	"github.com/thanos-community/hdbcomp/pkg/series"
)

// ParamConfig binds a parameter role to a time series.
type ParamConfig struct {
	SDI           int64           `yaml:"sdi"`
	Interval      series.Interval `yaml:"interval"`
	TableSelector string          `yaml:"table_selector"`
}

func (p ParamConfig) selector() string {
	if p.TableSelector == "" {
		return series.RealTable
	}
	return p.TableSelector
}

// Computation binds an algorithm to concrete parameters and properties.
type Computation struct {
	ID                   int64                  `yaml:"id"`
	Name                 string                 `yaml:"name"`
	Algorithm            string                 `yaml:"algorithm"`
	LoadingApplicationID int64                  `yaml:"loading_application_id"`
	Properties           Properties             `yaml:"properties"`
	Inputs               map[string]ParamConfig `yaml:"inputs"`
	Outputs              map[string]ParamConfig `yaml:"outputs"`
}

type ComputationsConfig struct {
	Computations []Computation `yaml:"computations"`
}

// ParseComputations parses a YAML computations file. Unknown fields are rejected.
func ParseComputations(b []byte) (ComputationsConfig, error) {
	var cfg ComputationsConfig
	if err := yaml.UnmarshalStrict(b, &cfg); err != nil {
		return cfg, errors.Wrap(err, "parsing computations YAML")
	}
	seen := map[int64]struct{}{}
	for _, c := range cfg.Computations {
		if c.Algorithm == "" {
			return cfg, errors.Newf("computation %d (%s) has no algorithm", c.ID, c.Name)
		}
		if _, ok := seen[c.ID]; ok {
			return cfg, errors.Newf("duplicate computation id %d", c.ID)
		}
		seen[c.ID] = struct{}{}
	}
	return cfg, nil
}

func (c Computation) validate(alg Algorithm) error {
	check := func(kind string, roles []string, params map[string]ParamConfig) error {
		for _, r := range roles {
			p, ok := params[r]
			if !ok {
				return errors.Newf("computation %d: missing %s parameter %q required by %s", c.ID, kind, r, alg.Name())
			}
			if _, err := series.ParseInterval(string(p.Interval)); err != nil {
				return errors.Wrapf(err, "computation %d: %s parameter %q", c.ID, kind, r)
			}
		}
		return nil
	}
	if err := check("input", alg.Inputs(), c.Inputs); err != nil {
		return err
	}
	return check("output", alg.Outputs(), c.Outputs)
}

func sortedRoles(params map[string]ParamConfig) []string {
	out := make([]string, 0, len(params))
	for r := range params {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}
