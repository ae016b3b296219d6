// Copyright (c) The Thanos Community Authors.
// Licensed under the Apache License 2.0.

package algo

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/efficientgo/core/errors"
	"github.com/shopspring/decimal"

	"github.com/thanos-community/hdbcomp/pkg/series"
)

// Patterns for free text properties that end up in query predicates.
var (
	Word         = regexp.MustCompile(`^\w+$`)
	OptionalWord = regexp.MustCompile(`^\w*$`)
	WordList     = regexp.MustCompile(`^[\w\t ,()]*$`)
	SiteNames    = regexp.MustCompile(`^[-',\w ]*$`)
	Text         = regexp.MustCompile(`^[\w\t ]+$`)

	validationFlag = regexp.MustCompile(`^'?\w?'?$`)
)

// Properties is the property bag of a computation. Names are matched case-insensitively.
type Properties map[string]string

func (p Properties) lookup(name string) (string, bool) {
	if v, ok := p[name]; ok {
		return v, true
	}
	for k, v := range p {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return "", false
}

func (p Properties) String(name, def string) string {
	if v, ok := p.lookup(name); ok {
		return v
	}
	return def
}

// Required returns a property that has no default.
func (p Properties) Required(name string) (string, error) {
	v, ok := p.lookup(name)
	if !ok || strings.TrimSpace(v) == "" {
		return "", errors.Newf("property %q is required", name)
	}
	return v, nil
}

func (p Properties) Bool(name string, def bool) (bool, error) {
	v, ok := p.lookup(name)
	if !ok {
		return def, nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return def, errors.Wrapf(err, "property %q", name)
	}
	return b, nil
}

func (p Properties) Float(name string, def float64) (float64, error) {
	v, ok := p.lookup(name)
	if !ok {
		return def, nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return def, errors.Wrapf(err, "property %q", name)
	}
	return f, nil
}

func (p Properties) Int(name string, def int) (int, error) {
	v, ok := p.lookup(name)
	if !ok {
		return def, nil
	}
	i, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return def, errors.Wrapf(err, "property %q", name)
	}
	return i, nil
}

// Match returns the property value when it matches re.
func (p Properties) Match(name, def string, re *regexp.Regexp) (string, error) {
	v := p.String(name, def)
	if !re.MatchString(v) {
		return "", errors.Newf("property %q value %q does not match %s", name, v, re)
	}
	return v, nil
}

// Flags are the sample flags every computation applies to its output samples.
type Flags struct {
	Validation byte
	Derivation string
}

// ParseFlags reads the validation_flag and flags properties.
func ParseFlags(p Properties) (Flags, error) {
	var f Flags
	v, err := p.Match("validation_flag", "", validationFlag)
	if err != nil {
		return f, err
	}
	f.Validation, _ = series.ValidationFlag(v)
	d, err := p.Match("flags", "", SiteNames)
	if err != nil {
		return f, err
	}
	f.Derivation = series.DerivationFlags(d)
	return f, nil
}

// Rounder rounds output values when the rounding property is set.
type Rounder struct {
	Enabled bool
	Places  int32
}

// ParseRounder reads the rounding property. Places differ per algorithm.
func ParseRounder(p Properties, places int32) (Rounder, error) {
	on, err := p.Bool("rounding", false)
	if err != nil {
		return Rounder{}, err
	}
	return Rounder{Enabled: on, Places: places}, nil
}

func (r Rounder) Round(v float64) float64 {
	if !r.Enabled {
		return v
	}
	f, _ := decimal.NewFromFloat(v).Round(r.Places).Float64()
	return f
}
