// Copyright (c) The Thanos Community Authors.
// Licensed under the Apache License 2.0.

package series

import (
	"strings"
	"time"

	"github.com/efficientgo/core/errors"
)

// Interval is the HDB time step of a series. It also selects the fact table the samples live in.
type Interval string

const (
	Instant   Interval = "instant"
	Hour      Interval = "hour"
	Day       Interval = "day"
	Month     Interval = "month"
	Year      Interval = "year"
	WaterYear Interval = "wy"
)

// RealTable is the only supported table selector. Model tables (M_) are not handled.
const RealTable = "R_"

func ParseInterval(s string) (Interval, error) {
	switch i := Interval(strings.ToLower(strings.TrimSpace(s))); i {
	case Instant, Hour, Day, Month, Year, WaterYear:
		return i, nil
	default:
		return "", errors.Newf("unsupported interval %q", s)
	}
}

func (i Interval) IsInstant() bool { return i == Instant }

// Truncate returns the start of the interval containing t, in UTC.
func (i Interval) Truncate(t time.Time) time.Time {
	t = t.UTC()
	switch i {
	case Hour:
		return t.Truncate(time.Hour)
	case Day:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	case Month:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	case Year:
		return time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	case WaterYear:
		y := t.Year()
		if t.Month() < time.October {
			y--
		}
		return time.Date(y, time.October, 1, 0, 0, 0, 0, time.UTC)
	default:
		return t
	}
}

// Add moves t by n intervals. Instant intervals do not move.
func (i Interval) Add(t time.Time, n int) time.Time {
	switch i {
	case Hour:
		return t.Add(time.Duration(n) * time.Hour)
	case Day:
		return t.AddDate(0, 0, n)
	case Month:
		return t.AddDate(0, n, 0)
	case Year, WaterYear:
		return t.AddDate(n, 0, 0)
	default:
		return t
	}
}

// Steps returns the start times of every interval in [from, until).
func (i Interval) Steps(from, until time.Time) []time.Time {
	if i.IsInstant() {
		return nil
	}
	var out []time.Time
	for t := i.Truncate(from); t.Before(until); t = i.Add(t, 1) {
		if t.Before(from) {
			continue
		}
		out = append(out, t)
	}
	return out
}

// Table returns the fact table holding samples of this interval.
func (i Interval) Table(selector string) (string, error) {
	if !strings.EqualFold(selector, RealTable) {
		return "", errors.Newf("unsupported table selector %q, only %s is supported", selector, RealTable)
	}
	if _, err := ParseInterval(string(i)); err != nil {
		return "", err
	}
	return "r_" + string(i), nil
}
