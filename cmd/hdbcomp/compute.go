// Copyright (c) The Thanos Community Authors.
// Licensed under the Apache License 2.0.

package main

import (
	"context"
	"os"
	"time"

	"github.com/efficientgo/core/errors"
	"github.com/efficientgo/core/logerrcapture"
	"github.com/efficientgo/tools/extkingpin"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/oklog/run"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/thanos-community/hdbcomp/pkg/algo"
	"github.com/thanos-community/hdbcomp/pkg/algo/factory"
	"github.com/thanos-community/hdbcomp/pkg/dataframe"
	expfactory "github.com/thanos-community/hdbcomp/pkg/exporter/factory"
	"github.com/thanos-community/hdbcomp/pkg/output/debug"
	"github.com/thanos-community/hdbcomp/pkg/series"
	storefactory "github.com/thanos-community/hdbcomp/pkg/series/factory"
)

// timeValue is a kingpin value accepting dates and RFC 3339 timestamps, in UTC.
type timeValue struct{ t *time.Time }

func (v timeValue) Set(s string) error {
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			*v.t = t.UTC()
			return nil
		}
	}
	return errors.Newf("invalid time %q, expected YYYY-MM-DD or RFC 3339", s)
}

func (v timeValue) String() string {
	if v.t == nil || v.t.IsZero() {
		return ""
	}
	return v.t.Format(time.RFC3339)
}

func timeFlag(f *kingpin.FlagClause) *time.Time {
	t := &time.Time{}
	f.SetValue(timeValue{t: t})
	return t
}

func registerCompute(m map[string]setupFunc, app *kingpin.Application) {
	cmd := app.Command("compute", "Run computations over a time window and save their outputs.")
	storeFlag := extkingpin.RegisterPathOrContent(cmd, "store.config", "YAML for the HDB store configuration.", extkingpin.WithRequired())
	compsFlag := extkingpin.RegisterPathOrContent(cmd, "computations", "YAML for the computations to run.", extkingpin.WithRequired())
	exportFlag := extkingpin.RegisterPathOrContent(cmd, "export.config", "YAML for the export of the computed samples. Nothing is exported when empty.")
	from := timeFlag(cmd.Flag("from", "Start of the window, inclusive.").Required())
	until := timeFlag(cmd.Flag("until", "End of the window, exclusive.").Required())
	ids := cmd.Flag("computation", "ID of a computation to run. Repeatable, all computations run when unset.").Int64List()
	dbgOut := cmd.Flag("debug", "Print the computed samples as a table to stdout.").Bool()

	m["compute"] = func(g *run.Group, logger log.Logger) error {
		ctx, cancel := context.WithCancel(context.Background())
		g.Add(func() error {
			storeConf, err := storeFlag.Content()
			if err != nil {
				return err
			}
			compsConf, err := compsFlag.Content()
			if err != nil {
				return err
			}
			cfg, err := algo.ParseComputations(compsConf)
			if err != nil {
				return err
			}
			exportConf, err := exportFlag.Content()
			if err != nil {
				return err
			}

			db, err := storefactory.NewStore(ctx, logger, storeConf)
			if err != nil {
				return err
			}
			defer logerrcapture.Do(logger, db.Close, "close store")

			outs, err := runComputations(ctx, logger, algo.NewRunner(logger, db), selectComputations(cfg.Computations, *ids), *from, *until)
			if err != nil {
				return err
			}
			return output(ctx, logger, outs, exportConf, *dbgOut)
		}, func(error) { cancel() })
		return nil
	}
}

func selectComputations(comps []algo.Computation, ids []int64) []algo.Computation {
	if len(ids) == 0 {
		return comps
	}
	want := map[int64]struct{}{}
	for _, id := range ids {
		want[id] = struct{}{}
	}
	var out []algo.Computation
	for _, c := range comps {
		if _, ok := want[c.ID]; ok {
			out = append(out, c)
		}
	}
	return out
}

// runComputations runs every computation in order. Computations that cannot be built or whose batch
// fails are logged and counted, the remaining computations still run.
func runComputations(ctx context.Context, logger log.Logger, r *algo.Runner, comps []algo.Computation, from, until time.Time) ([]*series.TimeSeries, error) {
	var (
		outs   []*series.TimeSeries
		failed int
	)
	for _, comp := range comps {
		alg, err := factory.NewAlgorithm(comp)
		if err != nil {
			failed++
			level.Error(logger).Log("msg", "invalid computation", "computation", comp.ID, "name", comp.Name, "err", err)
			continue
		}
		res, err := r.Run(ctx, comp, alg, from, until)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			failed++
			level.Error(logger).Log("msg", "computation failed", "computation", comp.ID, "name", comp.Name, "batch", res.BatchID, "err", err)
			continue
		}
		outs = append(outs, res.Outputs...)
	}
	if failed > 0 {
		return outs, errors.Newf("%d of %d computations failed", failed, len(comps))
	}
	return outs, nil
}

func output(ctx context.Context, logger log.Logger, outs []*series.TimeSeries, exportConf []byte, dbgOut bool) error {
	df := dataframe.FromTimeSeries(outs, dataframe.PendingOnly())
	if dbgOut {
		w := debug.NewDebugWriter(os.Stdout, nil)
		if err := w.Write(df); err != nil {
			return err
		}
		if err := w.Close(); err != nil {
			return err
		}
	}
	if len(exportConf) == 0 {
		return nil
	}

	cfg, err := expfactory.ParseConfig(exportConf)
	if err != nil {
		return err
	}
	e, err := expfactory.NewExporter(logger, cfg)
	if err != nil {
		return err
	}
	if err := e.Export(ctx, df); err != nil {
		return errors.Wrapf(err, "export to %s", e.Path())
	}
	level.Info(logger).Log("msg", "exported computed samples", "path", e.Path(), "series", len(outs))
	return nil
}
