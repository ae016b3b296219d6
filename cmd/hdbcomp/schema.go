// Copyright (c) The Thanos Community Authors.
// Licensed under the Apache License 2.0.

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/efficientgo/core/logerrcapture"
	"github.com/efficientgo/tools/extkingpin"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/oklog/run"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/thanos-community/hdbcomp/pkg/algo/factory"
	storefactory "github.com/thanos-community/hdbcomp/pkg/series/factory"
)

func registerSchema(m map[string]setupFunc, app *kingpin.Application) {
	cmd := app.Command("schema", "Create the HDB tables used by the computations when they do not exist.")
	storeFlag := extkingpin.RegisterPathOrContent(cmd, "store.config", "YAML for the HDB store configuration.", extkingpin.WithRequired())

	m["schema"] = func(g *run.Group, logger log.Logger) error {
		ctx, cancel := context.WithCancel(context.Background())
		g.Add(func() error {
			storeConf, err := storeFlag.Content()
			if err != nil {
				return err
			}
			db, err := storefactory.NewStore(ctx, logger, storeConf)
			if err != nil {
				return err
			}
			defer logerrcapture.Do(logger, db.Close, "close store")

			if err := db.CreateSchema(ctx); err != nil {
				return err
			}
			level.Info(logger).Log("msg", "schema created")
			return nil
		}, func(error) { cancel() })
		return nil
	}
}

func registerAlgorithms(m map[string]setupFunc, app *kingpin.Application) {
	app.Command("algorithms", "List the supported algorithms.")

	m["algorithms"] = func(g *run.Group, _ log.Logger) error {
		g.Add(func() error {
			for _, n := range factory.Names() {
				fmt.Fprintln(os.Stdout, n)
			}
			return nil
		}, func(error) {})
		return nil
	}
}
