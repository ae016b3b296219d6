// Copyright (c) The Thanos Community Authors.
// Licensed under the Apache License 2.0.

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"github.com/efficientgo/core/errors"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/oklog/run"
	"github.com/prometheus/common/version"
	"go.uber.org/automaxprocs/maxprocs"
	"gopkg.in/alecthomas/kingpin.v2"
)

type setupFunc func(*run.Group, log.Logger) error

func main() {
	app := kingpin.New(filepath.Base(os.Args[0]), "Runs HDB time series computations.")
	app.Version(version.Print("hdbcomp"))
	app.HelpFlag.Short('h')

	logLevel := app.Flag("log.level", "Log filtering level.").
		Default("info").Enum("error", "warn", "info", "debug")
	logFormat := app.Flag("log.format", "Log format to use.").
		Default("logfmt").Enum("logfmt", "json")

	cmds := map[string]setupFunc{}
	registerCompute(cmds, app)
	registerSchema(cmds, app)
	registerAlgorithms(cmds, app)

	cmd, err := app.Parse(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, errors.Wrap(err, "parsing command line arguments"))
		app.Usage(os.Args[1:])
		os.Exit(2)
	}

	logger := newLogger(*logLevel, *logFormat)
	if _, err := maxprocs.Set(maxprocs.Logger(func(template string, args ...interface{}) {
		level.Debug(logger).Log("msg", fmt.Sprintf(template, args...))
	})); err != nil {
		level.Warn(logger).Log("msg", "failed to set GOMAXPROCS", "err", err)
	}

	var g run.Group
	if err := cmds[cmd](&g, logger); err != nil {
		level.Error(logger).Log("err", errors.Wrapf(err, "preparing %s command", cmd))
		os.Exit(1)
	}
	g.Add(run.SignalHandler(context.Background(), syscall.SIGINT, syscall.SIGTERM))

	if err := g.Run(); err != nil {
		if sig, ok := err.(run.SignalError); ok {
			level.Info(logger).Log("msg", "interrupted", "signal", sig.Signal)
			os.Exit(1)
		}
		level.Error(logger).Log("err", fmt.Sprintf("%+v", errors.Wrapf(err, "%s command failed", cmd)))
		os.Exit(1)
	}
	level.Debug(logger).Log("msg", "exiting")
}

func newLogger(logLevel, logFormat string) log.Logger {
	var logger log.Logger
	if logFormat == "json" {
		logger = log.NewJSONLogger(log.NewSyncWriter(os.Stderr))
	} else {
		logger = log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	}

	var lvl level.Option
	switch logLevel {
	case "error":
		lvl = level.AllowError()
	case "warn":
		lvl = level.AllowWarn()
	case "debug":
		lvl = level.AllowDebug()
	default:
		lvl = level.AllowInfo()
	}
	logger = level.NewFilter(logger, lvl)
	return log.With(logger, "ts", log.DefaultTimestampUTC, "caller", log.DefaultCaller)
}
