// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Command crossdrop moves files between devices on the local network:
// receivers announce themselves, senders find them, and transfers can be
// protected with a password.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/thejerf/suture/v4"
	"github.com/willabides/kongplete"

	"github.com/syncthing/crossdrop/cmd/crossdrop/cmdutil"
	"github.com/syncthing/crossdrop/lib/config"
	"github.com/syncthing/crossdrop/lib/events"
	"github.com/syncthing/crossdrop/lib/locations"
	"github.com/syncthing/crossdrop/lib/logger"
	"github.com/syncthing/crossdrop/lib/svcutil"
)

type CLI struct {
	cmdutil.DirOptions
	MetricsAddress string   `name:"metrics-address" placeholder:"ADDR" env:"CROSSDROP_METRICS_ADDRESS" help:"Serve Prometheus metrics at http://ADDR/metrics"`
	Verbose        bool     `short:"v" help:"Print events as they happen"`
	Debug          []string `placeholder:"FACILITY" help:"Enable debug output for a facility, or \"all\""`

	Listen   listenCommand   `cmd:"" help:"Announce this device to senders on the local network"`
	Discover discoverCommand `cmd:"" help:"Find receivers on the local network"`
	Manifest manifestCommand `cmd:"" help:"Print the manifest for a selection of files and directories"`
	Send     sendCommand     `cmd:"" help:"Write the manifest and stage files for transfer"`
	Receive  receiveCommand  `cmd:"" help:"Decrypt a received transfer"`
	Encrypt  encryptCommand  `cmd:"" help:"Encrypt a single file"`
	Decrypt  decryptCommand  `cmd:"" help:"Decrypt a single file"`

	InstallCompletions kongplete.InstallCompletions `cmd:"" help:"Print commands to install shell completions"`
}

// app carries what every command needs. Services added to sup run until
// the command returns.
type app struct {
	ctx      context.Context
	cfg      config.Configuration
	evLogger events.Logger
	sup      *suture.Supervisor

	newPrompt func(confirm bool) *passwordPrompt
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	var cli CLI
	parser, err := newParser(&cli)
	if err != nil {
		l.Warnln(err)
		os.Exit(svcutil.ExitError.AsInt())
	}

	// Answers shell completion requests and exits when called by the shell.
	kongplete.Complete(parser)

	kongCtx, err := parser.Parse(os.Args[1:])
	parser.FatalIfErrorf(err)

	status := run(ctx, &cli, kongCtx)
	cancel()
	os.Exit(status.AsInt())
}

func newParser(cli *CLI) (*kong.Kong, error) {
	return kong.New(cli,
		kong.Name("crossdrop"),
		kong.Description("Local network file transfer."),
		kong.UsageOnError(),
	)
}

func run(ctx context.Context, cli *CLI, kongCtx *kong.Context) svcutil.ExitStatus {
	a, err := cli.setup(ctx)
	if err != nil {
		l.Warnln(err)
		return svcutil.ExitError
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	a.ctx = ctx
	done := a.sup.ServeBackground(ctx)

	err = kongCtx.Run(a)

	cancel()
	select {
	case <-done:
	case <-time.After(svcutil.ServiceTimeout):
		l.Warnln("Timed out waiting for services to stop")
	}

	reportError(err)
	return exitStatus(err)
}

func (cli *CLI) setup(ctx context.Context) (*app, error) {
	if err := cmdutil.SetConfigDataLocationsFromFlags(cli.HomeDir, cli.ConfDir, cli.DataDir); err != nil {
		return nil, fmt.Errorf("command line options: %w", err)
	}

	if err := setDebug(logger.DefaultLogger, cli.Debug); err != nil {
		return nil, fmt.Errorf("command line options: %w", err)
	}

	cfg, err := config.LoadOrDefault(locations.Get(locations.ConfigFile))
	if err != nil {
		return nil, err
	}

	a := &app{
		ctx:      ctx,
		cfg:      cfg,
		evLogger: events.NewLogger(),
		sup:      suture.New("main", svcutil.SpecWithDebugLogger(l)),

		newPrompt: newPasswordPrompt,
	}
	if cli.Verbose {
		a.sup.Add(newVerboseService(a.evLogger))
	}
	if cli.MetricsAddress != "" {
		a.sup.Add(metricsService(cli.MetricsAddress))
	}

	a.evLogger.Log(events.Starting, map[string]string{
		"home":   locations.GetBaseDir(locations.ConfigBaseDir),
		"device": cfg.DeviceName,
	})
	return a, nil
}

func metricsService(addr string) suture.Service {
	return svcutil.AsService(func(ctx context.Context) error {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}

		doneCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go func() {
			<-doneCtx.Done()
			srv.Close()
		}()

		l.Infoln("Serving metrics on", addr)
		err := srv.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}, "metrics")
}

// setDebug enables debug output for the named facilities.
func setDebug(lg logger.Logger, facilities []string) error {
	known := lg.Facilities()
	for _, f := range facilities {
		if f == "all" {
			for name := range known {
				lg.SetDebug(name, true)
			}
			continue
		}
		if _, ok := known[f]; !ok {
			names := make([]string, 0, len(known))
			for name := range known {
				names = append(names, name)
			}
			slices.Sort(names)
			return fmt.Errorf("unknown debug facility %q (known: %s)", f, strings.Join(names, ", "))
		}
		lg.SetDebug(f, true)
	}
	return nil
}

// reportError warns about err unless it was an interrupt or a lockout, which
// the receive session has already reported.
func reportError(err error) {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, errLockout) {
		return
	}
	l.Warnln(err)
}

// exitStatus maps a command error to the process exit status.
func exitStatus(err error) svcutil.ExitStatus {
	if err == nil {
		return svcutil.ExitSuccess
	}
	var ferr *svcutil.FatalErr
	if errors.As(err, &ferr) {
		return ferr.Status
	}
	return svcutil.ExitError
}
