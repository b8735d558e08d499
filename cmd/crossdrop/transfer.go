// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/syncthing/crossdrop/lib/crypt"
	"github.com/syncthing/crossdrop/lib/locations"
	"github.com/syncthing/crossdrop/lib/manifest"
	"github.com/syncthing/crossdrop/lib/receive"
	"github.com/syncthing/crossdrop/lib/send"
	"github.com/syncthing/crossdrop/lib/svcutil"
)

var (
	errLockout = errors.New("too many failed attempts, received files deleted")
	errStopped = errors.New("receive session stopped")
)

type manifestCommand struct {
	Paths  []string `arg:"" type:"path" help:"Files and directories to list"`
	Ignore []string `help:"Glob patterns to leave out, in addition to the configured ones"`
	Save   bool     `help:"Also write the manifest to its well-known location"`
}

func (c *manifestCommand) Run(a *app) error {
	b, err := manifest.NewBuilder(slices.Concat(a.cfg.Ignores, c.Ignore))
	if err != nil {
		return err
	}
	m, err := b.Build(a.ctx, c.Paths)
	if err != nil {
		return err
	}

	if c.Save {
		path := locations.Get(locations.ManifestFile)
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return err
		}
		if err := m.Save(path); err != nil {
			return err
		}
		l.Infoln("Manifest saved to", path)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "    ")
	return enc.Encode(m)
}

type sendCommand struct {
	Paths   []string `arg:"" type:"path" help:"Files and directories to send"`
	Ignore  []string `help:"Glob patterns to leave out, in addition to the configured ones"`
	Encrypt bool     `help:"Protect the transfer with a password (default from configuration)" xor:"mode"`
	Plain   bool     `help:"Send without encryption, whatever the configuration says" xor:"mode"`
	Stage   string   `placeholder:"PATH" help:"Directory to stage the transfer in (default in the data directory)"`
}

func (c *sendCommand) Run(a *app) error {
	opts := send.Options{
		StageDir:     c.Stage,
		ManifestPath: locations.Get(locations.ManifestFile),
		Ignores:      slices.Concat(a.cfg.Ignores, c.Ignore),
		MaxFileSize:  a.cfg.MaxFileSize(),
		Events:       a.evLogger,
	}
	if opts.StageDir == "" {
		opts.StageDir = locations.Get(locations.StageDir)
	}

	if (a.cfg.Encryption || c.Encrypt) && !c.Plain {
		pw, err := a.newPrompt(true).next()
		if err != nil {
			return err
		}
		opts.Password = pw
	}

	m, err := send.Prepare(a.ctx, c.Paths, opts)
	if err != nil {
		return err
	}
	fmt.Printf("Staged %d files (%d bytes) in %s\n", m.Files(), m.TotalSize(), opts.StageDir)
	fmt.Printf("Manifest: %s\n", opts.ManifestPath)
	return nil
}

type receiveCommand struct {
	Dir      string `placeholder:"PATH" help:"Directory holding the received files (default from configuration)"`
	Manifest string `placeholder:"PATH" help:"Manifest of the transfer (default manifest.json in the receive directory)"`
}

func (c *receiveCommand) Run(a *app) error {
	dir := c.Dir
	if dir == "" {
		dir = a.cfg.ReceiveDir
	}
	path := c.Manifest
	if path == "" {
		path = filepath.Join(dir, "manifest.json")
	}

	m, err := manifest.Load(path)
	if err != nil {
		return err
	}
	s, err := receive.New(dir, m, a.evLogger)
	if err != nil {
		return err
	}
	s.Start(a.ctx)
	defer s.Stop()

	var prompt *passwordPrompt
	if encrypted(m) {
		prompt = a.newPrompt(false)
	}

	for {
		var pw string
		if prompt != nil {
			if pw, err = prompt.next(); err != nil {
				return err
			}
		}

		var out receive.Outcome
		select {
		case out = <-s.Submit(pw):
		case <-a.ctx.Done():
			return a.ctx.Err()
		}

		switch out.State {
		case receive.StateSuccess:
			fmt.Printf("Received %d files in %s\n", m.Files(), dir)
			return nil
		case receive.StateLockout:
			return svcutil.AsFatalErr(errLockout, svcutil.ExitLockout)
		case receive.StateRetry:
			// The session has already warned about the failed attempt.
			l.Debugf("%s failed (%v), %d attempts left", out.Failed, out.Failure, out.Remaining)
		default:
			if out.Failure == receive.FailureBusy {
				continue
			}
			if err := a.ctx.Err(); err != nil {
				return err
			}
			return errStopped
		}
	}
}

func encrypted(m manifest.Manifest) bool {
	for _, e := range m {
		if _, ok := crypt.PlainName(e.Path); ok && !e.IsDir {
			return true
		}
	}
	return false
}
