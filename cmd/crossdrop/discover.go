// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/syncthing/crossdrop/lib/discover"
)

type listenCommand struct {
	Name      string `help:"Device name to announce (default from configuration)"`
	Port      int    `help:"Discovery port (default from configuration)"`
	ReplyPort int    `name:"reply-port" help:"Port answers are sent to, 0 for the port the request came from (default from configuration)"`
}

func (c *listenCommand) Run(a *app) error {
	name := c.Name
	if name == "" {
		name = a.cfg.DeviceName
	}
	port := c.Port
	if port == 0 {
		port = a.cfg.DiscoveryPort
	}
	replyPort := c.ReplyPort
	if replyPort == 0 {
		replyPort = a.cfg.ReplyPort
	}

	mgr := discover.NewManager(a.evLogger)
	a.sup.Add(mgr)
	if _, err := mgr.Start(a.ctx, port, discover.Options{
		Name:      name,
		ReplyPort: replyPort,
	}); err != nil {
		return err
	}
	defer mgr.Stop()

	l.Infof("Announcing %q on UDP port %d", name, port)
	<-a.ctx.Done()
	return nil
}

type discoverCommand struct {
	Timeout time.Duration `default:"3s" help:"How long to wait for answers"`
	Port    int           `help:"Discovery port to broadcast to (default from configuration)"`
	Listen  int           `help:"Port to collect answers on (default: the configured reply port)"`
	JSON    bool          `name:"json" help:"Print devices as JSON lines"`
	Oneshot bool          `help:"Broadcast from a separate socket closed right after sending; answers still arrive on the listen port"`
}

func (c *discoverCommand) Run(a *app) error {
	port := c.Port
	if port == 0 {
		port = a.cfg.DiscoveryPort
	}
	listenPort := c.Listen
	if listenPort == 0 {
		listenPort = a.cfg.ReplyPort
	}

	ctx, cancel := context.WithTimeout(a.ctx, c.Timeout)
	defer cancel()

	found := make(chan discover.Device, 16)
	lst, err := discover.Listen(ctx, listenPort, discover.Options{
		Handler: func(dev discover.Device) {
			select {
			case found <- dev:
			default:
				l.Debugln("dropping", dev)
			}
		},
		Events: a.evLogger,
	})
	if err != nil {
		return err
	}

	served := make(chan error, 1)
	go func() { served <- lst.Serve(ctx) }()

	if c.Oneshot {
		err = discover.BroadcastDiscover(ctx, port)
	} else {
		err = lst.Discover(port)
	}
	if err != nil {
		cancel()
		<-served
		return err
	}

	n := 0
	for {
		select {
		case dev := <-found:
			n++
			if err := printDevice(os.Stdout, dev, c.JSON); err != nil {
				cancel()
				<-served
				return err
			}
		case err := <-served:
			if err != nil {
				return err
			}
			for len(found) > 0 {
				n++
				if err := printDevice(os.Stdout, <-found, c.JSON); err != nil {
					return err
				}
			}
			if n == 0 {
				l.Infoln("No receivers found")
			}
			return nil
		}
	}
}

func printDevice(w io.Writer, dev discover.Device, asJSON bool) error {
	if asJSON {
		return json.NewEncoder(w).Encode(dev)
	}
	_, err := fmt.Fprintln(w, dev)
	return err
}
