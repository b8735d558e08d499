// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package discover

import (
	"context"
	"sync"

	"github.com/thejerf/suture/v4"

	"github.com/syncthing/crossdrop/lib/events"
	"github.com/syncthing/crossdrop/lib/svcutil"
)

// A Manager runs at most one Listener at a time. Starting a new listener
// first closes the previous one and waits for it to stop. The Manager is a
// suture service and must be served for listeners to run.
type Manager struct {
	*suture.Supervisor
	evLogger events.Logger

	mut     sync.Mutex
	current *Listener
	token   suture.ServiceToken
}

func NewManager(evLogger events.Logger) *Manager {
	return &Manager{
		Supervisor: suture.New("discover.Manager", svcutil.SpecWithDebugLogger(l)),
		evLogger:   evLogger,
	}
}

// Start replaces the running listener, if any, with a new one bound at
// port. A bind failure is reported once, to the caller and as a
// DiscoveryFailed event.
func (m *Manager) Start(ctx context.Context, port int, opts Options) (*Listener, error) {
	m.mut.Lock()
	defer m.mut.Unlock()

	m.stopLocked()

	if opts.Events == nil {
		opts.Events = m.evLogger
	}
	lst, err := Listen(ctx, port, opts)
	if err != nil {
		m.evLogger.Log(events.DiscoveryFailed, map[string]interface{}{
			"port":  port,
			"error": err.Error(),
		})
		return nil, err
	}

	m.current = lst
	m.token = m.Add(svcutil.AsService(func(ctx context.Context) error {
		// A listener never restarts; a failed socket needs a new Listen.
		return svcutil.NoRestartErr(lst.Serve(ctx))
	}, lst.String()))
	return lst, nil
}

// Current returns the running listener, or nil.
func (m *Manager) Current() *Listener {
	m.mut.Lock()
	defer m.mut.Unlock()
	return m.current
}

// Stop closes the running listener and waits for it to finish.
func (m *Manager) Stop() {
	m.mut.Lock()
	defer m.mut.Unlock()
	m.stopLocked()
}

func (m *Manager) stopLocked() {
	if m.current == nil {
		return
	}
	m.current.Close()
	if err := m.RemoveAndWait(m.token, svcutil.ServiceTimeout); err != nil {
		l.Debugln("removing listener:", err)
	}
	m.current = nil
}
