// Copyright (C) 2015 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package main

import (
	"context"
	"fmt"

	"github.com/syncthing/crossdrop/lib/events"
)

// The verbose logging service subscribes to events and prints these in
// verbose format to the console.
type verboseService struct {
	sub events.Subscription
}

// newVerboseService subscribes at once, so that events logged before the
// service is running are not lost.
func newVerboseService(evLogger events.Logger) *verboseService {
	return &verboseService{
		sub: evLogger.Subscribe(events.AllEvents),
	}
}

func (s *verboseService) Serve(ctx context.Context) error {
	for {
		select {
		case ev := <-s.sub.C():
			if formatted := formatEvent(ev); formatted != "" {
				l.Verboseln(formatted)
			}
		case <-ctx.Done():
			s.sub.Unsubscribe()
			return nil
		}
	}
}

func (*verboseService) String() string {
	return "verboseService"
}

func formatEvent(ev events.Event) string {
	switch ev.Type {
	case events.Starting:
		return fmt.Sprintf("Starting up as %q (%s)", field(ev, "device"), field(ev, "home"))

	case events.DeviceDiscovered:
		return fmt.Sprintf("Discovered device %v", ev.Data)

	case events.DiscoveryFailed:
		return fmt.Sprintf("Discovery on port %v failed: %v", field(ev, "port"), field(ev, "error"))

	case events.ManifestWritten:
		return fmt.Sprintf("Wrote manifest of %v entries (%v bytes) to %v", field(ev, "entries"), field(ev, "size"), field(ev, "path"))

	case events.StateChanged:
		return fmt.Sprintf("Session %v is now %v", field(ev, "session"), field(ev, "to"))

	case events.ItemStarted:
		return fmt.Sprintf("Started %q", field(ev, "item"))

	case events.ItemFinished:
		return fmt.Sprintf("Finished %q (%v bytes)", field(ev, "item"), field(ev, "size"))

	case events.DecryptProgress:
		return fmt.Sprintf("Decrypted %v of %v files", field(ev, "done"), field(ev, "total"))

	case events.DecryptFailed:
		msg := "unknown error"
		if err, ok := field(ev, "error").(*string); ok && err != nil {
			// Dereference, or Sprintf prints the pointer.
			msg = *err
		}
		return fmt.Sprintf("Could not decrypt %q (%v): %s", field(ev, "item"), field(ev, "kind"), msg)

	case events.SessionLockout:
		return fmt.Sprintf("Session %v locked out after failing on %q", field(ev, "session"), field(ev, "item"))

	case events.SessionCompleted:
		return fmt.Sprintf("Session %v completed, %v files decrypted", field(ev, "session"), field(ev, "files"))
	}

	return fmt.Sprintf("%s %#v", ev.Type, ev)
}

// field returns one value of the map an event carries as data.
func field(ev events.Event, key string) interface{} {
	switch data := ev.Data.(type) {
	case map[string]interface{}:
		return data[key]
	case map[string]string:
		return data[key]
	}
	return nil
}
