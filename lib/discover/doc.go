// Copyright (C) 2015 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

/*
Package discover implements the local network receiver discovery protocol.

Local Discovery
===============

Discovery runs over IPv4 UDP broadcast, by default to port 12345. All packets
are plain ASCII with no framing, delimiters or escaping.

A sender looking for receivers broadcasts the literal

	DISCOVER

A receiver bound to the discovery port answers every packet starting with
DISCOVER by sending

	RECEIVE<name>

with its device name appended directly, to the IP address of the sender. The
answer goes to the configured reply port (12346 by default), or to the source
port of the DISCOVER packet when no reply port is configured.

Anything received that starts with RECEIVE is a reply. The name is the rest of
the packet with surrounding white space removed; the form RECEIVER:<name> sent
by some older clients is understood as well. Each reply produces one Device
record. Repeated replies produce repeated records; nothing is deduplicated.

Packets that are neither are ignored. There is no authentication: anyone on
the network can claim any name.
*/
package discover
