// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package discover

import (
	"bytes"
	"fmt"
	"net"
	"strings"
)

const (
	DiscoverToken = "DISCOVER"
	ReplyToken    = "RECEIVE"

	// Older clients answer with a colon separated form.
	legacyReplyToken = "RECEIVER:"

	DefaultPort      = 12345
	DefaultReplyPort = 12346

	// MaxPacketSize is the receive buffer size; longer packets are
	// truncated by the socket.
	MaxPacketSize = 15000
)

// A Device is a receiver that answered a DISCOVER.
type Device struct {
	Address net.IP `json:"address"`
	Port    int    `json:"port"`
	Name    string `json:"name"`
}

func (d Device) String() string {
	return fmt.Sprintf("%s (%s)", d.Name, net.JoinHostPort(d.Address.String(), fmt.Sprint(d.Port)))
}

// A TransportError means the discovery socket could not be bound, read or
// written. It ends the operation that hit it and nothing else.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("discovery %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func isDiscover(data []byte) bool {
	return bytes.HasPrefix(data, []byte(DiscoverToken))
}

func replyPacket(name string) []byte {
	return []byte(ReplyToken + name)
}

// parseReply returns the device name carried by a reply packet. Replies
// without a name are not accepted. Names are not escaped, so the legacy
// prefix wins: "RECEIVER:x" is device "x", never device "R:x".
func parseReply(data []byte) (string, bool) {
	s := string(data)
	var name string
	switch {
	case strings.HasPrefix(s, legacyReplyToken):
		name = s[len(legacyReplyToken):]
	case strings.HasPrefix(s, ReplyToken):
		name = s[len(ReplyToken):]
	default:
		return "", false
	}

	name = strings.TrimSpace(strings.ToValidUTF8(name, "�"))
	if name == "" {
		return "", false
	}
	return name, true
}
