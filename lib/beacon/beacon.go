// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package beacon provides the IPv4 UDP sockets used for local broadcast
// discovery.
package beacon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

const writeTimeout = 10 * time.Second

// LimitedBroadcast is the general IPv4 broadcast address, used when no
// interface offers a directed broadcast address.
var LimitedBroadcast = net.IPv4bcast

// ListenPacket binds an IPv4 UDP socket on all interfaces at port, with
// broadcast sending enabled. Port zero picks a free port. The address is not
// marked for reuse, so a port already bound by someone else is an error.
func ListenPacket(ctx context.Context, port int) (net.PacketConn, error) {
	lc := net.ListenConfig{Control: broadcastControl}
	conn, err := lc.ListenPacket(ctx, "udp4", fmt.Sprintf(":%d", port))
	if err != nil {
		l.Debugln("listen:", err)
		return nil, err
	}
	l.Debugln("listening on", conn.LocalAddr())
	return conn, nil
}

// BroadcastAddrs returns the directed broadcast address of every IPv4
// interface address, or the limited broadcast address when there are none.
func BroadcastAddrs() []net.IP {
	var dsts []net.IP

	addrs, err := net.InterfaceAddrs()
	if err != nil {
		l.Debugln("interface addresses:", err)
	}
	for _, addr := range addrs {
		if iaddr, ok := addr.(*net.IPNet); ok && iaddr.IP.IsGlobalUnicast() && iaddr.IP.To4() != nil {
			baddr := bcast(&net.IPNet{IP: iaddr.IP.To4(), Mask: iaddr.Mask[len(iaddr.Mask)-net.IPv4len:]})
			dsts = appendUnique(dsts, baddr.IP)
		}
	}

	if len(dsts) == 0 {
		// Fall back to the general IPv4 broadcast address
		dsts = append(dsts, LimitedBroadcast)
	}

	l.Debugln("broadcast addresses:", dsts)
	return dsts
}

// SendTo writes data to each destination port on conn. It returns the
// number of destinations reached and, if that is zero, the last error.
func SendTo(conn net.PacketConn, data []byte, dsts []net.IP, port int) (int, error) {
	var lastErr error
	sent := 0
	for _, ip := range dsts {
		dst := &net.UDPAddr{IP: ip, Port: port}

		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		_, err := conn.WriteTo(data, dst)
		conn.SetWriteDeadline(time.Time{})
		if err != nil {
			l.Debugln(err, "on write to", dst)
			lastErr = err
			continue
		}

		l.Debugf("sent %d bytes to %s", len(data), dst)
		sent++
	}

	if sent == 0 {
		if lastErr == nil {
			lastErr = errors.New("no destinations")
		}
		return 0, lastErr
	}
	return sent, nil
}

// Broadcast sends a single datagram to port on every broadcast address from
// a fresh socket, which is closed again before returning.
func Broadcast(ctx context.Context, data []byte, port int) error {
	conn, err := ListenPacket(ctx, 0)
	if err != nil {
		return err
	}
	defer conn.Close()

	_, err = SendTo(conn, data, BroadcastAddrs(), port)
	return err
}

func appendUnique(ips []net.IP, ip net.IP) []net.IP {
	for _, have := range ips {
		if have.Equal(ip) {
			return ips
		}
	}
	return append(ips, ip)
}

func bcast(ip *net.IPNet) *net.IPNet {
	var bc = &net.IPNet{}
	bc.IP = make([]byte, len(ip.IP))
	copy(bc.IP, ip.IP)
	bc.Mask = ip.Mask

	offset := len(bc.IP) - len(bc.Mask)
	for i := range bc.IP {
		if i-offset >= 0 {
			bc.IP[i] = ip.IP[i] | ^ip.Mask[i-offset]
		}
	}
	return bc
}
