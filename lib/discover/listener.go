// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package discover

import (
	"context"
	"fmt"
	"net"
	"sync"

	"golang.org/x/net/ipv4"

	"github.com/syncthing/crossdrop/lib/beacon"
	"github.com/syncthing/crossdrop/lib/events"
)

type Options struct {
	// Name is sent in answer to DISCOVER. A listener without a name only
	// collects replies.
	Name string
	// ReplyPort is where answers to DISCOVER go. Zero means the source
	// port of the DISCOVER packet.
	ReplyPort int
	// Handler is called on the listener goroutine for every reply.
	Handler func(Device)
	Events  events.Logger
}

// A Listener owns one bound discovery socket. It answers DISCOVER packets
// and reports replies until closed.
type Listener struct {
	conn  net.PacketConn
	pconn *ipv4.PacketConn
	port  int
	opts  Options

	closeOnce sync.Once
	closed    chan struct{}
}

// Listen binds the discovery socket at port. Nobody else can bind the port
// until the listener is closed.
func Listen(ctx context.Context, port int, opts Options) (*Listener, error) {
	conn, err := beacon.ListenPacket(ctx, port)
	if err != nil {
		return nil, &TransportError{Op: "bind", Err: err}
	}
	if opts.Events == nil {
		opts.Events = events.NoopLogger
	}

	pconn := ipv4.NewPacketConn(conn)
	if err := pconn.SetControlMessage(ipv4.FlagDst|ipv4.FlagInterface, true); err != nil {
		// Not available on every platform; only used for debug output.
		l.Debugln("control messages:", err)
	}

	return &Listener{
		conn:   conn,
		pconn:  pconn,
		port:   conn.LocalAddr().(*net.UDPAddr).Port,
		opts:   opts,
		closed: make(chan struct{}),
	}, nil
}

// Serve handles packets until the context is cancelled or the listener is
// closed, which both return nil. The socket is closed when Serve returns.
func (lst *Listener) Serve(ctx context.Context) error {
	l.Debugln(lst, "starting")
	defer l.Debugln(lst, "stopping")

	doneCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-doneCtx.Done()
		lst.Close()
	}()

	bs := make([]byte, MaxPacketSize)
	for {
		n, cm, src, err := lst.pconn.ReadFrom(bs)
		if err != nil {
			select {
			case <-lst.closed:
				return nil
			default:
			}
			l.Debugln(lst, err)
			return &TransportError{Op: "receive", Err: err}
		}

		if cm != nil {
			l.Debugf("recv %d bytes from %s to %s on interface %d", n, src, cm.Dst, cm.IfIndex)
		} else {
			l.Debugf("recv %d bytes from %s", n, src)
		}
		lst.handle(bs[:n], src)
	}
}

func (lst *Listener) handle(data []byte, src net.Addr) {
	addr, ok := src.(*net.UDPAddr)
	if !ok {
		return
	}
	if lst.isSelf(addr) {
		l.Debugln("ignoring own packet from", addr)
		return
	}

	if isDiscover(data) {
		metricPacketsReceived.WithLabelValues(metricKindDiscover).Inc()
		lst.answer(addr)
		return
	}

	if name, ok := parseReply(data); ok {
		metricPacketsReceived.WithLabelValues(metricKindReply).Inc()
		dev := Device{Address: addr.IP, Port: addr.Port, Name: name}
		metricDevicesFound.Inc()
		l.Debugln("found", dev)
		if lst.opts.Handler != nil {
			lst.opts.Handler(dev)
		}
		lst.opts.Events.Log(events.DeviceDiscovered, dev)
		return
	}

	metricPacketsReceived.WithLabelValues(metricKindOther).Inc()
	l.Debugf("ignoring %d byte packet from %s", len(data), addr)
}

func (lst *Listener) answer(src *net.UDPAddr) {
	if lst.opts.Name == "" {
		l.Debugln("not answering DISCOVER from", src)
		return
	}

	dst := &net.UDPAddr{IP: src.IP, Port: src.Port}
	if lst.opts.ReplyPort != 0 {
		dst.Port = lst.opts.ReplyPort
	}
	if _, err := lst.conn.WriteTo(replyPacket(lst.opts.Name), dst); err != nil {
		metricSendFailures.WithLabelValues(metricKindReply).Inc()
		l.Debugln("reply to", dst, err)
		return
	}
	metricPacketsSent.WithLabelValues(metricKindReply).Inc()
	l.Debugln("answered", src, "at", dst)
}

// isSelf returns true for packets sent from this listener's own socket,
// which reach it when it broadcasts to its own port.
func (lst *Listener) isSelf(src *net.UDPAddr) bool {
	if src.Port != lst.port {
		return false
	}
	if src.IP.IsLoopback() {
		return true
	}
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return false
	}
	for _, addr := range addrs {
		if ipnet, ok := addr.(*net.IPNet); ok && ipnet.IP.Equal(src.IP) {
			return true
		}
	}
	return false
}

// Discover broadcasts DISCOVER to port from the listener's own socket, so
// that replies addressed to the source port come back to this listener.
func (lst *Listener) Discover(port int) error {
	_, err := beacon.SendTo(lst.conn, []byte(DiscoverToken), beacon.BroadcastAddrs(), port)
	return sendResult(metricKindDiscover, err)
}

// DiscoverTo sends DISCOVER to a single address from the listener's socket.
func (lst *Listener) DiscoverTo(addr *net.UDPAddr) error {
	_, err := lst.conn.WriteTo([]byte(DiscoverToken), addr)
	return sendResult(metricKindDiscover, err)
}

// Port returns the bound port.
func (lst *Listener) Port() int {
	return lst.port
}

// Close releases the socket. It is safe to call more than once.
func (lst *Listener) Close() error {
	var err error
	lst.closeOnce.Do(func() {
		close(lst.closed)
		err = lst.conn.Close()
	})
	return err
}

func (lst *Listener) String() string {
	return fmt.Sprintf("discover.Listener@%p(:%d)", lst, lst.port)
}

// BroadcastDiscover sends a single DISCOVER to port on every broadcast
// address, from a socket opened and closed within the call. Replies go to
// whatever listens on the reply port.
func BroadcastDiscover(ctx context.Context, port int) error {
	return sendResult(metricKindDiscover, beacon.Broadcast(ctx, []byte(DiscoverToken), port))
}

func sendResult(kind string, err error) error {
	if err != nil {
		metricSendFailures.WithLabelValues(kind).Inc()
		return &TransportError{Op: "send", Err: err}
	}
	metricPacketsSent.WithLabelValues(kind).Inc()
	return nil
}
