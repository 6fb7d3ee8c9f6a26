// Copyright (c) 2026 Vesselcomm. All rights reserved.
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE file.

// Package endpoint implements the transport-agnostic network handle shared
// by the provider, AIS sinks and Location sinks: TCP-connect, TCP-listen,
// UDP-connect and UDP-listen, behind uniform Send/ReadLine operations with
// lazy connect and connection-loss recovery.
//
// Each transport owns only the state it can legally have — a tagged union
// of four concrete types behind the Endpoint interface, rather than one
// struct wide enough to hold every variant's fields.
package endpoint

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"time"
)

const (
	keepAliveIdle     = 30 * time.Second
	keepAliveInterval = 30 * time.Second
	udpReadBufferSize = 1024
)

// dscpCodePoint marks outbound TCP connections when nonzero. It is process-
// global rather than per-Endpoint because the forwarder applies one uplink
// priority policy to every outbound sink, set once at startup.
var dscpCodePoint int

// SetDSCP configures the DSCP code point applied to outbound TCP connections
// established after this call. name follows ParseDSCP's vocabulary ("EF",
// "AF11".."AF43", "CS0".."CS7"); an empty name disables marking.
func SetDSCP(name string) error {
	val, err := ParseDSCP(name)
	if err != nil {
		return err
	}
	dscpCodePoint = val
	return nil
}

// Endpoint is a polymorphic network handle selected at parse time from
// "<scheme>://<host>:<port>".
type Endpoint interface {
	// Send transmits payload. For listen-only variants this is a no-op.
	Send(payload []byte) error
	// ReadLine returns exactly one line (up to and including the first '\n')
	// or an empty string on EOF.
	ReadLine() (string, error)
	// String is the canonical "<scheme>://<resolved-addr>" form.
	String() string
}

// Parse builds an Endpoint from a "<scheme>://<host>:<port>" string.
// Recognized schemes: tcp, udp, tcp-listen, udp-listen. Host resolution
// occurs once here, at construction.
func Parse(raw string) (Endpoint, error) {
	scheme, addr, found := strings.Cut(raw, "://")
	if !found {
		return nil, fmt.Errorf("endpoint %q: missing scheme", raw)
	}

	switch scheme {
	case "tcp", "tcp-listen":
		a, err := net.ResolveTCPAddr("tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("endpoint %q: resolve: %w", raw, err)
		}
		addr = a.String()
	case "udp", "udp-listen":
		a, err := net.ResolveUDPAddr("udp", addr)
		if err != nil {
			return nil, fmt.Errorf("endpoint %q: resolve: %w", raw, err)
		}
		addr = a.String()
	}

	switch scheme {
	case "tcp":
		return &tcpOut{addr: addr}, nil
	case "tcp-listen":
		return &tcpIn{addr: addr}, nil
	case "udp":
		return &udpOut{addr: addr}, nil
	case "udp-listen":
		return &udpIn{addr: addr}, nil
	default:
		return nil, fmt.Errorf("endpoint %q: unrecognized scheme %q", raw, scheme)
	}
}

// ---- tcp-connect --------------------------------------------------------

// tcpOut is a single outbound TCP stream, connected lazily. At most one
// connect is outstanding; any I/O error drops the stream so the next call
// triggers a fresh connect — no backoff, no retained socket.
type tcpOut struct {
	addr   string
	conn   net.Conn
	reader *bufio.Reader
}

func (e *tcpOut) String() string { return "tcp://" + e.addr }

func (e *tcpOut) ensureConnected() error {
	if e.conn != nil {
		return nil
	}
	conn, err := net.Dial("tcp", e.addr)
	if err != nil {
		return fmt.Errorf("%s: connect: %w", e, err)
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		tc.SetKeepAliveConfig(net.KeepAliveConfig{
			Enable:   true,
			Idle:     keepAliveIdle,
			Interval: keepAliveInterval,
		})
	}
	if err := applyDSCP(conn, dscpCodePoint); err != nil {
		conn.Close()
		return fmt.Errorf("%s: dscp: %w", e, err)
	}
	e.conn = conn
	e.reader = bufio.NewReader(conn)
	return nil
}

func (e *tcpOut) drop() {
	if e.conn != nil {
		e.conn.Close()
	}
	e.conn = nil
	e.reader = nil
}

func (e *tcpOut) Send(payload []byte) error {
	if err := e.ensureConnected(); err != nil {
		return err
	}
	if _, err := e.conn.Write(payload); err != nil {
		e.drop()
		return fmt.Errorf("%s: send: %w", e, err)
	}
	return nil
}

func (e *tcpOut) ReadLine() (string, error) {
	if err := e.ensureConnected(); err != nil {
		return "", err
	}
	line, err := e.reader.ReadString('\n')
	if err != nil {
		e.drop()
		if err.Error() == "EOF" {
			return "", nil
		}
		return "", fmt.Errorf("%s: read: %w", e, err)
	}
	return line, nil
}

// ---- tcp-listen ----------------------------------------------------------

// tcpIn accepts and line-buffers multiple concurrent inbound streams. It is
// an input only: Send is a no-op.
type tcpIn struct {
	addr     string
	listener net.Listener
	streams  []*bufio.Reader
	conns    []net.Conn
}

func (e *tcpIn) String() string { return "tcp-listen://" + e.addr }

func (e *tcpIn) Send([]byte) error { return nil }

func (e *tcpIn) ensureListening() error {
	if e.listener != nil {
		return nil
	}
	l, err := net.Listen("tcp", e.addr)
	if err != nil {
		return fmt.Errorf("%s: listen: %w", e, err)
	}
	e.listener = l
	return nil
}

// acceptPending drains any connections already waiting in the listen
// backlog. A short read/accept deadline stands in for a true nonblocking
// socket here: Go's net package does not expose O_NONBLOCK directly, and a
// near-zero deadline gets the same observable behavior (return immediately
// if nothing is ready) at the cost of up to 1ms of busy-polling latency per
// stream per ReadLine call, with no backoff when idle. Acceptable for the
// sentence rates this protocol sees; would need revisiting for a much
// larger number of concurrent streams.
func (e *tcpIn) acceptPending() {
	tl, ok := e.listener.(*net.TCPListener)
	if !ok {
		return
	}
	for {
		tl.SetDeadline(time.Now().Add(1 * time.Millisecond))
		conn, err := tl.Accept()
		if err != nil {
			return
		}
		e.conns = append(e.conns, conn)
		e.streams = append(e.streams, bufio.NewReader(conn))
	}
}

func (e *tcpIn) ReadLine() (string, error) {
	if err := e.ensureListening(); err != nil {
		return "", err
	}
	e.acceptPending()

	for i := 0; i < len(e.streams); i++ {
		conn := e.conns[i]
		if tc, ok := conn.(*net.TCPConn); ok {
			// See acceptPending: deadline-based polling, not a true
			// nonblocking read.
			tc.SetReadDeadline(time.Now().Add(1 * time.Millisecond))
		}
		line, err := e.streams[i].ReadString('\n')
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			// Empty read on this stream: drop it and move to the next.
			conn.Close()
			e.conns = append(e.conns[:i], e.conns[i+1:]...)
			e.streams = append(e.streams[:i], e.streams[i+1:]...)
			i--
			continue
		}
		if line != "" {
			return line, nil
		}
	}
	return "", nil
}

// ---- udp-connect -----------------------------------------------------------

// udpOut sends to a fixed remote address from an ephemeral local port,
// bound lazily on first use.
type udpOut struct {
	addr string
	conn net.Conn
}

func (e *udpOut) String() string { return "udp://" + e.addr }

func (e *udpOut) ensureBound() error {
	if e.conn != nil {
		return nil
	}
	conn, err := net.Dial("udp", e.addr)
	if err != nil {
		return fmt.Errorf("%s: dial: %w", e, err)
	}
	e.conn = conn
	return nil
}

func (e *udpOut) Send(payload []byte) error {
	if err := e.ensureBound(); err != nil {
		return err
	}
	if _, err := e.conn.Write(payload); err != nil {
		e.conn = nil
		return fmt.Errorf("%s: send: %w", e, err)
	}
	return nil
}

func (e *udpOut) ReadLine() (string, error) {
	if err := e.ensureBound(); err != nil {
		return "", err
	}
	buf := make([]byte, udpReadBufferSize)
	n, err := e.conn.Read(buf)
	if err != nil {
		return "", fmt.Errorf("%s: read: %w", e, err)
	}
	return string(buf[:n]), nil
}

// ---- udp-listen ------------------------------------------------------------

// udpIn receives datagrams on a fixed local address, bound lazily.
type udpIn struct {
	addr string
	conn *net.UDPConn
}

func (e *udpIn) String() string { return "udp-listen://" + e.addr }

func (e *udpIn) Send([]byte) error { return nil }

func (e *udpIn) ensureBound() error {
	if e.conn != nil {
		return nil
	}
	laddr, err := net.ResolveUDPAddr("udp", e.addr)
	if err != nil {
		return fmt.Errorf("%s: resolve: %w", e, err)
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return fmt.Errorf("%s: listen: %w", e, err)
	}
	e.conn = conn
	return nil
}

func (e *udpIn) ReadLine() (string, error) {
	if err := e.ensureBound(); err != nil {
		return "", err
	}
	buf := make([]byte, udpReadBufferSize)
	n, _, err := e.conn.ReadFromUDP(buf)
	if err != nil {
		return "", fmt.Errorf("%s: read: %w", e, err)
	}
	return string(buf[:n]), nil
}
