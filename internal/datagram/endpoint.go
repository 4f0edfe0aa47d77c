// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package datagram implements the Datagram (UDP) Endpoint: a bound,
// connectionless socket that sends to and receives from arbitrary peers,
// each datagram carrying its own source address. Unlike the stream side,
// UDP has no separate bind/listen syscalls in the BSD sockets API, so
// Bind alone takes the Endpoint from created straight to a ready-to-use
// socket.
package datagram

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
)

// State is the lifecycle phase of a Datagram Endpoint.
type State int32

const (
	StateCreated State = iota
	StateBound
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateBound:
		return "bound"
	case StateDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// ErrWrongState is returned when an operation is attempted from a
// lifecycle state that doesn't support it.
var ErrWrongState = errors.New("datagram: operation not valid in current state")

// Endpoint is a single UDP Datagram Endpoint.
type Endpoint struct {
	mu    sync.Mutex
	state State
	conn  *net.UDPConn

	broadcast bool
}

// NewEndpoint returns a freshly created Endpoint in state Created.
func NewEndpoint() *Endpoint {
	return &Endpoint{state: StateCreated}
}

// Bind opens a UDP socket on ip:port, enables SO_BROADCAST when
// broadcast is true and, on
// Windows, disables the ICMP port-unreachable connection-reset behavior
// that would otherwise surface as a spurious read error on a connection-
// less socket. ip == "" binds the wildcard address; port == 0 picks an
// ephemeral port.
func (e *Endpoint) Bind(ip string, port int, broadcast bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateCreated {
		return fmt.Errorf("%w: bind requires state created, have %s", ErrWrongState, e.state)
	}

	laddr := &net.UDPAddr{Port: port}
	if ip != "" {
		parsed := net.ParseIP(ip)
		if parsed == nil {
			return fmt.Errorf("invalid ip address %q", ip)
		}
		laddr.IP = parsed
	}

	conn, err := listenUDPWithOptions(laddr, broadcast)
	if err != nil {
		return fmt.Errorf("bind %s:%d: %w", ip, port, err)
	}
	e.conn = conn
	e.broadcast = broadcast
	e.state = StateBound
	return nil
}

// SendTo writes payload to ip:port. It is the blocking half of
// async_send_to.
func (e *Endpoint) SendTo(payload []byte, ip string, port int) (int, error) {
	e.mu.Lock()
	conn := e.conn
	state := e.state
	e.mu.Unlock()
	if state != StateBound {
		return 0, fmt.Errorf("%w: send_to requires state bound, have %s", ErrWrongState, state)
	}
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return 0, fmt.Errorf("invalid ip address %q", ip)
	}
	return conn.WriteToUDP(payload, &net.UDPAddr{IP: parsed, Port: port})
}

// RecvFrom reads a single datagram into buf. It is the blocking half of
// async_recv_from; the returned address identifies the sender of this
// specific datagram, not a fixed peer.
func (e *Endpoint) RecvFrom(buf []byte) (n int, peerIP string, peerPort int, err error) {
	e.mu.Lock()
	conn := e.conn
	state := e.state
	e.mu.Unlock()
	if state != StateBound {
		return 0, "", 0, fmt.Errorf("%w: recv_from requires state bound, have %s", ErrWrongState, state)
	}
	n, addr, err := conn.ReadFromUDP(buf)
	if addr != nil {
		peerIP = addr.IP.String()
		peerPort = addr.Port
	}
	return n, peerIP, peerPort, err
}

// LocalAddr returns the bound local address.
func (e *Endpoint) LocalAddr() (string, int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateBound {
		return "", 0, fmt.Errorf("%w: local_addr requires state bound, have %s", ErrWrongState, e.state)
	}
	host, portStr, err := net.SplitHostPort(e.conn.LocalAddr().String())
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, err
	}
	return host, port, nil
}

// Close releases the socket and marks the Endpoint destroyed. Close is
// idempotent.
func (e *Endpoint) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateDestroyed {
		return nil
	}
	var err error
	if e.conn != nil {
		err = e.conn.Close()
	}
	e.state = StateDestroyed
	return err
}
