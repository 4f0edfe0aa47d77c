// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package stream

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/coreio/netcore/internal/protocol"
)

// State is the lifecycle phase of an Endpoint.
type State int32

const (
	StateCreated State = iota
	StateBound
	StateListening
	StateConnected
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateBound:
		return "bound"
	case StateListening:
		return "listening"
	case StateConnected:
		return "connected"
	case StateDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

var (
	// ErrWrongState is returned when an operation is attempted from a
	// lifecycle state that doesn't support it (e.g. Listen before Bind).
	ErrWrongState = errors.New("stream: operation not valid in current state")
	// ErrAlreadyOpen reports an Endpoint that already owns a socket. No
	// Endpoint method returns it; a second Bind fails with ErrWrongState.
	ErrAlreadyOpen = errors.New("stream: endpoint already created")
)

// Endpoint is a single TCP Stream Endpoint: either a listening socket
// that produces accepted children, or a connected socket (dialed or
// accepted) that moves framed messages. It owns at most one OS socket at
// a time and is safe for concurrent use.
type Endpoint struct {
	mu    sync.Mutex
	state State

	fd       int // valid only between Bind and Listen/Connect
	listener *net.TCPListener
	conn     *net.TCPConn

	framer *protocol.Framer

	// sendCh feeds the Endpoint's single writer goroutine (sendLoop),
	// serializing every Send/SendAsync call onto the wire in the order
	// the caller issued them, regardless of which goroutine issued each
	// one.
	sendCh chan sendJob
}

type sendJob struct {
	payload []byte
	done    func(int, error)
}

// NewEndpoint returns a freshly created Endpoint (state Created, no
// socket yet — Bind opens the socket).
func NewEndpoint() *Endpoint {
	return &Endpoint{state: StateCreated, fd: -1}
}

// Bind opens a bound, non-blocking IPv4 socket on ip:port. ip == "" binds
// the wildcard address; port == 0 picks an ephemeral port.
func (e *Endpoint) Bind(ip string, port int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateCreated {
		return fmt.Errorf("%w: bind requires state created, have %s", ErrWrongState, e.state)
	}
	fd, err := openBoundSocket(ip, port)
	if err != nil {
		return err
	}
	e.fd = fd
	e.state = StateBound
	return nil
}

// Listen transitions a bound Endpoint into the listening state with the
// given backlog.
func (e *Endpoint) Listen(backlog int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateBound {
		return fmt.Errorf("%w: listen requires state bound, have %s", ErrWrongState, e.state)
	}
	ln, err := listenOnFD(e.fd, backlog)
	if err != nil {
		e.fd = -1
		e.state = StateDestroyed
		return err
	}
	e.fd = -1
	e.listener = ln
	e.state = StateListening
	return nil
}

// Connect transitions a bound Endpoint into the connected state by
// dialing ip:port with a non-blocking connect bounded by timeout (zero
// means no deadline).
func (e *Endpoint) Connect(ip string, port int, timeout time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateBound {
		return fmt.Errorf("%w: connect requires state bound, have %s", ErrWrongState, e.state)
	}
	conn, err := connectWithTimeout(e.fd, ip, port, timeout)
	if err != nil {
		e.fd = -1
		e.state = StateDestroyed
		return err
	}
	e.fd = -1
	e.conn = conn
	e.framer = protocol.NewFramer()
	e.sendCh = make(chan sendJob, 64)
	go sendLoop(conn, e.sendCh)
	e.state = StateConnected
	return nil
}

// AcceptTCP blocks until a new connection arrives on a listening
// Endpoint. The caller is expected to run this in its own goroutine and
// post the result onto the completion queue; it is the async_accept
// primitive's blocking half.
func (e *Endpoint) AcceptTCP() (*net.TCPConn, error) {
	e.mu.Lock()
	ln := e.listener
	state := e.state
	e.mu.Unlock()
	if state != StateListening {
		return nil, fmt.Errorf("%w: accept requires state listening, have %s", ErrWrongState, state)
	}
	return ln.AcceptTCP()
}

// SetAccepted adopts an already-connected socket produced by a listening
// Endpoint's AcceptTCP. TCP_NODELAY is applied the same way Bind applies
// it to a socket created from scratch.
func (e *Endpoint) SetAccepted(conn *net.TCPConn) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateCreated {
		return fmt.Errorf("%w: set_accepted requires state created, have %s", ErrWrongState, e.state)
	}
	if err := conn.SetNoDelay(true); err != nil {
		return fmt.Errorf("set no delay: %w", err)
	}
	e.conn = conn
	e.framer = protocol.NewFramer()
	e.sendCh = make(chan sendJob, 64)
	go sendLoop(conn, e.sendCh)
	e.state = StateConnected
	return nil
}

// sendLoop is an Endpoint's single writer: it drains jobs in the order
// they were enqueued, so concurrent Send/SendAsync callers never race
// for conn.Write and the wire preserves submission order. It returns
// once sendCh is closed by Close.
func sendLoop(conn *net.TCPConn, ch chan sendJob) {
	for job := range ch {
		n, err := conn.Write(job.payload)
		job.done(n, err)
	}
}

// SendAsync enqueues payload for the Endpoint's writer goroutine and
// returns immediately; done is invoked off that goroutine once the
// write completes (or fails). Enqueuing happens under the same lock
// Close uses to stop the writer, so no caller can enqueue onto an
// Endpoint that has already been destroyed.
func (e *Endpoint) SendAsync(payload []byte, done func(int, error)) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateConnected {
		return fmt.Errorf("%w: send requires state connected, have %s", ErrWrongState, e.state)
	}
	e.sendCh <- sendJob{payload: payload, done: done}
	return nil
}

// Send writes payload to the peer and blocks until the write completes,
// routed through the same per-endpoint writer goroutine as SendAsync so
// it cannot race a concurrent Send/SendAsync call for wire order.
func (e *Endpoint) Send(payload []byte) (int, error) {
	type result struct {
		n   int
		err error
	}
	resultCh := make(chan result, 1)
	if err := e.SendAsync(payload, func(n int, err error) {
		resultCh <- result{n, err}
	}); err != nil {
		return 0, err
	}
	res := <-resultCh
	return res.n, res.err
}

// Recv reads into buf and feeds whatever arrived through the Endpoint's
// Framer, returning any fully reassembled messages alongside the raw
// byte count and read error. It is the blocking half of async_recv.
func (e *Endpoint) Recv(buf []byte) (int, [][]byte, error) {
	e.mu.Lock()
	conn := e.conn
	framer := e.framer
	state := e.state
	e.mu.Unlock()
	if state != StateConnected {
		return 0, nil, fmt.Errorf("%w: recv requires state connected, have %s", ErrWrongState, state)
	}
	n, err := conn.Read(buf)
	if n == 0 {
		return n, nil, err
	}
	msgs, frameErr := framer.Process(buf[:n])
	if frameErr != nil {
		if err == nil {
			err = frameErr
		}
	}
	return n, msgs, err
}

// LocalAddr returns the endpoint's local address. Valid once listening or
// connected; a socket that is only bound returns ErrWrongState.
func (e *Endpoint) LocalAddr() (string, int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch e.state {
	case StateListening:
		return splitHostPort(e.listener.Addr())
	case StateConnected:
		return splitHostPort(e.conn.LocalAddr())
	default:
		return "", 0, fmt.Errorf("%w: local_addr requires state listening or connected, have %s", ErrWrongState, e.state)
	}
}

// RemoteAddr returns the peer address of a connected Endpoint.
func (e *Endpoint) RemoteAddr() (string, int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateConnected {
		return "", 0, fmt.Errorf("%w: remote_addr requires state connected, have %s", ErrWrongState, e.state)
	}
	return splitHostPort(e.conn.RemoteAddr())
}

// Close releases whatever socket the Endpoint currently owns and marks
// it destroyed. Close is idempotent.
func (e *Endpoint) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateDestroyed {
		return nil
	}
	// Closing sendCh under e.mu, the same lock SendAsync holds while
	// enqueuing, guarantees no send-on-closed-channel panic: either the
	// enqueue finished first and sendLoop will drain it before exiting,
	// or this close runs first and the next SendAsync sees StateDestroyed.
	if e.sendCh != nil {
		close(e.sendCh)
	}
	var err error
	switch {
	case e.listener != nil:
		err = e.listener.Close()
	case e.conn != nil:
		_ = e.conn.CloseWrite() // shut down for send before closing the socket
		err = e.conn.Close()
	case e.fd >= 0:
		err = closeFD(e.fd)
	}
	e.state = StateDestroyed
	return err
}

func splitHostPort(addr net.Addr) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr.String())
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, err
	}
	return host, port, nil
}
