// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package resource

import (
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coreio/netcore/internal/datagram"
	"github.com/coreio/netcore/internal/handletable"
	"github.com/coreio/netcore/internal/ioqueue"
	"github.com/coreio/netcore/internal/protocol"
	"github.com/coreio/netcore/internal/stream"
)

// listenerState tracks the outstanding-accept gauge for one listening
// Endpoint, kept for the cron diagnostics job and to stop re-arming
// accepts once the listener has been destroyed.
type listenerState struct {
	endpoint *stream.Endpoint
	pending  atomic.Int32
}

// Manager is the Resource Manager: owns both handle namespaces, the
// completion queue's Router implementation, and the accept/recv
// re-arm logic that keeps each listener's outstanding-accept count at
// backlog.
type Manager struct {
	queue  *ioqueue.Queue
	sink   SinkLookup
	logger *slog.Logger

	backlog            int
	maxStreamPayload   int
	maxDatagramPayload int
	recvBufferSize     int

	mu          sync.Mutex
	tcpIndexer  *handletable.Indexer
	tcpTable    *handletable.Table[*stream.Endpoint]
	udpIndexer  *handletable.Indexer
	udpTable    *handletable.Table[*datagram.Endpoint]
	listenState map[handletable.Handle]*listenerState
}

// Limits carries the tunable payload/buffer sizes a Manager enforces.
// A zero or out-of-range payload field falls back to the wire format's
// own ceiling in internal/protocol; a zero or negative RecvBufferSize
// falls back to 64 KiB and is not capped.
type Limits struct {
	MaxStreamPayload   int
	MaxDatagramPayload int
	RecvBufferSize     int
}

// NewManager builds a Manager ready to be registered as the Queue's
// Router. backlog is also used as the accept-submission count for every
// listener, per the 2x-logical-CPU sizing rule applied by the caller.
func NewManager(queue *ioqueue.Queue, sink SinkLookup, logger *slog.Logger, backlog int, limits Limits) *Manager {
	if backlog < 1 {
		backlog = 1
	}
	maxStream := limits.MaxStreamPayload
	if maxStream <= 0 || maxStream > protocol.MaxStreamPayload {
		maxStream = protocol.MaxStreamPayload
	}
	maxDatagram := limits.MaxDatagramPayload
	if maxDatagram <= 0 || maxDatagram > protocol.MaxDatagramPayload {
		maxDatagram = protocol.MaxDatagramPayload
	}
	recvBuf := limits.RecvBufferSize
	if recvBuf <= 0 {
		recvBuf = 64 * 1024
	}
	return &Manager{
		queue:              queue,
		sink:               sink,
		logger:             logger,
		backlog:            backlog,
		maxStreamPayload:   maxStream,
		maxDatagramPayload: maxDatagram,
		recvBufferSize:     recvBuf,
		tcpIndexer:         handletable.NewIndexer(0),
		tcpTable:           handletable.NewTable[*stream.Endpoint](),
		udpIndexer:         handletable.NewIndexer(0),
		udpTable:           handletable.NewTable[*datagram.Endpoint](),
		listenState:        make(map[handletable.Handle]*listenerState),
	}
}

func (m *Manager) currentSink() (Sink, bool) {
	if m.sink == nil {
		return nil, false
	}
	return m.sink()
}

// ---- TCP ----

// TCPCreate creates and binds a new Stream Endpoint.
func (m *Manager) TCPCreate(ip string, port int) (handletable.Handle, error) {
	ep := stream.NewEndpoint()
	if err := ep.Bind(ip, port); err != nil {
		return handletable.Invalid, err
	}
	h, err := m.insertTCP(ep)
	if err != nil {
		ep.Close()
		return handletable.Invalid, err
	}
	return h, nil
}

func (m *Manager) insertTCP(ep *stream.Endpoint) (handletable.Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, err := m.tcpIndexer.Allocate()
	if err != nil {
		return handletable.Invalid, fmt.Errorf("%w: %v", ErrHandleSpaceExhausted, err)
	}
	m.tcpTable.Insert(h, ep)
	return h, nil
}

// TCPDestroy tears down a Stream Endpoint and releases its handle.
func (m *Manager) TCPDestroy(h handletable.Handle) {
	m.mu.Lock()
	ep, ok := m.tcpTable.Lookup(h)
	if ok {
		m.tcpTable.Remove(h)
		delete(m.listenState, h)
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	ep.Close()
	m.mu.Lock()
	m.tcpIndexer.Release(h)
	m.mu.Unlock()
}

// TCPListen transitions a bound Endpoint to listening and submits
// backlog concurrent accepts.
func (m *Manager) TCPListen(h handletable.Handle) error {
	ep, ok := m.tcpTable.Lookup(h)
	if !ok {
		return ErrInvalidHandle
	}
	if err := ep.Listen(m.backlog); err != nil {
		return err
	}
	st := &listenerState{endpoint: ep}
	m.mu.Lock()
	m.listenState[h] = st
	m.mu.Unlock()
	for i := 0; i < m.backlog; i++ {
		m.submitAccept(h, st)
	}
	return nil
}

// TCPConnect transitions a bound Endpoint to connected and submits the
// first recv.
func (m *Manager) TCPConnect(h handletable.Handle, ip string, port int, timeout time.Duration) error {
	ep, ok := m.tcpTable.Lookup(h)
	if !ok {
		return ErrInvalidHandle
	}
	if err := ep.Connect(ip, port, timeout); err != nil {
		return err
	}
	m.submitRecv(h, ep, true)
	return nil
}

// TCPSend frames payload and queues it on the Endpoint's writer
// goroutine, which posts the result onto the completion queue; the
// caller does not wait for the write. Queueing
// the frame on the Endpoint's own writer goroutine (rather than
// spawning a fresh goroutine per call) keeps sends landing on the wire
// in the order TCPSend was called, even when calls arrive back to back.
func (m *Manager) TCPSend(h handletable.Handle, payload []byte) error {
	if len(payload) == 0 || len(payload) > m.maxStreamPayload {
		return fmt.Errorf("resource: payload size %d out of range", len(payload))
	}
	ep, ok := m.tcpTable.Lookup(h)
	if !ok {
		return ErrInvalidHandle
	}
	header, err := protocol.EncodeFrame(payload)
	if err != nil {
		return err
	}
	frame := make([]byte, 0, protocol.HeaderSize+len(payload))
	frame = append(frame, header[:]...)
	frame = append(frame, payload...)
	return ep.SendAsync(frame, func(_ int, sendErr error) {
		m.queue.Complete(&ioqueue.Operation{Kind: ioqueue.KindSend, Handle: h, Err: sendErr})
	})
}

// TCPLocalAddr returns a connected or listening Endpoint's local
// address.
func (m *Manager) TCPLocalAddr(h handletable.Handle) (string, int, error) {
	ep, ok := m.tcpTable.Lookup(h)
	if !ok {
		return "", 0, ErrInvalidHandle
	}
	return ep.LocalAddr()
}

// TCPRemoteAddr returns a connected Endpoint's peer address.
func (m *Manager) TCPRemoteAddr(h handletable.Handle) (string, int, error) {
	ep, ok := m.tcpTable.Lookup(h)
	if !ok {
		return "", 0, ErrInvalidHandle
	}
	return ep.RemoteAddr()
}

// UDPLocalAddr returns a bound Datagram Endpoint's local address.
func (m *Manager) UDPLocalAddr(h handletable.Handle) (string, int, error) {
	ep, ok := m.udpTable.Lookup(h)
	if !ok {
		return "", 0, ErrInvalidHandle
	}
	return ep.LocalAddr()
}

func (m *Manager) submitAccept(listenHandle handletable.Handle, st *listenerState) {
	st.pending.Add(1)
	go func() {
		conn, err := st.endpoint.AcceptTCP()
		m.queue.Complete(&ioqueue.Operation{Kind: ioqueue.KindAccept, Handle: listenHandle, Conn: conn, Err: err})
	}()
}

// HandleAccept implements ioqueue.Router.
func (m *Manager) HandleAccept(op *ioqueue.Operation) {
	m.mu.Lock()
	st, ok := m.listenState[op.Handle]
	m.mu.Unlock()
	if !ok {
		if op.Conn != nil {
			op.Conn.Close()
		}
		return
	}
	st.pending.Add(-1)

	if op.Err != nil {
		if op.Conn != nil {
			op.Conn.Close()
		}
		if !ioqueue.IsTolerated(op.Err) {
			m.failTCP(op.Handle, ErrCodeAcceptRearm)
			return
		}
		// Listener closing down (net.ErrClosed): do not re-arm.
		return
	}

	tcpConn := op.Conn.(*net.TCPConn)
	acceptEp := stream.NewEndpoint()
	acceptHandle, err := m.insertTCP(acceptEp)
	if err != nil {
		m.logger.Error("dropping accepted connection, handle space exhausted", "error", err)
		tcpConn.Close()
		m.submitAccept(op.Handle, st)
		return
	}
	if err := acceptEp.SetAccepted(tcpConn); err != nil {
		m.logger.Error("set_accepted failed", "error", err)
		m.TCPDestroy(acceptHandle)
		m.submitAccept(op.Handle, st)
		return
	}

	if sink, ok := m.currentSink(); ok {
		sink.OnStreamAccepted(op.Handle, acceptHandle)
	}

	m.submitRecv(acceptHandle, acceptEp, true)
	m.submitAccept(op.Handle, st)
}

func (m *Manager) submitRecv(h handletable.Handle, ep *stream.Endpoint, firstAfterAccept bool) {
	go func() {
		buf := make([]byte, m.recvBufferSize)
		n, msgs, err := ep.Recv(buf)
		m.queue.Complete(&ioqueue.Operation{
			Kind:             ioqueue.KindRecv,
			Handle:           h,
			N:                n,
			Err:              err,
			Messages:         msgs,
			FirstAfterAccept: firstAfterAccept,
		})
	}()
}

// HandleRecv implements ioqueue.Router. Reassembled messages are
// delivered before any disconnect/error handling runs, since
// io.Reader permits a final Read to return n > 0 together with a
// non-nil error (e.g. EOF on the same call that completed the last
// message) and those messages must still reach the sink.
func (m *Manager) HandleRecv(op *ioqueue.Operation) {
	ep, ok := m.tcpTable.Lookup(op.Handle)
	if !ok {
		return
	}

	if sink, ok := m.currentSink(); ok {
		for _, msg := range op.Messages {
			sink.OnStreamReceived(op.Handle, msg)
		}
	}

	if op.N == 0 {
		if sink, ok := m.currentSink(); ok {
			sink.OnStreamDisconnected(op.Handle)
		}
		m.TCPDestroy(op.Handle)
		return
	}
	if op.Err != nil {
		code := ErrCodeRecvRearm
		if op.FirstAfterAccept {
			code = ErrCodeAcceptRecvRearm
		}
		if errIsFraming(op.Err) {
			code = ErrCodeFraming
		}
		m.failTCP(op.Handle, code)
		return
	}

	m.submitRecv(op.Handle, ep, false)
}

func errIsFraming(err error) bool {
	return err == protocol.ErrMalformedFrame
}

func (m *Manager) failTCP(h handletable.Handle, code int) {
	if sink, ok := m.currentSink(); ok {
		sink.OnStreamError(h, code)
	}
	m.TCPDestroy(h)
}

// ---- UDP ----

// UDPCreate creates and binds a new Datagram Endpoint and submits its
// first recv.
func (m *Manager) UDPCreate(ip string, port int, broadcast bool) (handletable.Handle, error) {
	ep := datagram.NewEndpoint()
	if err := ep.Bind(ip, port, broadcast); err != nil {
		return handletable.Invalid, err
	}
	m.mu.Lock()
	h, err := m.udpIndexer.Allocate()
	if err != nil {
		m.mu.Unlock()
		ep.Close()
		return handletable.Invalid, fmt.Errorf("%w: %v", ErrHandleSpaceExhausted, err)
	}
	m.udpTable.Insert(h, ep)
	m.mu.Unlock()

	m.submitRecvFrom(h, ep)
	return h, nil
}

// UDPDestroy tears down a Datagram Endpoint and releases its handle.
func (m *Manager) UDPDestroy(h handletable.Handle) {
	m.mu.Lock()
	ep, ok := m.udpTable.Lookup(h)
	if ok {
		m.udpTable.Remove(h)
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	ep.Close()
	m.mu.Lock()
	m.udpIndexer.Release(h)
	m.mu.Unlock()
}

// UDPSendTo submits a blocking send-to on its own goroutine.
func (m *Manager) UDPSendTo(h handletable.Handle, payload []byte, ip string, port int) error {
	if len(payload) == 0 || len(payload) > m.maxDatagramPayload {
		return fmt.Errorf("resource: datagram size %d out of range", len(payload))
	}
	ep, ok := m.udpTable.Lookup(h)
	if !ok {
		return ErrInvalidHandle
	}
	go func() {
		_, err := ep.SendTo(payload, ip, port)
		m.queue.Complete(&ioqueue.Operation{Kind: ioqueue.KindSendTo, Handle: h, Err: err})
	}()
	return nil
}

func (m *Manager) submitRecvFrom(h handletable.Handle, ep *datagram.Endpoint) {
	go func() {
		buf := make([]byte, m.maxDatagramPayload)
		n, peerIP, peerPort, err := ep.RecvFrom(buf)
		var payload []byte
		if n > 0 {
			payload = append([]byte(nil), buf[:n]...)
		}
		m.queue.Complete(&ioqueue.Operation{
			Kind:     ioqueue.KindRecvFrom,
			Handle:   h,
			N:        n,
			Err:      err,
			Buffer:   payload,
			PeerIP:   peerIP,
			PeerPort: peerPort,
		})
	}()
}

// HandleSendTo implements ioqueue.Router.
func (m *Manager) HandleSendTo(op *ioqueue.Operation) {
	if op.Err == nil || ioqueue.IsTolerated(op.Err) {
		return
	}
	if sink, ok := m.currentSink(); ok {
		sink.OnDatagramError(op.Handle, 1)
	}
}

// HandleSend implements ioqueue.Router (TCP send completion). There is
// no dedicated error code for a failed send in the taxonomy above — a
// fatal, non-tolerated send error means the peer is gone, so treat it
// like any other disconnect rather than inventing a fifth code.
func (m *Manager) HandleSend(op *ioqueue.Operation) {
	if op.Err == nil || ioqueue.IsTolerated(op.Err) {
		return
	}
	if _, ok := m.tcpTable.Lookup(op.Handle); !ok {
		return
	}
	if sink, ok := m.currentSink(); ok {
		sink.OnStreamDisconnected(op.Handle)
	}
	m.TCPDestroy(op.Handle)
}

// HandleRecvFrom implements ioqueue.Router: dispatch the datagram when
// the handle is still live, drop the completion silently otherwise.
func (m *Manager) HandleRecvFrom(op *ioqueue.Operation) {
	ep, ok := m.udpTable.Lookup(op.Handle)
	if !ok {
		return
	}
	if op.Err != nil {
		if !ioqueue.IsTolerated(op.Err) {
			if sink, ok := m.currentSink(); ok {
				sink.OnDatagramError(op.Handle, 2)
			}
			m.UDPDestroy(op.Handle)
			return
		}
	} else if op.N > 0 {
		if sink, ok := m.currentSink(); ok {
			sink.OnDatagram(op.Handle, op.Buffer, op.PeerIP, op.PeerPort)
		}
	}
	m.submitRecvFrom(op.Handle, ep)
}

// Shutdown tears down every live endpoint in both namespaces and
// clears both indexers, per the Public Façade's Shutdown contract.
func (m *Manager) Shutdown() {
	for _, ep := range m.tcpTable.Clear() {
		ep.Close()
	}
	for _, ep := range m.udpTable.Clear() {
		ep.Close()
	}
	m.mu.Lock()
	m.tcpIndexer.Clear()
	m.udpIndexer.Clear()
	m.listenState = make(map[handletable.Handle]*listenerState)
	m.mu.Unlock()
}

// Snapshot is a point-in-time occupancy reading used by the diagnostics
// cron job.
type Snapshot struct {
	TCPHandles        int
	UDPHandles        int
	ListenersTracked  int
	OutstandingAccept int32 // sum across all listeners; should equal ListenersTracked*backlog
}

// Snapshot reports current handle table occupancy, including the
// per-listener outstanding-accept gauge summed across every live
// listener — the invariant is "outstanding accepts == backlog" per
// listener at all times, and this makes that invariant observable.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	listeners := len(m.listenState)
	var outstanding int32
	for _, st := range m.listenState {
		outstanding += st.pending.Load()
	}
	m.mu.Unlock()
	return Snapshot{
		TCPHandles:        m.tcpTable.Len(),
		UDPHandles:        m.udpTable.Len(),
		ListenersTracked:  listeners,
		OutstandingAccept: outstanding,
	}
}
