// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package netcore

import (
	"log/slog"
	"sync"
	"time"
	"weak"

	"github.com/coreio/netcore/internal/ioqueue"
	"github.com/coreio/netcore/internal/resource"
	"github.com/coreio/netcore/netcoreconfig"
)

// Runtime is the public handle on a started netcore instance: the
// completion dispatcher, its worker pool, the TCP/UDP resource manager
// and the diagnostics job, bundled behind one set of operations.
type Runtime struct {
	logger   *slog.Logger
	tunables *netcoreconfig.Tunables

	queue *ioqueue.Queue
	mgr   *resource.Manager
	diag  *resource.Diagnostics

	mu      sync.Mutex
	started bool
	sinkRef weak.Pointer[SinkHandle]
}

// Startup starts the platform subsystem: sizes and launches the
// completion-dispatcher worker pool, and returns a Runtime ready to
// create stream and datagram endpoints. sink must be kept alive by the
// caller for as long as it wants events delivered — see SinkHandle.
func Startup(sink *SinkHandle, opts ...Option) (*Runtime, error) {
	cfg := &startConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.tunables == nil {
		cfg.tunables = &netcoreconfig.Tunables{}
	}
	if err := cfg.tunables.Validate(); err != nil {
		return nil, err
	}
	if cfg.logger == nil {
		cfg.logger = defaultLogger(cfg.tunables)
	}

	rt := &Runtime{
		logger:   cfg.logger,
		tunables: cfg.tunables,
	}
	if sink != nil {
		rt.sinkRef = sink.weakPointer()
	}

	workers := ioqueue.LogicalCPUCount() * cfg.tunables.WorkerCPUMultiplier
	if workers < 1 {
		workers = 1
	}
	backlog := ioqueue.LogicalCPUCount() * cfg.tunables.AcceptBacklogMultiplier
	if backlog < 1 {
		backlog = 1
	}

	rt.queue = ioqueue.NewQueue(workers, rt.logger)
	limits := resource.Limits{
		MaxStreamPayload:   cfg.tunables.MaxStreamPayload,
		MaxDatagramPayload: cfg.tunables.MaxDatagramPayload,
		RecvBufferSize:     cfg.tunables.RecvBufferSize,
	}
	rt.mgr = resource.NewManager(rt.queue, rt.resolveSink, rt.logger, backlog, limits)
	rt.queue.Run(rt.mgr)

	diag, err := resource.NewDiagnostics(rt.mgr, rt.logger, cfg.tunables.DiagnosticsInterval)
	if err != nil {
		rt.queue.Shutdown()
		return nil, err
	}
	rt.diag = diag
	rt.diag.Start()

	rt.started = true
	return rt, nil
}

func (rt *Runtime) resolveSink() (resource.Sink, bool) {
	return resolveSink(rt.sinkRef)
}

func defaultLogger(t *netcoreconfig.Tunables) *slog.Logger {
	return newDefaultLogger(t.LogLevel, t.LogFormat)
}

// Shutdown stops the diagnostics job, tears down every live handle in
// both namespaces, and joins the completion-dispatcher worker pool.
// Shutdown is idempotent; calling it twice is a safe no-op.
func (rt *Runtime) Shutdown() {
	rt.mu.Lock()
	if !rt.started {
		rt.mu.Unlock()
		return
	}
	rt.started = false
	rt.mu.Unlock()

	rt.diag.Stop()
	rt.mgr.Shutdown()
	rt.queue.Shutdown()
}

func (rt *Runtime) checkStarted() error {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if !rt.started {
		return ErrNotStarted
	}
	return nil
}

// TCPCreate creates and binds a new Stream Endpoint.
func (rt *Runtime) TCPCreate(ip string, port int) (Handle, error) {
	if err := rt.checkStarted(); err != nil {
		return InvalidHandle, err
	}
	return rt.mgr.TCPCreate(ip, port)
}

// TCPDestroy tears down a Stream Endpoint.
func (rt *Runtime) TCPDestroy(h Handle) {
	if rt.checkStarted() != nil {
		return
	}
	rt.mgr.TCPDestroy(h)
}

// TCPListen transitions h to listening with a backlog of
// 2x logical CPUs (or the configured AcceptBacklogMultiplier).
func (rt *Runtime) TCPListen(h Handle) error {
	if err := rt.checkStarted(); err != nil {
		return err
	}
	return rt.mgr.TCPListen(h)
}

// TCPConnect dials ip:port from h, bounded by timeout.
func (rt *Runtime) TCPConnect(h Handle, ip string, port int, timeout time.Duration) error {
	if err := rt.checkStarted(); err != nil {
		return err
	}
	return rt.mgr.TCPConnect(h, ip, port, timeout)
}

// TCPSend frames and submits payload for asynchronous send on h.
// len(payload) must be in (0, 16 MiB].
func (rt *Runtime) TCPSend(h Handle, payload []byte) error {
	if err := rt.checkStarted(); err != nil {
		return err
	}
	return rt.mgr.TCPSend(h, payload)
}

// TCPLocalAddr returns h's local address.
func (rt *Runtime) TCPLocalAddr(h Handle) (string, int, error) {
	if err := rt.checkStarted(); err != nil {
		return "", 0, err
	}
	return rt.mgr.TCPLocalAddr(h)
}

// TCPRemoteAddr returns h's peer address.
func (rt *Runtime) TCPRemoteAddr(h Handle) (string, int, error) {
	if err := rt.checkStarted(); err != nil {
		return "", 0, err
	}
	return rt.mgr.TCPRemoteAddr(h)
}

// UDPCreate creates and binds a new Datagram Endpoint. broadcast enables
// SO_BROADCAST on the socket.
func (rt *Runtime) UDPCreate(ip string, port int, broadcast bool) (Handle, error) {
	if err := rt.checkStarted(); err != nil {
		return InvalidHandle, err
	}
	return rt.mgr.UDPCreate(ip, port, broadcast)
}

// UDPDestroy tears down a Datagram Endpoint.
func (rt *Runtime) UDPDestroy(h Handle) {
	if rt.checkStarted() != nil {
		return
	}
	rt.mgr.UDPDestroy(h)
}

// UDPSendTo submits payload for asynchronous send to ip:port from h.
// len(payload) must be in (0, 8 KiB].
func (rt *Runtime) UDPSendTo(h Handle, payload []byte, ip string, port int) error {
	if err := rt.checkStarted(); err != nil {
		return err
	}
	return rt.mgr.UDPSendTo(h, payload, ip, port)
}

// UDPLocalAddr returns h's bound local address.
func (rt *Runtime) UDPLocalAddr(h Handle) (string, int, error) {
	if err := rt.checkStarted(); err != nil {
		return "", 0, err
	}
	return rt.mgr.UDPLocalAddr(h)
}
