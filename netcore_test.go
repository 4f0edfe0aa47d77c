// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package netcore

import (
	"bytes"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

type testSink struct {
	mu          sync.Mutex
	accepted    []Handle
	received    map[Handle][][]byte
	disconnects []Handle
	streamErrs  []int
	datagrams   [][]byte
	datagramIPs []string
}

func newTestSink() *testSink {
	return &testSink{received: make(map[Handle][][]byte)}
}

func (s *testSink) OnStreamAccepted(listenHandle, acceptHandle Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accepted = append(s.accepted, acceptHandle)
}

func (s *testSink) OnStreamReceived(handle Handle, payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.received[handle] = append(s.received[handle], append([]byte(nil), payload...))
}

func (s *testSink) OnStreamDisconnected(handle Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disconnects = append(s.disconnects, handle)
}

func (s *testSink) OnStreamError(handle Handle, code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streamErrs = append(s.streamErrs, code)
}

func (s *testSink) OnDatagram(handle Handle, payload []byte, peerIP string, peerPort int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.datagrams = append(s.datagrams, append([]byte(nil), payload...))
	s.datagramIPs = append(s.datagramIPs, peerIP)
}

func (s *testSink) OnDatagramError(handle Handle, code int) {}

func (s *testSink) messagesFor(h Handle) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.received[h])
}

func (s *testSink) acceptedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.accepted)
}

func (s *testSink) datagramCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.datagrams)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.After(timeout)
	for !cond() {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for condition")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestStartupShutdown_Idempotent(t *testing.T) {
	rt, err := Startup(nil, WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("startup: %v", err)
	}
	rt.Shutdown()
	rt.Shutdown() // must not panic
}

func TestRuntime_EchoStreamRoundTrip(t *testing.T) {
	sink := newTestSink()
	handle := NewSinkHandle(sink)
	rt, err := Startup(handle, WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("startup: %v", err)
	}
	defer rt.Shutdown()

	listener, err := rt.TCPCreate("127.0.0.1", 0)
	if err != nil {
		t.Fatalf("tcp create: %v", err)
	}
	if err := rt.TCPListen(listener); err != nil {
		t.Fatalf("tcp listen: %v", err)
	}
	host, port, err := rt.TCPLocalAddr(listener)
	if err != nil {
		t.Fatalf("local addr: %v", err)
	}

	client, err := rt.TCPCreate("127.0.0.1", 0)
	if err != nil {
		t.Fatalf("client create: %v", err)
	}
	if err := rt.TCPConnect(client, host, port, 2*time.Second); err != nil {
		t.Fatalf("connect: %v", err)
	}

	waitUntil(t, 2*time.Second, func() bool { return sink.acceptedCount() == 1 })
	serverHandle := sink.accepted[0]

	payload := []byte("echo me")
	if err := rt.TCPSend(client, payload); err != nil {
		t.Fatalf("send: %v", err)
	}
	waitUntil(t, 2*time.Second, func() bool { return sink.messagesFor(serverHandle) == 1 })

	if err := rt.TCPSend(serverHandle, sink.received[serverHandle][0]); err != nil {
		t.Fatalf("echo send: %v", err)
	}
	waitUntil(t, 2*time.Second, func() bool { return sink.messagesFor(client) == 1 })

	if string(sink.received[client][0]) != string(payload) {
		t.Fatalf("unexpected echo %q", sink.received[client][0])
	}
}

func TestRuntime_LargeMessageRoundTrip(t *testing.T) {
	sink := newTestSink()
	handle := NewSinkHandle(sink)
	rt, err := Startup(handle, WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("startup: %v", err)
	}
	defer rt.Shutdown()

	listener, _ := rt.TCPCreate("127.0.0.1", 0)
	rt.TCPListen(listener)
	host, port, _ := rt.TCPLocalAddr(listener)
	client, _ := rt.TCPCreate("127.0.0.1", 0)
	if err := rt.TCPConnect(client, host, port, 2*time.Second); err != nil {
		t.Fatalf("connect: %v", err)
	}
	waitUntil(t, 2*time.Second, func() bool { return sink.acceptedCount() == 1 })
	serverHandle := sink.accepted[0]

	big := bytes.Repeat([]byte{0xAB}, 4*1024*1024)
	if err := rt.TCPSend(client, big); err != nil {
		t.Fatalf("send: %v", err)
	}
	waitUntil(t, 5*time.Second, func() bool { return sink.messagesFor(serverHandle) == 1 })
	if len(sink.received[serverHandle][0]) != len(big) {
		t.Fatalf("expected %d bytes, got %d", len(big), len(sink.received[serverHandle][0]))
	}
}

func TestRuntime_MessageCoalescingStillYieldsTwoMessages(t *testing.T) {
	sink := newTestSink()
	handle := NewSinkHandle(sink)
	rt, err := Startup(handle, WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("startup: %v", err)
	}
	defer rt.Shutdown()

	listener, _ := rt.TCPCreate("127.0.0.1", 0)
	rt.TCPListen(listener)
	host, port, _ := rt.TCPLocalAddr(listener)
	client, _ := rt.TCPCreate("127.0.0.1", 0)
	if err := rt.TCPConnect(client, host, port, 2*time.Second); err != nil {
		t.Fatalf("connect: %v", err)
	}
	waitUntil(t, 2*time.Second, func() bool { return sink.acceptedCount() == 1 })
	serverHandle := sink.accepted[0]

	if err := rt.TCPSend(client, []byte("first")); err != nil {
		t.Fatalf("send 1: %v", err)
	}
	if err := rt.TCPSend(client, []byte("second")); err != nil {
		t.Fatalf("send 2: %v", err)
	}
	waitUntil(t, 2*time.Second, func() bool { return sink.messagesFor(serverHandle) == 2 })
}

func TestRuntime_DisconnectDeliveredAfterData(t *testing.T) {
	sink := newTestSink()
	handle := NewSinkHandle(sink)
	rt, err := Startup(handle, WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("startup: %v", err)
	}
	defer rt.Shutdown()

	listener, _ := rt.TCPCreate("127.0.0.1", 0)
	rt.TCPListen(listener)
	host, port, _ := rt.TCPLocalAddr(listener)
	client, _ := rt.TCPCreate("127.0.0.1", 0)
	if err := rt.TCPConnect(client, host, port, 2*time.Second); err != nil {
		t.Fatalf("connect: %v", err)
	}
	waitUntil(t, 2*time.Second, func() bool { return sink.acceptedCount() == 1 })
	serverHandle := sink.accepted[0]

	if err := rt.TCPSend(client, []byte("last words")); err != nil {
		t.Fatalf("send: %v", err)
	}
	waitUntil(t, 2*time.Second, func() bool { return sink.messagesFor(serverHandle) == 1 })

	rt.TCPDestroy(client)
	waitUntil(t, 2*time.Second, func() bool {
		sink.mu.Lock()
		defer sink.mu.Unlock()
		for _, h := range sink.disconnects {
			if h == serverHandle {
				return true
			}
		}
		return false
	})
}

func TestRuntime_UDPSendToRecvFromRoundTrip(t *testing.T) {
	sink := newTestSink()
	handle := NewSinkHandle(sink)
	rt, err := Startup(handle, WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("startup: %v", err)
	}
	defer rt.Shutdown()

	server, err := rt.UDPCreate("127.0.0.1", 0, false)
	if err != nil {
		t.Fatalf("udp create: %v", err)
	}
	serverIP, serverPort, err := rt.UDPLocalAddr(server)
	if err != nil {
		t.Fatalf("udp local addr: %v", err)
	}

	client, err := rt.UDPCreate("127.0.0.1", 0, false)
	if err != nil {
		t.Fatalf("udp create: %v", err)
	}

	payload := []byte("datagram payload")
	if err := rt.UDPSendTo(client, payload, serverIP, serverPort); err != nil {
		t.Fatalf("sendto: %v", err)
	}
	waitUntil(t, 2*time.Second, func() bool { return sink.datagramCount() == 1 })
	if string(sink.datagrams[0]) != string(payload) {
		t.Fatalf("unexpected datagram %q", sink.datagrams[0])
	}
}

func TestRuntime_UDPBroadcastBindSucceeds(t *testing.T) {
	rt, err := Startup(nil, WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("startup: %v", err)
	}
	defer rt.Shutdown()

	h, err := rt.UDPCreate("0.0.0.0", 0, true)
	if err != nil {
		t.Fatalf("udp broadcast create: %v", err)
	}
	if _, _, err := rt.UDPLocalAddr(h); err != nil {
		t.Fatalf("udp local addr: %v", err)
	}
}

func TestRuntime_InvalidHandleOperationsReturnErrors(t *testing.T) {
	rt, err := Startup(nil, WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("startup: %v", err)
	}
	defer rt.Shutdown()

	if err := rt.TCPSend(InvalidHandle, []byte("x")); err == nil {
		t.Fatal("expected error sending on invalid handle")
	}
	if err := rt.UDPSendTo(InvalidHandle, []byte("x"), "127.0.0.1", 9999); err == nil {
		t.Fatal("expected error sending on invalid handle")
	}
}

func TestRuntime_OperationsAfterShutdownReturnErrNotStarted(t *testing.T) {
	rt, err := Startup(nil, WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("startup: %v", err)
	}
	rt.Shutdown()

	if _, err := rt.TCPCreate("127.0.0.1", 0); err != ErrNotStarted {
		t.Fatalf("expected ErrNotStarted, got %v", err)
	}
}
