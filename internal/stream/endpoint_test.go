// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package stream

import (
	"errors"
	"testing"
	"time"

	"github.com/coreio/netcore/internal/protocol"
)

func TestEndpoint_BindListenAcceptConnectRoundTrip(t *testing.T) {
	listener := NewEndpoint()
	if err := listener.Bind("127.0.0.1", 0); err != nil {
		t.Fatalf("bind: %v", err)
	}
	if err := listener.Listen(4); err != nil {
		t.Fatalf("listen: %v", err)
	}
	host, port, err := listener.LocalAddr()
	if err != nil {
		t.Fatalf("local addr: %v", err)
	}

	acceptedCh := make(chan *Endpoint, 1)
	acceptErrCh := make(chan error, 1)
	go func() {
		conn, err := listener.AcceptTCP()
		if err != nil {
			acceptErrCh <- err
			return
		}
		child := NewEndpoint()
		if err := child.SetAccepted(conn); err != nil {
			acceptErrCh <- err
			return
		}
		acceptedCh <- child
	}()

	client := NewEndpoint()
	if err := client.Bind("127.0.0.1", 0); err != nil {
		t.Fatalf("client bind: %v", err)
	}
	if err := client.Connect(host, port, 2*time.Second); err != nil {
		t.Fatalf("connect: %v", err)
	}

	var server *Endpoint
	select {
	case server = <-acceptedCh:
	case err := <-acceptErrCh:
		t.Fatalf("accept: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for accept")
	}

	payload := []byte("hello netcore")
	header, err := protocol.EncodeFrame(payload)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	frame := append(append([]byte{}, header[:]...), payload...)
	if _, err := client.Send(frame); err != nil {
		t.Fatalf("send: %v", err)
	}

	buf := make([]byte, 256)
	n, msgs, err := server.Recv(buf)
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	if n == 0 {
		t.Fatal("expected to read bytes")
	}
	if len(msgs) != 1 || string(msgs[0]) != string(payload) {
		t.Fatalf("unexpected messages: %v", msgs)
	}

	_, _, err = client.RemoteAddr()
	if err != nil {
		t.Fatalf("remote addr: %v", err)
	}

	client.Close()
	server.Close()
	listener.Close()
}

func TestEndpoint_OperationsRejectWrongState(t *testing.T) {
	e := NewEndpoint()
	if err := e.Listen(4); !errors.Is(err, ErrWrongState) {
		t.Fatalf("expected ErrWrongState, got %v", err)
	}
	if _, err := e.Send([]byte("x")); !errors.Is(err, ErrWrongState) {
		t.Fatalf("expected ErrWrongState, got %v", err)
	}
	if _, _, err := e.LocalAddr(); !errors.Is(err, ErrWrongState) {
		t.Fatalf("expected ErrWrongState, got %v", err)
	}
}

func TestEndpoint_ConnectRefusedSurfacesError(t *testing.T) {
	// Bind and listen to claim a free port, read it back, then close the
	// listener so the port is bound to nothing; connecting to it must
	// fail instead of hanging.
	probe := NewEndpoint()
	if err := probe.Bind("127.0.0.1", 0); err != nil {
		t.Fatalf("bind: %v", err)
	}
	if err := probe.Listen(1); err != nil {
		t.Fatalf("listen: %v", err)
	}
	host, port, err := probe.LocalAddr()
	if err != nil {
		t.Fatalf("local addr: %v", err)
	}
	probe.Close()

	client := NewEndpoint()
	if err := client.Bind("127.0.0.1", 0); err != nil {
		t.Fatalf("client bind: %v", err)
	}
	if err := client.Connect(host, port, 2*time.Second); err == nil {
		t.Fatal("expected connect to a closed port to fail")
	}
}

func TestAcceptScratchSize_MatchesTwoSockaddrIn4PlusSlack(t *testing.T) {
	if got, want := acceptScratchSize(), 64; got != want {
		t.Fatalf("acceptScratchSize() = %d, want %d", got, want)
	}
}
