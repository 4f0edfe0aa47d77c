// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package ioqueue

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type countingRouter struct {
	accept, send, recv, sendTo, recvFrom atomic.Int32
}

func (r *countingRouter) HandleAccept(op *Operation)   { r.accept.Add(1) }
func (r *countingRouter) HandleSend(op *Operation)     { r.send.Add(1) }
func (r *countingRouter) HandleRecv(op *Operation)     { r.recv.Add(1) }
func (r *countingRouter) HandleSendTo(op *Operation)   { r.sendTo.Add(1) }
func (r *countingRouter) HandleRecvFrom(op *Operation) { r.recvFrom.Add(1) }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestQueue_RoutesByKind(t *testing.T) {
	q := NewQueue(4, discardLogger())
	router := &countingRouter{}
	q.Run(router)

	kinds := []Kind{KindAccept, KindSend, KindRecv, KindSendTo, KindRecvFrom}
	var wg sync.WaitGroup
	for _, k := range kinds {
		wg.Add(1)
		go func(k Kind) {
			defer wg.Done()
			q.Complete(&Operation{Kind: k})
		}(k)
	}
	wg.Wait()

	deadline := time.After(2 * time.Second)
	for {
		total := router.accept.Load() + router.send.Load() + router.recv.Load() +
			router.sendTo.Load() + router.recvFrom.Load()
		if total == int32(len(kinds)) {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for completions, total=%d", total)
		case <-time.After(5 * time.Millisecond):
		}
	}

	q.Shutdown()
}

func TestQueue_ShutdownJoinsAllWorkers(t *testing.T) {
	const n = 8
	q := NewQueue(n, discardLogger())
	if q.Workers() != n {
		t.Fatalf("expected %d workers, got %d", n, q.Workers())
	}
	q.Run(&countingRouter{})

	done := make(chan struct{})
	go func() {
		q.Shutdown()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Shutdown did not return in time")
	}

	// Second Shutdown call must be a safe no-op.
	q.Shutdown()
}

func TestQueue_ErrorCompletionsStillDispatched(t *testing.T) {
	q := NewQueue(1, discardLogger())
	router := &countingRouter{}
	q.Run(router)

	q.Complete(&Operation{Kind: KindRecv, Err: errors.New("boom")})
	q.Complete(&Operation{Kind: KindRecv})

	deadline := time.After(time.Second)
	for router.recv.Load() < 2 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for recv completions")
		case <-time.After(5 * time.Millisecond):
		}
	}

	q.Shutdown()
}
