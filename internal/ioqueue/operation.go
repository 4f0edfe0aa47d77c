// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package ioqueue implements the completion-based worker pool that
// multiplexes asynchronous I/O results across the netcore runtime. It
// plays the role of a kernel completion port in user space: any
// goroutine that performs a blocking socket call posts its result as
// an Operation onto the Queue's completion channel, and a fixed pool of
// worker goroutines drains that channel and routes each Operation to the
// Resource Manager by kind.
package ioqueue

import (
	"net"

	"github.com/coreio/netcore/internal/handletable"
)

// Kind discriminates the payload carried by an Operation.
type Kind int

const (
	// KindAccept carries the result of submitting a new connection.
	KindAccept Kind = iota
	// KindSend carries the result of a stream send.
	KindSend
	// KindRecv carries the result of a stream receive.
	KindRecv
	// KindSendTo carries the result of a datagram send.
	KindSendTo
	// KindRecvFrom carries the result of a datagram receive.
	KindRecvFrom
	// kindShutdown is the sentinel posted to retire a worker. It is never
	// exposed to a Router.
	kindShutdown
)

func (k Kind) String() string {
	switch k {
	case KindAccept:
		return "accept"
	case KindSend:
		return "send"
	case KindRecv:
		return "recv"
	case KindSendTo:
		return "send_to"
	case KindRecvFrom:
		return "recv_from"
	case kindShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// Operation is the pending-I/O buffer that crosses the completion
// channel. Submission hands ownership to the goroutine performing the
// blocking call; completion hands it back to whichever worker drains it,
// which either reuses the allocation (re-arming the same operation) or
// lets it be collected.
//
// Only the fields relevant to Kind are populated; this is a
// discriminated record without the cost of five separate struct types
// flowing through one channel.
type Operation struct {
	Kind   Kind
	Handle handletable.Handle // owning handle

	// Transfer result.
	N   int
	Err error

	// Accept: the freshly accepted connection, or nil on Err.
	Conn net.Conn

	// Send / SendTo.
	Payload []byte

	// RecvFrom payload (datagram only).
	Buffer []byte

	// Recv: messages the Framer fully reassembled from this read, in
	// wire order. May be empty even on a successful read (a chunk that
	// only completed a header, or only advanced a partial body).
	Messages [][]byte

	// Recv: true when this completion is the first recv submitted right
	// after accept, false when it's a re-arm following a prior recv —
	// distinguishes ErrCodeAcceptRecvRearm from ErrCodeRecvRearm.
	FirstAfterAccept bool

	// RecvFrom peer address (datagram only).
	PeerIP   string
	PeerPort int
}

// Tolerated reports whether Err belongs to the set of transient I/O
// errors that are logged at debug level and otherwise ignored, rather
// than surfaced to the sink.
func (op *Operation) Tolerated() bool {
	return IsTolerated(op.Err)
}
