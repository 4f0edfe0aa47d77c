// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package netcore is the public façade of an asynchronous, handle-based
// networking runtime: it exposes TCP stream and UDP datagram transports
// backed by a completion-based worker pool, delivering events to an
// embedder-supplied Sink.
package netcore

import "github.com/coreio/netcore/internal/handletable"

// Handle identifies a live Stream or Datagram Endpoint. Zero is never a
// valid handle. Stream and datagram handles are drawn from disjoint
// namespaces, so the same numeric value may simultaneously name a live
// stream endpoint and a live datagram endpoint.
type Handle = handletable.Handle

// InvalidHandle is the reserved zero value.
const InvalidHandle = handletable.Invalid

// Error codes delivered to OnStreamError. OnDatagramError currently uses
// 1 (send failed) and 2 (receive failed) — see internal/resource for the
// exact call sites.
const (
	// ErrCodeAcceptRearm: re-submitting an accept on a live listener failed.
	ErrCodeAcceptRearm = 1
	// ErrCodeAcceptRecvRearm: the first recv after a successful accept
	// could not be started.
	ErrCodeAcceptRecvRearm = 2
	// ErrCodeFraming: the stream Framer rejected a malformed header.
	ErrCodeFraming = 3
	// ErrCodeRecvRearm: re-submitting a recv after a successful recv
	// could not be started.
	ErrCodeRecvRearm = 4
)

// Sink receives every event the runtime produces for handles the
// embedder owns. Implementations must not block: callbacks run on
// ioqueue worker goroutines shared by every live endpoint, so a slow
// Sink throttles unrelated connections.
type Sink interface {
	// OnStreamAccepted fires once per accepted connection on a listening
	// handle, before the first OnStreamReceived for acceptHandle.
	OnStreamAccepted(listenHandle, acceptHandle Handle)
	// OnStreamReceived fires once per fully reassembled message.
	OnStreamReceived(handle Handle, payload []byte)
	// OnStreamDisconnected fires at most once per handle, strictly after
	// any OnStreamReceived calls for that handle.
	OnStreamDisconnected(handle Handle)
	// OnStreamError fires on a fatal stream condition; the handle is
	// destroyed immediately afterward and delivers no further events.
	OnStreamError(handle Handle, code int)
	// OnDatagram fires once per datagram received on a bound handle.
	OnDatagram(handle Handle, payload []byte, peerIP string, peerPort int)
	// OnDatagramError fires on a fatal datagram condition.
	OnDatagramError(handle Handle, code int)
}
