// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package resource implements the Resource Manager: the handle tables,
// indexers and completion-routing logic that sit between the public
// Runtime façade and the stream/datagram Endpoint types. It is the
// Router the ioqueue.Queue dispatches completions into.
package resource

import "github.com/coreio/netcore/internal/handletable"

// Sink receives events for live handles. It is defined here, not
// imported from the public package, so this package never depends on
// its caller; the public netcore.Sink interface satisfies this one
// structurally because its method set is identical.
type Sink interface {
	OnStreamAccepted(listenHandle, acceptHandle handletable.Handle)
	OnStreamReceived(handle handletable.Handle, payload []byte)
	OnStreamDisconnected(handle handletable.Handle)
	OnStreamError(handle handletable.Handle, code int)
	OnDatagram(handle handletable.Handle, payload []byte, peerIP string, peerPort int)
	OnDatagramError(handle handletable.Handle, code int)
}

// SinkLookup resolves the current sink, returning false once it has been
// collected (the Runtime holds it only weakly) or when none was
// registered. The Manager treats a miss exactly like a successful delivery to
// a no-op sink: the handle is still torn down, nothing panics.
type SinkLookup func() (Sink, bool)
