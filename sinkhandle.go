// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package netcore

import "weak"

// SinkHandle anchors a Sink the Runtime will hold only a weak reference
// to, per the design note that the core must not keep the embedder's
// sink alive on its own. Go's weak package tracks the liveness of a
// pointed-to object, not of an interface value, so the embedder creates
// one SinkHandle and keeps it alive for as long as it wants to keep
// receiving events — once every strong reference to the handle is
// dropped, the runtime silently stops delivering callbacks instead of
// panicking or leaking the sink.
type SinkHandle struct {
	sink Sink
}

// NewSinkHandle wraps sink in a handle suitable for Startup. The caller
// must keep the returned *SinkHandle reachable for as long as it wants
// events delivered.
func NewSinkHandle(sink Sink) *SinkHandle {
	return &SinkHandle{sink: sink}
}

func (h *SinkHandle) weakPointer() weak.Pointer[SinkHandle] {
	return weak.Make(h)
}

// resolveSink returns the handle's sink, or false if h has been collected.
func resolveSink(p weak.Pointer[SinkHandle]) (Sink, bool) {
	h := p.Value()
	if h == nil {
		return nil, false
	}
	return h.sink, true
}
