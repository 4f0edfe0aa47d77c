// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package resource

import "errors"

// Error codes delivered through OnStreamError / OnDatagramError, kept
// stable across the lifetime of a call site so the numbers always mean
// the same thing.
const (
	// ErrCodeAcceptRearm fires when re-submitting an accept on a live
	// listener fails (the listener's own accept loop could not continue).
	ErrCodeAcceptRearm = 1
	// ErrCodeAcceptRecvRearm fires when the first recv submitted right
	// after a successful accept cannot be started.
	ErrCodeAcceptRecvRearm = 2
	// ErrCodeFraming fires when the stream Framer rejects a malformed
	// header; the connection is torn down immediately.
	ErrCodeFraming = 3
	// ErrCodeRecvRearm fires when re-submitting a recv after a successful
	// recv cannot be started.
	ErrCodeRecvRearm = 4
)

var (
	// ErrInvalidHandle is returned by any operation given a handle the
	// Manager has no endpoint for.
	ErrInvalidHandle = errors.New("resource: invalid handle")
	// ErrHandleSpaceExhausted is returned when a transport's Indexer has
	// reached its live-handle ceiling.
	ErrHandleSpaceExhausted = errors.New("resource: handle space exhausted")
)
