// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package handletable implements the opaque-handle allocator and the
// handle-to-endpoint lookup table shared by the stream and datagram
// transports. A Handle is a small, reusable uint32 identifier; zero is
// reserved to mean "invalid".
package handletable

import (
	"errors"
	"sync"
)

// Handle is an opaque identifier for a live Endpoint. Zero is invalid.
type Handle uint32

// Invalid is the reserved zero handle value.
const Invalid Handle = 0

// DefaultCeiling bounds the index space: at least 2^20 live handles are
// supported before allocation starts failing.
const DefaultCeiling = 1 << 20

// ErrIndexExhausted is returned by Allocate when the live-handle ceiling
// has been reached and the free-list has nothing to reuse.
var ErrIndexExhausted = errors.New("handletable: index space exhausted")

// Indexer allocates Handle values with reuse: the smallest released value
// is handed out before the monotonic counter advances. It tracks nothing
// about what a handle refers to; that is the Table's job.
type Indexer struct {
	mu       sync.Mutex
	nextID   uint32
	free     []uint32
	ceiling  uint32
	liveSize uint32
}

// NewIndexer creates an Indexer with the given live-handle ceiling. A
// ceiling of zero falls back to DefaultCeiling.
func NewIndexer(ceiling uint32) *Indexer {
	if ceiling == 0 {
		ceiling = DefaultCeiling
	}
	return &Indexer{
		nextID:  1, // 0 is reserved as Invalid
		ceiling: ceiling,
	}
}

// Allocate returns the smallest reusable handle if the free-list is
// non-empty, otherwise the next monotonic id. It fails once the number
// of live (allocated, not yet released) handles reaches the ceiling.
func (idx *Indexer) Allocate() (Handle, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.liveSize >= idx.ceiling {
		return Invalid, ErrIndexExhausted
	}

	if n := len(idx.free); n > 0 {
		// Smallest-first reuse: free list is kept sorted on Release.
		id := idx.free[0]
		idx.free = idx.free[1:]
		idx.liveSize++
		return Handle(id), nil
	}

	id := idx.nextID
	idx.nextID++
	idx.liveSize++
	return Handle(id), nil
}

// Release returns h to the free-list, making it eligible for reuse by a
// later Allocate call. Every call with a non-zero h decrements the live
// count (down to zero); h is added to the free-list unless it is already
// there. Callers are expected to release each handle at most once (the
// Table enforces this in practice, since a handle can only be removed
// once).
func (idx *Indexer) Release(h Handle) {
	if h == Invalid {
		return
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.liveSize > 0 {
		idx.liveSize--
	}
	insertSorted(&idx.free, uint32(h))
}

// Clear discards both the free-list and the monotonic counter, resetting
// the Indexer to its initial state.
func (idx *Indexer) Clear() {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.nextID = 1
	idx.free = nil
	idx.liveSize = 0
}

// LiveCount returns the number of currently outstanding handles.
func (idx *Indexer) LiveCount() int {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return int(idx.liveSize)
}

// insertSorted inserts v into the sorted slice pointed to by s,
// preserving order so Allocate always hands back the smallest id first.
func insertSorted(s *[]uint32, v uint32) {
	slice := *s
	i := 0
	for ; i < len(slice); i++ {
		if slice[i] > v {
			break
		}
		if slice[i] == v {
			return // already free; ignore double release
		}
	}
	slice = append(slice, 0)
	copy(slice[i+1:], slice[i:])
	slice[i] = v
	*s = slice
}
