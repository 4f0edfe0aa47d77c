// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package protocol

// pendingMessage tracks the message currently being reassembled from the
// wire: a destination buffer sized to the header's declared length, and
// how much of it has been filled so far.
type pendingMessage struct {
	total   uint32
	buffer  []byte
	written uint32
}

// Framer is the per-connection receive-side state machine that turns a
// stream of byte chunks into a sequence of complete, length-prefixed
// messages. It alternates between reading a fixed-size header and
// reassembling the body it describes, across however many chunks it
// takes to arrive.
//
// A Framer is not safe for concurrent use; exactly one recv stays
// outstanding per stream at a time, so it never needs to be.
type Framer struct {
	partialHeader []byte
	current       *pendingMessage
	broken        bool
}

// NewFramer returns a Framer ready to process the first chunk of a fresh
// connection.
func NewFramer() *Framer {
	return &Framer{partialHeader: make([]byte, 0, HeaderSize)}
}

// Process feeds chunk through the state machine and returns the messages
// it completed, in wire order. Once it returns ErrMalformedFrame it keeps
// returning it on every subsequent call — the caller is expected to tear
// the connection down, but Process will not silently resume framing a
// connection that has already violated the wire format.
func (f *Framer) Process(chunk []byte) ([][]byte, error) {
	if f.broken {
		return nil, ErrMalformedFrame
	}

	var messages [][]byte
	for len(chunk) > 0 {
		if f.current == nil {
			consumed, done := f.fillHeader(chunk)
			chunk = chunk[consumed:]
			if !done {
				return messages, nil
			}
			hdr, err := decodeHeader(f.partialHeader)
			if err != nil {
				f.broken = true
				return messages, err
			}
			f.current = &pendingMessage{
				total:  hdr.Size,
				buffer: make([]byte, hdr.Size),
			}
			continue
		}

		consumed := f.fillBody(chunk)
		chunk = chunk[consumed:]
		if f.current.written == f.current.total {
			messages = append(messages, f.current.buffer)
			f.current = nil
			f.partialHeader = f.partialHeader[:0]
		}
	}
	return messages, nil
}

// fillHeader appends as much of chunk as needed to complete the header,
// returning how many bytes it consumed and whether the header is now
// complete.
func (f *Framer) fillHeader(chunk []byte) (consumed int, done bool) {
	need := HeaderSize - len(f.partialHeader)
	if need > len(chunk) {
		need = len(chunk)
	}
	f.partialHeader = append(f.partialHeader, chunk[:need]...)
	return need, len(f.partialHeader) == HeaderSize
}

// fillBody copies as much of chunk as fits into the in-progress message,
// returning how many bytes it consumed.
func (f *Framer) fillBody(chunk []byte) int {
	remaining := f.current.total - f.current.written
	n := remaining
	if uint32(len(chunk)) < n {
		n = uint32(len(chunk))
	}
	copy(f.current.buffer[f.current.written:], chunk[:n])
	f.current.written += n
	return int(n)
}

// Pending reports whether the framer is mid-message or mid-header —
// useful for diagnostics and for tests asserting the chunk-splitting
// invariant leaves no residue after a complete stream.
func (f *Framer) Pending() bool {
	return len(f.partialHeader) > 0 || f.current != nil
}
