// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package protocol implements the wire framing used by netcore's stream
// transport: a fixed 12-byte big-endian header followed by the message
// payload.
package protocol

import (
	"encoding/binary"
	"errors"
)

// HeaderSize is the on-wire size of a frame header in bytes.
const HeaderSize = 12

// HeaderMagic identifies a well-formed frame header.
const HeaderMagic uint32 = 0x51515151

// MaxStreamPayload is the largest payload size a single frame may carry.
const MaxStreamPayload = 16 * 1024 * 1024

// MaxDatagramPayload is the largest datagram delivered in one completion.
const MaxDatagramPayload = 8 * 1024

// ErrMalformedFrame is returned when a header's magic or size field is
// invalid. The owning connection must be torn down by the caller.
var ErrMalformedFrame = errors.New("protocol: malformed frame header")

// Header is the fixed-size frame prefix: flag, payload size, and a
// reserved checksum field that is transmitted as zero and never verified
// on receive.
type Header struct {
	Flag     uint32
	Size     uint32
	Reserved uint32
}

// Encode writes h to buf, which must be at least HeaderSize bytes.
func (h Header) Encode(buf []byte) {
	binary.BigEndian.PutUint32(buf[0:4], h.Flag)
	binary.BigEndian.PutUint32(buf[4:8], h.Size)
	binary.BigEndian.PutUint32(buf[8:12], h.Reserved)
}

// NewHeader builds a header for a payload of the given size, with the
// reserved checksum field set to zero as required on send.
func NewHeader(size uint32) Header {
	return Header{Flag: HeaderMagic, Size: size, Reserved: 0}
}

// decodeHeader parses buf (exactly HeaderSize bytes) and validates the
// magic and size fields. It does not validate the reserved checksum,
// which is never verified per the wire format.
func decodeHeader(buf []byte) (Header, error) {
	h := Header{
		Flag:     binary.BigEndian.Uint32(buf[0:4]),
		Size:     binary.BigEndian.Uint32(buf[4:8]),
		Reserved: binary.BigEndian.Uint32(buf[8:12]),
	}
	if h.Flag != HeaderMagic {
		return Header{}, ErrMalformedFrame
	}
	if h.Size == 0 || h.Size > MaxStreamPayload {
		return Header{}, ErrMalformedFrame
	}
	return h, nil
}

// EncodeFrame checks that len(payload) is in [1, MaxStreamPayload] and
// returns the encoded header for it. The payload itself is not copied
// into the result; the caller writes the header followed by payload.
func EncodeFrame(payload []byte) (header [HeaderSize]byte, err error) {
	if len(payload) == 0 || len(payload) > MaxStreamPayload {
		return header, errors.New("protocol: payload size out of range")
	}
	NewHeader(uint32(len(payload))).Encode(header[:])
	return header, nil
}
