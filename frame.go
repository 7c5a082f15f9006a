// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// Forked from github.com/zondax/ledger-go
// Licensed under the Apache License, Version 2.0

package hwwallet

import (
	"encoding/binary"
	"fmt"
)

const (
	// frameSize is the fixed length of one link frame on the HID channel.
	frameSize = 64

	// frameChannel multiplexes commands over one physical link. 0x0101 avoids
	// implementations that strip a leading zero byte.
	frameChannel uint16 = 0x0101

	// frameTagAPDU marks a frame as carrying command payload bytes.
	frameTagAPDU byte = 0x05

	// frameHeaderSize covers channel(2) + tag(1) + sequence(2).
	frameHeaderSize = 5
)

// wrapFrames splits a command frame into fixed-size link frames:
// [channel:2][tag:1][seq:2][payload]. The payload stream is prefixed with the
// big-endian total length, so the first frame carries it in its first two
// payload bytes. Sequence numbers start at zero and increment per frame.
func wrapFrames(command []byte) ([][]byte, error) {
	if len(command) > 0xffff {
		return nil, fmt.Errorf("%w: command of %d bytes exceeds link capacity", ErrCommunication, len(command))
	}
	stream := make([]byte, 2, 2+len(command))
	binary.BigEndian.PutUint16(stream, uint16(len(command)))
	stream = append(stream, command...)

	var frames [][]byte
	for seq := uint16(0); len(stream) > 0; seq++ {
		frame := make([]byte, frameSize)
		binary.BigEndian.PutUint16(frame[0:2], frameChannel)
		frame[2] = frameTagAPDU
		binary.BigEndian.PutUint16(frame[3:5], seq)

		n := copy(frame[frameHeaderSize:], stream)
		stream = stream[n:]
		frames = append(frames, frame)
	}
	return frames, nil
}

// frameReassembler accumulates link frames until the total length declared by
// the first frame has arrived.
type frameReassembler struct {
	need    int // total response bytes declared, -1 before the first frame
	nextSeq uint16
	buf     []byte
}

func newFrameReassembler() *frameReassembler {
	return &frameReassembler{need: -1}
}

// feed consumes one link frame. Frames shorter than a header or addressed to
// a foreign channel are skipped; a wrong tag or a sequence gap is a hard
// protocol error. Returns true once the full response has been accumulated.
func (r *frameReassembler) feed(frame []byte) (bool, error) {
	if len(frame) < frameHeaderSize {
		return false, nil
	}
	if binary.BigEndian.Uint16(frame[0:2]) != frameChannel {
		return false, nil
	}
	if frame[2] != frameTagAPDU {
		return false, fmt.Errorf("%w: invalid reply tag 0x%02x", ErrCommunication, frame[2])
	}
	seq := binary.BigEndian.Uint16(frame[3:5])
	if seq != r.nextSeq {
		return false, fmt.Errorf("%w: link frame %d arrived, expected %d", ErrCommunication, seq, r.nextSeq)
	}
	r.nextSeq++

	payload := frame[frameHeaderSize:]
	if r.need < 0 {
		if len(payload) < 2 {
			return false, fmt.Errorf("%w: first link frame lacks a length field", ErrCommunication)
		}
		r.need = int(binary.BigEndian.Uint16(payload[0:2]))
		r.buf = make([]byte, 0, r.need)
		payload = payload[2:]
	}
	if missing := r.need - len(r.buf); len(payload) > missing {
		payload = payload[:missing]
	}
	r.buf = append(r.buf, payload...)
	return len(r.buf) == r.need, nil
}

// bytes returns the reassembled response.
func (r *frameReassembler) bytes() []byte {
	return r.buf
}
