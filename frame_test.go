// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// Licensed under the Apache License, Version 2.0

package hwwallet

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reassemble(t *testing.T, frames [][]byte) []byte {
	t.Helper()
	r := newFrameReassembler()
	for i, frame := range frames {
		done, err := r.feed(frame)
		require.NoError(t, err)
		if i == len(frames)-1 {
			require.True(t, done, "last frame must complete the message")
		} else {
			require.False(t, done)
		}
	}
	return r.bytes()
}

func TestWrapFramesSingle(t *testing.T) {
	command := []byte{claWallet, insGetAppConfig, 0, 0, 0}
	frames, err := wrapFrames(command)
	require.NoError(t, err)
	require.Len(t, frames, 1)

	frame := frames[0]
	assert.Len(t, frame, frameSize)
	assert.Equal(t, frameChannel, binary.BigEndian.Uint16(frame[0:2]))
	assert.Equal(t, frameTagAPDU, frame[2])
	assert.Equal(t, uint16(0), binary.BigEndian.Uint16(frame[3:5]))
	assert.Equal(t, uint16(len(command)), binary.BigEndian.Uint16(frame[5:7]))
	assert.Equal(t, command, frame[7:7+len(command)])
}

func TestWrapFramesMulti(t *testing.T) {
	// 2 length bytes + 200 command bytes need four 59-byte payload slots.
	command := bytes.Repeat([]byte{0x5a}, 200)
	frames, err := wrapFrames(command)
	require.NoError(t, err)
	require.Len(t, frames, 4)

	for i, frame := range frames {
		assert.Len(t, frame, frameSize)
		assert.Equal(t, uint16(i), binary.BigEndian.Uint16(frame[3:5]))
	}
}

func TestFrameRoundTrip(t *testing.T) {
	for _, size := range []int{1, 57, 58, 100, 500} {
		command := bytes.Repeat([]byte{0xc3}, size)
		frames, err := wrapFrames(command)
		require.NoError(t, err)
		assert.Equal(t, command, reassemble(t, frames), "size %d", size)
	}
}

func TestReassemblerSkipsForeignFrames(t *testing.T) {
	frames, err := wrapFrames([]byte{0x01, 0x02, 0x03})
	require.NoError(t, err)

	r := newFrameReassembler()

	// Noise: too short, then a frame for another channel.
	done, err := r.feed([]byte{0x01})
	require.NoError(t, err)
	assert.False(t, done)

	foreign := make([]byte, frameSize)
	binary.BigEndian.PutUint16(foreign[0:2], 0x0202)
	done, err = r.feed(foreign)
	require.NoError(t, err)
	assert.False(t, done)

	done, err = r.feed(frames[0])
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, []byte{0x01, 0x02, 0x03}, r.bytes())
}

func TestReassemblerRejectsBadTag(t *testing.T) {
	frame := make([]byte, frameSize)
	binary.BigEndian.PutUint16(frame[0:2], frameChannel)
	frame[2] = 0x02 // ping tag, not an APDU

	_, err := newFrameReassembler().feed(frame)
	assert.ErrorIs(t, err, ErrCommunication)
}

func TestReassemblerRejectsSequenceGap(t *testing.T) {
	frames, err := wrapFrames(bytes.Repeat([]byte{0x77}, 300))
	require.NoError(t, err)
	require.Greater(t, len(frames), 2)

	r := newFrameReassembler()
	_, err = r.feed(frames[0])
	require.NoError(t, err)

	// Skipping frame 1 must be detected.
	_, err = r.feed(frames[2])
	assert.ErrorIs(t, err, ErrCommunication)
}

func TestReassemblerTruncatesPadding(t *testing.T) {
	// A response shorter than one frame arrives zero padded; the declared
	// length wins over the padding.
	command := []byte{0xaa, 0xbb}
	frames, err := wrapFrames(command)
	require.NoError(t, err)

	got := reassemble(t, frames)
	assert.Equal(t, command, got)
	assert.Len(t, got, 2)
}
