// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package wire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReadFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, "map", []byte("hello")))

	fr := NewFrameReader(&buf)
	frame, err := fr.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, "map", frame.Command)
	assert.Equal(t, []byte("hello"), frame.Payload)
}

func TestWriteReadFrameNoPayload(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, "ready", nil))

	fr := NewFrameReader(&buf)
	frame, err := fr.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, "ready", frame.Command)
	assert.Nil(t, frame.Payload)
}

func TestWriteFrameRejectsCommandWithColon(t *testing.T) {
	var buf bytes.Buffer
	err := WriteFrame(&buf, "bad:cmd", nil)
	assert.Error(t, err)
}

func TestReadFrameMultipleFramesInSequence(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, "mapfn", []byte("function(){}")))
	require.NoError(t, WriteFrame(&buf, "map", []byte("chunk")))
	require.NoError(t, WriteFrame(&buf, "disconnect", nil))

	fr := NewFrameReader(&buf)
	for _, want := range []Frame{
		{Command: "mapfn", Payload: []byte("function(){}")},
		{Command: "map", Payload: []byte("chunk")},
		{Command: "disconnect"},
	} {
		got, err := fr.ReadFrame()
		require.NoError(t, err)
		assert.Equal(t, want.Command, got.Command)
		assert.Equal(t, want.Payload, got.Payload)
	}
}

func TestReadFrameMalformedHeader(t *testing.T) {
	fr := NewFrameReader(bytes.NewBufferString("nocolonhere\n"))
	_, err := fr.ReadFrame()
	assert.Error(t, err)
}

func TestReadFrameMalformedLength(t *testing.T) {
	fr := NewFrameReader(bytes.NewBufferString("map:notanumber\n"))
	_, err := fr.ReadFrame()
	assert.Error(t, err)
}

func TestReadFrameOversizeLength(t *testing.T) {
	fr := NewFrameReader(bytes.NewBufferString("map:999999999999\n"))
	_, err := fr.ReadFrame()
	assert.Error(t, err)
}
