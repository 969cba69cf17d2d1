// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package wire

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/grailbio/base/errors"
)

// maxPayloadBytes bounds a single frame's declared length. A header
// claiming more than this is treated as a protocol error (spec.md §7:
// "oversize length") rather than an invitation to allocate unbounded
// memory.
const maxPayloadBytes = 256 << 20

// Frame is one parsed protocol message: a command and its optional
// raw payload bytes.
type Frame struct {
	Command string
	Payload []byte // nil for a no-payload frame
}

// WriteFrame writes command (and payload, if non-nil) to w in the
// wire format of spec.md §4.1.
func WriteFrame(w io.Writer, command string, payload []byte) error {
	if strings.ContainsAny(command, ":\n") {
		return fmt.Errorf("wire: command %q must not contain ':' or newline", command)
	}
	if payload == nil {
		_, err := fmt.Fprintf(w, "%s:\n", command)
		return err
	}
	if _, err := fmt.Fprintf(w, "%s:%d\n", command, len(payload)); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// FrameReader implements the AwaitHeader/AwaitPayload parser state
// machine of spec.md §4.1 over a buffered byte stream.
type FrameReader struct {
	br *bufio.Reader
}

// NewFrameReader returns a FrameReader reading frames from r.
func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{br: bufio.NewReader(r)}
}

// ReadFrame reads and parses the next frame. It returns io.EOF (or a
// wrapped variant) when the underlying stream closes between frames.
func (fr *FrameReader) ReadFrame() (Frame, error) {
	header, err := fr.br.ReadString('\n')
	if err != nil {
		return Frame{}, err
	}
	header = strings.TrimSuffix(header, "\n")
	idx := strings.IndexByte(header, ':')
	if idx < 0 {
		return Frame{}, errors.E(errors.Invalid, fmt.Errorf("wire: malformed frame header %q", header))
	}
	command, lengthPart := header[:idx], header[idx+1:]
	if lengthPart == "" {
		return Frame{Command: command}, nil
	}
	n, err := strconv.Atoi(lengthPart)
	if err != nil || n < 0 {
		return Frame{}, errors.E(errors.Invalid, fmt.Errorf("wire: malformed frame length %q", lengthPart))
	}
	if n > maxPayloadBytes {
		return Frame{}, errors.E(errors.Invalid, fmt.Errorf("wire: oversize frame length %d", n))
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(fr.br, payload); err != nil {
		return Frame{}, err
	}
	return Frame{Command: command, Payload: payload}, nil
}
