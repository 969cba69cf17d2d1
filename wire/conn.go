// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package wire

import (
	"context"
	"net"
	"sync"

	"github.com/google/uuid"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
)

// Handler processes one received command's raw payload. A handler
// returning an error closes the connection.
type Handler func(payload []byte) error

// Conn is a framed duplex connection to one peer (foreman or worker).
// It owns its own incoming buffer and dispatch table; callers never
// touch the underlying net.Conn directly once wrapped.
type Conn struct {
	ID string

	nc net.Conn
	fr *FrameReader

	writeMu sync.Mutex

	mu       sync.Mutex
	handlers map[string]Handler
	closed   bool
}

// NewConn wraps nc as a framed connection. Register handlers with
// Handle before calling Serve.
func NewConn(nc net.Conn) *Conn {
	return &Conn{
		ID:       uuid.NewString(),
		nc:       nc,
		fr:       NewFrameReader(nc),
		handlers: make(map[string]Handler),
	}
}

// Handle registers the handler invoked when command is received.
// A "disconnect" handler runs before Serve closes the connection;
// without one, disconnect just closes it.
func (c *Conn) Handle(command string, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[command] = h
}

// Send serializes v (gob) and writes it as command's payload. Pass a
// nil v to send a no-payload command.
func (c *Conn) Send(command string, v interface{}) error {
	var payload []byte
	if v != nil {
		var err error
		payload, err = Encode(v)
		if err != nil {
			return err
		}
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return WriteFrame(c.nc, command, payload)
}

// Serve reads and dispatches frames until the connection closes, a
// handler returns an error, an unknown command arrives (spec.md §4.1:
// "log critical, close the connection"), or ctx is done. It always
// closes the connection before returning.
func (c *Conn) Serve(ctx context.Context) error {
	defer c.Close()
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			c.nc.Close()
		case <-done:
		}
	}()
	defer close(done)

	for {
		frame, err := c.fr.ReadFrame()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if frame.Command == CmdDisconnect {
			c.mu.Lock()
			h, ok := c.handlers[CmdDisconnect]
			c.mu.Unlock()
			if !ok {
				return nil
			}
			if err := h(frame.Payload); err != nil {
				return err
			}
			return nil
		}
		c.mu.Lock()
		h, ok := c.handlers[frame.Command]
		c.mu.Unlock()
		if !ok {
			log.Error.Printf("wire: unknown command %q from %s, closing", frame.Command, c.nc.RemoteAddr())
			return errors.E(errors.Invalid, "wire: unknown command "+frame.Command)
		}
		if err := h(frame.Payload); err != nil {
			return err
		}
	}
}

// Close closes the underlying connection. It is idempotent.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	return c.nc.Close()
}
