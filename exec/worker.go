// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package exec

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/grailbio/base/log"

	ec262 "github.com/ec262/mapreduce"
	"github.com/ec262/mapreduce/discovery"
	"github.com/ec262/mapreduce/internal/envelope"
	"github.com/ec262/mapreduce/wire"
)

// HeartbeatInterval is how often a Worker re-registers with discovery
// (spec.md §4.8 step 1).
const HeartbeatInterval = 30 * time.Second

// Worker accepts task executions over the wire protocol, applies
// shipped, sandboxed map/reduce code, and returns encrypted results
// (spec.md §4.8). One Worker serves one TCP listener; each inbound
// connection gets its own cached function state and Sandbox, since
// the protocol ships mapfn/reducefn once per connection.
type Worker struct {
	Discovery *discovery.Client
	TTL       time.Duration

	cache *compileCache
}

// NewWorker returns a Worker that heartbeats and fetches/consumes
// per-task keys through disco.
func NewWorker(disco *discovery.Client) *Worker {
	return &Worker{Discovery: disco, TTL: discovery.DefaultTTL, cache: &compileCache{}}
}

// ListenAndServe binds addr, starts the heartbeat, and serves
// connections until ctx is canceled.
func (w *Worker) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	defer ln.Close()

	port := ln.Addr().(*net.TCPAddr).Port
	go w.heartbeat(ctx, port)

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		nc, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		go w.serve(ctx, nc)
	}
}

// heartbeat re-registers with discovery every HeartbeatInterval, as
// the lone background thread permitted outside the connection
// handlers (spec.md §5).
func (w *Worker) heartbeat(ctx context.Context, port int) {
	register := func() {
		if _, err := w.Discovery.RegisterWorker(ctx, port, w.TTL); err != nil {
			log.Error.Printf("worker: heartbeat registration failed: %v", err)
		}
	}
	register()

	ticker := time.NewTicker(HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			register()
		}
	}
}

func (w *Worker) serve(ctx context.Context, nc net.Conn) {
	conn := wire.NewConn(nc)
	wc := &workerConn{
		conn:    conn,
		disco:   w.Discovery,
		sandbox: NewSandboxWithCache(w.cache),
	}
	conn.Handle(wire.CmdMapFn, wc.handleMapFn)
	conn.Handle(wire.CmdReduceFn, wc.handleReduceFn)
	conn.Handle(wire.CmdMap, wc.handleMap)
	conn.Handle(wire.CmdReduce, wc.handleReduce)

	if err := conn.Send(wire.CmdReady, nil); err != nil {
		log.Error.Printf("worker: sending ready to %s: %v", nc.RemoteAddr(), err)
		conn.Close()
		return
	}
	if err := conn.Serve(ctx); err != nil {
		log.Debug.Printf("worker: connection from %s ended: %v", nc.RemoteAddr(), err)
	}
}

// workerConn holds the per-connection state the protocol implies:
// shipped source cached from mapfn/reducefn, reused across every
// map/reduce command on that connection.
type workerConn struct {
	conn    *wire.Conn
	disco   *discovery.Client
	sandbox *Sandbox

	mapSource    string
	reduceSource string
}

func (wc *workerConn) handleMapFn(payload []byte) error {
	return wire.Decode(payload, &wc.mapSource)
}

func (wc *workerConn) handleReduceFn(payload []byte) error {
	return wire.Decode(payload, &wc.reduceSource)
}

func (wc *workerConn) handleMap(payload []byte) error {
	var p ChunkPayload
	if err := wire.Decode(payload, &p); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), evalTimeout)
	defer cancel()

	emitted, err := wc.sandbox.RunMapFn(ctx, wc.mapSource, p.Chunk)
	if err != nil {
		return err
	}
	return wc.reply(ctx, p.TaskID, groupPairs(emitted))
}

func (wc *workerConn) handleReduce(payload []byte) error {
	var p ChunkPayload
	if err := wire.Decode(payload, &p); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), evalTimeout)
	defer cancel()

	result := make(map[string]interface{}, len(p.Chunk))
	for _, pair := range p.Chunk {
		values, ok := pair.Value.([]interface{})
		if !ok {
			return fmt.Errorf("worker: reduce chunk value for %q is not a grouped list", pair.Key)
		}
		out, err := wc.sandbox.RunReduceFn(ctx, wc.reduceSource, pair.Key, values)
		if err != nil {
			return err
		}
		result[out.Key] = out.Value
	}
	return wc.reply(ctx, p.TaskID, result)
}

// reply fetches the task's encryption key, canonically encodes and
// encrypts result, and sends taskcomplete with the ciphertext
// alongside a plaintext fingerprint for voting (spec.md §4.6, Open
// Question (i)).
func (wc *workerConn) reply(ctx context.Context, taskID string, result map[string]interface{}) error {
	key, err := wc.disco.FetchKey(ctx, taskID)
	if err != nil {
		return err
	}
	plaintext, err := envelope.Encode(result)
	if err != nil {
		return err
	}
	ciphertext, err := envelope.Encrypt(key, plaintext)
	if err != nil {
		return err
	}
	tc := ec262.ReplicaResult{
		Fingerprint: envelope.Fingerprint(plaintext),
		Ciphertext:  ciphertext,
	}
	return wc.conn.Send(wire.CmdTaskComplete, tc)
}
