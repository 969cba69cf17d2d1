// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package ec262 implements a distributed map-reduce coordinator that
// tolerates untrusted workers by replicating every task across
// several of them and accepting a majority answer.
package ec262

import "encoding/gob"

func init() {
	// Register the concrete types that flow through Pair.Value and
	// Chunk entries so they survive a gob round trip across the wire.
	gob.Register(int(0))
	gob.Register(int64(0))
	gob.Register(float64(0))
	gob.Register("")
	gob.Register(false)
	gob.Register([]interface{}{})
	gob.Register(map[string]interface{}{})
}

// Pair is a single (key, value) entry as it flows through the system.
// Value holds a plain Go value (string, number, bool, slice or map of
// the same) so that it can cross both the gob wire encoding and the
// sandboxed JavaScript boundary unchanged.
type Pair struct {
	Key   string
	Value interface{}
}

// Chunk is an ordered sequence of pairs carved from a DataSource. The
// same type serves map input (Key, Value) and reduce input
// (Key, []interface{}) — the command a Task carries determines how a
// worker interprets Value.
type Chunk []Pair
