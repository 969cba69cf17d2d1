// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package wire implements the foreman/worker byte-framed command
// protocol of spec.md §4.1: each message is either "CMD:\n" (no
// payload) or "CMD:LEN\n" followed by LEN bytes of a gob-encoded
// payload.
package wire

// Recognized commands, per spec.md §4.1's table.
const (
	CmdMapFn        = "mapfn"
	CmdReduceFn     = "reducefn"
	CmdMap          = "map"
	CmdReduce       = "reduce"
	CmdDisconnect   = "disconnect"
	CmdReady        = "ready"
	CmdTaskComplete = "taskcomplete"
)
