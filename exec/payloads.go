// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package exec

import ec262 "github.com/ec262/mapreduce"

// ChunkPayload is the gob-encoded body of a `map` or `reduce` command
// (spec.md §4.1): the chunk to apply the cached function to, plus the
// discovery task-id the worker needs to fetch its encryption key
// (spec.md §4.7 step 2: "the task-id embedded so the worker can
// encrypt its reply").
//
// For a `reduce` command, each Pair's Value is itself a []interface{}
// of the grouped values for that key — exactly what groupPairs
// produces from the prior map phase, so no separate payload shape is
// needed for the two commands.
type ChunkPayload struct {
	TaskID string
	Chunk  ec262.Chunk
}

// groupPairs collects a map phase's emitted (k, v) pairs into k → [v,
// …], ready either to feed a reduce chunk or to serve as a task's
// merged map result (ec262.MergeMap expects the same shape). Each
// key's values keep their emission order; the returned map itself has
// no key order.
func groupPairs(pairs ec262.Chunk) map[string]interface{} {
	order := make([]string, 0, len(pairs))
	grouped := make(map[string][]interface{}, len(pairs))
	for _, p := range pairs {
		if _, ok := grouped[p.Key]; !ok {
			order = append(order, p.Key)
		}
		grouped[p.Key] = append(grouped[p.Key], p.Value)
	}
	out := make(map[string]interface{}, len(grouped))
	for _, k := range order {
		out[k] = grouped[k]
	}
	return out
}
