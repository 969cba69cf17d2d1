// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package ec262

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"github.com/google/uuid"
	"github.com/grailbio/base/status"
	"github.com/grailbio/base/sync/ctxsync"
)

// State is a Task's position in its WAITING -> RUNNING -> COMPLETE
// lifecycle. Transitions are monotone: a Task never moves backwards.
type State int

const (
	StateWaiting State = iota
	StateRunning
	StateComplete
)

func (s State) String() string {
	switch s {
	case StateWaiting:
		return "waiting"
	case StateRunning:
		return "running"
	case StateComplete:
		return "complete"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ReplicaResult is what one replica's worker reported for a task: a
// plaintext fingerprint usable for voting, and the AES-CBC ciphertext
// of its result under the task's discovery-brokered key.
type ReplicaResult struct {
	Fingerprint [32]byte
	Ciphertext  []byte
}

// Task is one unit of work: a command, an input chunk, a replication
// factor R, and the bookkeeping needed to track replicas and their
// results through to a merged, voted-on result. Every Task has
// exactly R intended replicas; a Task's Result is set at most once.
type Task struct {
	// LocalID correlates log lines for this task across goroutines; it
	// is never sent over the wire. DiscoveryID is the task identifier
	// assigned by the discovery service and is what travels with map
	// and reduce commands so workers can fetch/encrypt under the right
	// key.
	LocalID     string
	DiscoveryID string

	Command string // "map", "reduce", or "disconnect"
	Chunk   Chunk
	R       int

	Status *status.Value

	mu         sync.Mutex
	cond       *ctxsync.Cond
	state      State
	replicas   map[int]map[string]bool // replica index -> set of connection ids assigned to it
	workerSlot map[string]int          // connection id -> replica index
	results    map[int]ReplicaResult   // replica index -> reported result
	result     map[string]interface{}  // merged, voted, decrypted result
	err        error
}

// NewTask constructs a WAITING task over chunk with replication
// factor r (r <= 0 defaults to 3, per spec.md's default).
func NewTask(command string, chunk Chunk, r int) *Task {
	if r <= 0 {
		r = 3
	}
	t := &Task{
		LocalID:    uuid.NewString(),
		Command:    command,
		Chunk:      chunk,
		R:          r,
		replicas:   make(map[int]map[string]bool),
		workerSlot: make(map[string]int),
		results:    make(map[int]ReplicaResult),
	}
	t.cond = ctxsync.NewCond(&t.mu)
	return t
}

// NewDisconnectTask builds the synthetic task the MapReduceJob emits
// once both phases are complete. Foreman.Run does not dispatch it:
// every worker connection is already closed by then.
func NewDisconnectTask() *Task {
	return NewTask("disconnect", nil, 0)
}

// State returns the task's current lifecycle state.
func (t *Task) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Err returns the error, if any, that failed this task (set on a
// no-majority vote).
func (t *Task) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Result returns the task's merged, decrypted result once COMPLETE.
func (t *Task) Result() map[string]interface{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.result
}

// Wait blocks until the task's state changes or ctx is done,
// whichever comes first. Callers loop on State() themselves; Wait
// only reports cancellation.
func (t *Task) Wait(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cond.Wait(ctx)
}

// IsRunning reports whether all R replica slots have an assigned
// worker — the point at which the task transitions to RUNNING.
func (t *Task) IsRunning() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.replicas) >= t.R
}

// AssignWorker attaches connID to the task, picking a fresh replica
// slot while any remain unfilled, or reattaching to a random existing
// slot once all R are occupied (the straggler rebalancing described
// in spec.md §4.4: the first worker to report for a slot wins it).
// It returns the replica index connID was assigned to.
func (t *Task) AssignWorker(connID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	var slot int
	if len(t.replicas) < t.R {
		slot = len(t.replicas)
		t.replicas[slot] = map[string]bool{}
	} else {
		slot = rand.Intn(t.R)
	}
	t.replicas[slot][connID] = true
	t.workerSlot[connID] = slot

	if len(t.replicas) >= t.R && t.state == StateWaiting {
		t.setStateLocked(StateRunning)
	}
	return slot
}

// Complete records the result reported by connID. If connID was never
// assigned to the task, or its slot already has a result (another
// connection reattached to that slot reported first), the report is
// dropped silently, matching spec.md §5's "a connection close
// mid-task discards that replica silently" rule applied to late
// arrivals too.
//
// merge is called with exactly R reported results once every slot has
// reported; it must return the voted/merged result or an error (e.g.
// NoMajorityError).
func (t *Task) Complete(connID string, result ReplicaResult, merge func([]ReplicaResult) (map[string]interface{}, error)) (done bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state == StateComplete {
		return true
	}
	slot, ok := t.workerSlot[connID]
	if !ok {
		return false
	}
	if _, already := t.results[slot]; already {
		return false
	}
	t.results[slot] = result
	if len(t.results) < t.R {
		return false
	}

	all := make([]ReplicaResult, 0, t.R)
	for i := 0; i < t.R; i++ {
		all = append(all, t.results[i])
	}
	merged, err := merge(all)
	t.result = merged
	t.err = err
	t.setStateLocked(StateComplete)
	return true
}

func (t *Task) setStateLocked(s State) {
	if t.state == s {
		return
	}
	t.state = s
	t.cond.Broadcast()
}
