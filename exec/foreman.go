// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package exec

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"time"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/limiter"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/status"
	"golang.org/x/sync/errgroup"

	ec262 "github.com/ec262/mapreduce"
	"github.com/ec262/mapreduce/discovery"
	"github.com/ec262/mapreduce/wire"
)

// dialTimeout bounds opening one worker connection. Declared as a var,
// not a const, so tests can shrink it (mirrors the teacher's own
// retryPolicy override in exec/bigmachine_test.go).
var dialTimeout = 10 * time.Second

// stragglerGrace is how long the foreman waits, after launching a
// task's replicas (and between races), before racing a fresh
// connection against a slow replica
// (spec.md §5: "tolerates stragglers by re-attaching workers to
// already-dispatched replicas").
var stragglerGrace = 5 * time.Second

// maxStragglerAttempts bounds how many extra races a single task will
// get, so a systematically broken roster fails instead of retrying
// forever.
var maxStragglerAttempts = 3

// Foreman drives one MapReduceJob over its assigned workers
// (spec.md §4.7): it asks discovery for task assignments, ships
// shipped code and chunks, collects taskcomplete replies, and votes.
type Foreman struct {
	Discovery *discovery.Client
	MapFn     string
	ReduceFn  string

	// Concurrency records the maximum number of simultaneous worker
	// connections the foreman will hold open across all in-flight
	// tasks (spec.md §9's go-routine-per-connection redesign still
	// needs a resource ceiling). NewForeman sets it to 32 and sizes the
	// limiter to match; the limiter is not resized if this field is
	// changed afterwards.
	Concurrency int

	Status *status.Group

	limiter *limiter.Limiter
}

// NewForeman returns a Foreman shipping mapFn/reduceFn source to
// every worker it dispatches to.
func NewForeman(disco *discovery.Client, mapFn, reduceFn string) *Foreman {
	lim := limiter.New()
	lim.Limit(32)
	return &Foreman{
		Discovery:   disco,
		MapFn:       mapFn,
		ReduceFn:    reduceFn,
		Concurrency: 32,
		limiter:     lim,
	}
}

// Run drives mr's map phase, advances to its reduce phase, drives
// that, and returns the final merged result (spec.md §4.5's
// MapReduceJob lifecycle).
func (f *Foreman) Run(ctx context.Context, mr *ec262.MapReduceJob) (map[string]interface{}, error) {
	if err := f.RunJob(ctx, mr.MapJob); err != nil {
		return nil, fmt.Errorf("exec: map phase: %w", err)
	}
	mr.AdvanceToReduce()
	if err := f.RunJob(ctx, mr.ReduceJob); err != nil {
		return nil, fmt.Errorf("exec: reduce phase: %w", err)
	}
	// The synthetic disconnect task has no discovery assignment and no
	// replicas to race: every worker connection this Foreman opens is
	// already closed by the time its single task completes (spec.md
	// §4.7 step 4), so there is nothing left to signal. mr.Finish is
	// still called so the job's terminal bookkeeping runs.
	mr.Finish()
	return mr.Result, nil
}

// RunJob drives every task in job concurrently to completion.
func (f *Foreman) RunJob(ctx context.Context, job *ec262.Job) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, task := range job.Tasks() {
		task := task
		g.Go(func() error { return f.runTask(gctx, task) })
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return job.Wait(ctx)
}

// runTask requests a discovery assignment for task, dispatches one
// connection per assigned worker, races stragglers concurrently with
// those initial dispatches, and surfaces the task's terminal error —
// a no-majority vote (exec.Reconcile, via Task.Err) or a task that
// never reached COMPLETE at all — so the job fails instead of
// finalizing silently with an empty result.
func (f *Foreman) runTask(ctx context.Context, task *ec262.Task) error {
	sv := f.statusValue(task)
	defer sv.Done()

	sv.Print("requesting assignment")
	assignment, err := f.Discovery.RequestTasks(ctx, 1)
	if err != nil {
		return err
	}
	var workers []string
	for id, addrs := range assignment {
		task.DiscoveryID = id
		workers = addrs
	}
	if len(workers) != task.R {
		log.Error.Printf("exec: task %s got %d workers, want %d replicas; proceeding with what discovery gave", task.LocalID, len(workers), task.R)
	}

	merge := Reconcile(ctx, f.Discovery, task.DiscoveryID)

	// Initial replicas are dispatched in the background: watchStragglers
	// starts racing immediately rather than waiting for all of them to
	// return, so a straggler race actually overlaps a still-stalled
	// replica instead of only starting once it has already given up.
	for _, addr := range workers {
		addr := addr
		go func() {
			if err := f.dispatchReplica(ctx, task, addr, merge); err != nil {
				log.Debug.Printf("exec: task %s replica error: %v", task.LocalID, err)
			}
		}()
	}

	if err := f.watchStragglers(ctx, task, workers, merge, sv); err != nil {
		return err
	}
	if err := task.Err(); err != nil {
		return fmt.Errorf("exec: task %s: %w", task.LocalID, err)
	}
	return nil
}

// watchStragglers races a fresh connection to a random member of the
// task's own roster against a slow replica, repeating up to
// maxStragglerAttempts times, until the task completes or ctx ends. It
// returns an error if the task still hasn't reached COMPLETE once
// every attempt (and the discovery assignment itself) is exhausted, so
// a task whose replicas all dial-fail or hang forever fails the job
// instead of leaving RunJob's caller blocked in Job.Wait indefinitely.
func (f *Foreman) watchStragglers(ctx context.Context, task *ec262.Task, workers []string, merge func([]ec262.ReplicaResult) (map[string]interface{}, error), sv *status.Value) error {
	if len(workers) == 0 {
		return fmt.Errorf("exec: task %s: discovery assigned no workers", task.LocalID)
	}
	for attempt := 0; attempt < maxStragglerAttempts; attempt++ {
		if task.State() == ec262.StateComplete {
			return nil
		}
		timer := time.NewTimer(stragglerGrace)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		if task.State() == ec262.StateComplete {
			return nil
		}
		addr := workers[rand.Intn(len(workers))]
		sv.Printf("straggler detected, racing a fresh connection to %s", addr)
		go func() {
			if err := f.dispatchReplica(ctx, task, addr, merge); err != nil {
				log.Debug.Printf("exec: straggler race to %s for task %s: %v", addr, task.LocalID, err)
			}
		}()
	}
	if task.State() != ec262.StateComplete {
		return fmt.Errorf("exec: task %s: exhausted %d straggler attempts without completing", task.LocalID, maxStragglerAttempts)
	}
	return nil
}

// dispatchReplica opens one connection to addr, attaches it to task,
// ships its function and command once the worker signals ready, and
// records whatever result comes back (or nothing, if the connection
// drops — spec.md §5: "discards that replica silently").
func (f *Foreman) dispatchReplica(ctx context.Context, task *ec262.Task, addr string, merge func([]ec262.ReplicaResult) (map[string]interface{}, error)) error {
	if err := f.limiter.Acquire(ctx, 1); err != nil {
		return err
	}
	defer f.limiter.Release(1)

	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	var d net.Dialer
	nc, err := d.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		return errors.E(errors.Net, fmt.Errorf("dial %s: %w", addr, err))
	}

	conn := wire.NewConn(nc)
	task.AssignWorker(conn.ID)

	reported := false
	conn.Handle(wire.CmdReady, func([]byte) error {
		return f.ship(conn, task)
	})
	conn.Handle(wire.CmdTaskComplete, func(payload []byte) error {
		var result ec262.ReplicaResult
		if err := wire.Decode(payload, &result); err != nil {
			return err
		}
		reported = true
		task.Complete(conn.ID, result, merge)
		return conn.Close()
	})

	err = conn.Serve(ctx)
	if reported {
		return nil
	}
	return err
}

// ship sends the task's function source (mapfn/reducefn) followed by
// its command payload, per spec.md §4.7 step 2.
func (f *Foreman) ship(conn *wire.Conn, task *ec262.Task) error {
	switch task.Command {
	case "map":
		if err := conn.Send(wire.CmdMapFn, f.MapFn); err != nil {
			return err
		}
		return conn.Send(wire.CmdMap, ChunkPayload{TaskID: task.DiscoveryID, Chunk: task.Chunk})
	case "reduce":
		if err := conn.Send(wire.CmdReduceFn, f.ReduceFn); err != nil {
			return err
		}
		return conn.Send(wire.CmdReduce, ChunkPayload{TaskID: task.DiscoveryID, Chunk: task.Chunk})
	default:
		return conn.Send(wire.CmdDisconnect, nil)
	}
}

func (f *Foreman) statusValue(task *ec262.Task) *status.Value {
	if f.Status == nil {
		f.Status = &status.Group{}
	}
	sv := f.Status.Startf("task %s", task.LocalID)
	task.Status = sv
	return sv
}
