// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package ec262

import "context"

// Job is a sequence of Tasks produced by chunking a DataSource.
// Pending reports its task set in two passes: first every WAITING
// task, then, once none are left, every task that is not yet COMPLETE
// (for straggler reattachment). Once every task is COMPLETE, Wait
// stores the merged result of all tasks on Result.
type Job struct {
	tasks []*Task
	merge func([]map[string]interface{}) map[string]interface{}

	Result map[string]interface{}
}

// NewJob builds a Job's full task set eagerly from source, one Task
// per Chunk of rows pairs, each with replication factor r.
func NewJob(source DataSource, command string, r, rows int) *Job {
	chunker := NewChunker(source, rows)
	var tasks []*Task
	for _, chunk := range chunker.All() {
		tasks = append(tasks, NewTask(command, chunk, r))
	}
	return &Job{tasks: tasks, merge: mergeIdentity}
}

// Tasks returns every task the job was constructed with, in chunk
// order. Foreman.RunJob uses this to start every task at once, each
// handling its own straggler reattachment.
func (j *Job) Tasks() []*Task { return j.tasks }

// Pending returns the tasks still needing a worker: every WAITING
// task if any remain (pass one), else every non-COMPLETE task (pass
// two, for stragglers).
func (j *Job) Pending() []*Task {
	var waiting []*Task
	var notComplete []*Task
	for _, t := range j.tasks {
		switch t.State() {
		case StateWaiting:
			waiting = append(waiting, t)
			notComplete = append(notComplete, t)
		case StateRunning:
			notComplete = append(notComplete, t)
		}
	}
	if len(waiting) > 0 {
		return waiting
	}
	return notComplete
}

// Done reports whether every task in the job has reached COMPLETE.
func (j *Job) Done() bool {
	for _, t := range j.tasks {
		if t.State() != StateComplete {
			return false
		}
	}
	return true
}

// Wait blocks until the job is Done or ctx is canceled, re-checking
// each time the first not-yet-COMPLETE task (in chunk order) changes
// state.
func (j *Job) Wait(ctx context.Context) error {
	for !j.Done() {
		// Wait on the first task that is not COMPLETE; once it
		// transitions, re-evaluate Done.
		var waited bool
		for _, t := range j.tasks {
			if t.State() != StateComplete {
				if err := t.Wait(ctx); err != nil {
					return err
				}
				waited = true
				break
			}
		}
		if !waited {
			break
		}
	}
	j.finish()
	return nil
}

func (j *Job) finish() {
	results := make([]map[string]interface{}, len(j.tasks))
	for i, t := range j.tasks {
		results[i] = t.Result()
	}
	j.Result = j.merge(results)
}

func mergeIdentity(results []map[string]interface{}) map[string]interface{} {
	if len(results) == 0 {
		return map[string]interface{}{}
	}
	return results[0]
}

// MergeMap groups values by key across every map task's accepted
// result: the output for a key is the union of all values reported
// for it by the (majority-voted) map replicas, as required by
// spec.md §3's map-output invariant.
func MergeMap(results []map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{})
	for _, data := range results {
		for k, v := range data {
			values, _ := v.([]interface{})
			existing, _ := out[k].([]interface{})
			out[k] = append(existing, values...)
		}
	}
	return out
}

// MergeReduce collects the final (key, value) pairs across every
// reduce task's accepted result.
func MergeReduce(results []map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{})
	for _, data := range results {
		for k, v := range data {
			out[k] = v
		}
	}
	return out
}

// MapReduceJob composes a map Job followed by a reduce Job fed on the
// map phase's grouped output, then emits one synthetic disconnect
// Task once both phases are complete.
type MapReduceJob struct {
	Source DataSource
	R      int
	Rows   int

	MapJob    *Job
	ReduceJob *Job
	Result    map[string]interface{}

	disconnect *Task
}

// NewMapReduceJob constructs the map phase Job immediately; the
// reduce phase Job is built once the map phase finishes, since it is
// fed on the map phase's grouped output.
func NewMapReduceJob(source DataSource, r, rows int) *MapReduceJob {
	mj := NewJob(source, "map", r, rows)
	mj.merge = MergeMap
	return &MapReduceJob{Source: source, R: r, Rows: rows, MapJob: mj}
}

// AdvanceToReduce must be called once MapJob.Done() is true. It builds
// ReduceJob from the map phase's grouped result.
func (mr *MapReduceJob) AdvanceToReduce() *Job {
	grouped := mr.MapJob.Result
	groupedTyped := make(map[string][]interface{}, len(grouped))
	for k, v := range grouped {
		vs, _ := v.([]interface{})
		groupedTyped[k] = vs
	}
	rj := NewJob(NewGroupedDataSource(groupedTyped), "reduce", mr.R, mr.Rows)
	rj.merge = MergeReduce
	mr.ReduceJob = rj
	return rj
}

// Finish must be called once ReduceJob.Done() is true. It stores the
// final result and prepares the synthetic disconnect task.
func (mr *MapReduceJob) Finish() *Task {
	mr.Result = mr.ReduceJob.Result
	mr.disconnect = NewDisconnectTask()
	return mr.disconnect
}
