// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package ec262

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func identityMerge(results []ReplicaResult) (map[string]interface{}, error) {
	return map[string]interface{}{"n": len(results)}, nil
}

func TestTaskStateTransitionsAreMonotone(t *testing.T) {
	task := NewTask("map", Chunk{{Key: "a", Value: 1}}, 2)
	assert.Equal(t, StateWaiting, task.State())

	task.AssignWorker("w1")
	assert.Equal(t, StateWaiting, task.State(), "running requires all R slots filled")

	task.AssignWorker("w2")
	assert.Equal(t, StateRunning, task.State())

	task.Complete("w1", ReplicaResult{}, identityMerge)
	assert.Equal(t, StateRunning, task.State())
	task.Complete("w2", ReplicaResult{}, identityMerge)
	assert.Equal(t, StateComplete, task.State())
}

func TestTaskAssignWorkerReattachesOnceFull(t *testing.T) {
	task := NewTask("map", nil, 2)
	task.AssignWorker("w1")
	task.AssignWorker("w2")
	require.True(t, task.IsRunning())

	// A third worker reattaches to one of the two existing slots
	// instead of growing past R (spec.md §4.4's straggler handling).
	slot := task.AssignWorker("w3")
	assert.Contains(t, []int{0, 1}, slot)
}

func TestTaskCompleteIgnoresUnknownConnection(t *testing.T) {
	task := NewTask("map", nil, 1)
	task.AssignWorker("w1")
	done := task.Complete("stranger", ReplicaResult{}, identityMerge)
	assert.False(t, done)
	assert.Equal(t, StateRunning, task.State())
}

func TestTaskCompleteIsSetAtMostOnce(t *testing.T) {
	task := NewTask("map", nil, 1)
	task.AssignWorker("w1")

	calls := 0
	merge := func(results []ReplicaResult) (map[string]interface{}, error) {
		calls++
		return map[string]interface{}{"ok": true}, nil
	}

	task.Complete("w1", ReplicaResult{}, merge)
	task.Complete("w1", ReplicaResult{}, merge) // duplicate report, same slot
	assert.Equal(t, 1, calls)
}

func TestTaskWaitUnblocksOnStateChange(t *testing.T) {
	task := NewTask("map", nil, 1)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	go func() {
		time.Sleep(10 * time.Millisecond)
		task.AssignWorker("w1")
		task.Complete("w1", ReplicaResult{}, identityMerge)
	}()

	for task.State() != StateComplete {
		require.NoError(t, task.Wait(ctx))
	}
}

func TestTaskErrFromMergePropagates(t *testing.T) {
	task := NewTask("map", nil, 1)
	task.AssignWorker("w1")
	wantErr := &NoMajorityErrorStub{}
	task.Complete("w1", ReplicaResult{}, func([]ReplicaResult) (map[string]interface{}, error) {
		return nil, wantErr
	})
	assert.Equal(t, StateComplete, task.State())
	assert.Equal(t, wantErr, task.Err())
	assert.Nil(t, task.Result())
}

// NoMajorityErrorStub stands in for exec.NoMajorityError so this
// package's tests don't need to import exec (which imports ec262).
type NoMajorityErrorStub struct{}

func (*NoMajorityErrorStub) Error() string { return "no majority" }
