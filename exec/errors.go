// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package exec

import "fmt"

// NoMajorityError reports that no fingerprint among a task's R
// replica results reached a strict majority (spec.md §4.6, Open
// Question (iii)): the task — and the job it belongs to — fails. Before
// returning it, Reconcile asks discovery to invalidate the task's
// discovery ID, which all R replicas share, for a refund; a failed
// invalidation is logged, not returned.
type NoMajorityError struct {
	TaskID string
	R      int
}

func (e *NoMajorityError) Error() string {
	return fmt.Sprintf("exec: no majority among %d replicas for task %s", e.R, e.TaskID)
}

// SandboxViolationError reports that a worker's sandboxed evaluation
// of shipped code failed — a disallowed operation, a thrown
// exception, or an interrupted (timed out) execution (spec.md §4.2,
// §7). The worker that produced it never sends taskcomplete.
type SandboxViolationError struct {
	Function string // "mapfn" or "reducefn"
	Cause    error
}

func (e *SandboxViolationError) Error() string {
	return fmt.Sprintf("exec: sandbox violation in %s: %v", e.Function, e.Cause)
}

func (e *SandboxViolationError) Unwrap() error { return e.Cause }
