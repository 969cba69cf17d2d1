// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package discovery

import "fmt"

// ServerError reports a discovery-service response outside the
// documented status codes (spec.md §7's "Discovery" taxonomy).
type ServerError struct {
	Status int
	Body   string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("discovery: server error (status %d): %s", e.Status, e.Body)
}

// UnknownTaskError is returned for a 404 on any /tasks/<id> endpoint.
type UnknownTaskError struct {
	TaskID string
}

func (e *UnknownTaskError) Error() string {
	return fmt.Sprintf("discovery: unknown task %q", e.TaskID)
}

// InsufficientCreditsError is returned for a 406 on POST /tasks.
type InsufficientCreditsError struct {
	Available int
	Needed    int
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("discovery: insufficient credits: available %d, needed %d", e.Available, e.Needed)
}
