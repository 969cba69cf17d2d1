// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package exec

import (
	"context"
	"fmt"
	"time"

	"github.com/dop251/goja"

	ec262 "github.com/ec262/mapreduce"
)

// evalTimeout bounds a single mapfn/reducefn invocation. Shipped code
// that runs longer is interrupted and surfaced as a sandbox
// violation, never left to block a worker goroutine forever.
const evalTimeout = 10 * time.Second

// Sandbox evaluates the JS mapfn/reducefn a job ships to its workers
// (spec.md §4.2). It replaces the original implementation's
// marshal/bytecode approach — which has no Go analogue — with an
// embedded, side-effect-free JS runtime: no filesystem, no network, no
// host process visible to the shipped code.
//
// A Sandbox is not safe for concurrent use; a worker constructs one
// per connection.
type Sandbox struct {
	vm    *goja.Runtime
	cache *compileCache // nil: compile source directly, no memoization
}

// NewSandbox returns a Sandbox with the globals a hostile or merely
// buggy mapfn/reducefn could use to escape disabled.
func NewSandbox() *Sandbox {
	return newSandbox(nil)
}

// NewSandboxWithCache is like NewSandbox, but shares a compileCache so
// repeated compilations of the same shipped source across many
// Sandboxes (e.g. one per inbound connection) are memoized.
func NewSandboxWithCache(cache *compileCache) *Sandbox {
	return newSandbox(cache)
}

func newSandbox(cache *compileCache) *Sandbox {
	vm := goja.New()
	vm.Set("eval", goja.Undefined())
	vm.Set("require", goja.Undefined())
	vm.Set("console", goja.Undefined())
	vm.Set("process", goja.Undefined())
	vm.Set("global", goja.Undefined())
	return &Sandbox{vm: vm, cache: cache}
}

// RunMapFn evaluates source as a `function(key, value, emit)` and
// calls it once per pair in chunk, collecting whatever the function
// passes to emit as the resulting chunk.
func (s *Sandbox) RunMapFn(ctx context.Context, source string, chunk ec262.Chunk) (ec262.Chunk, error) {
	fn, err := s.compile("mapfn", source)
	if err != nil {
		return nil, err
	}

	var out ec262.Chunk
	emit := func(call goja.FunctionCall) goja.Value {
		k := call.Argument(0).String()
		v := call.Argument(1).Export()
		out = append(out, ec262.Pair{Key: k, Value: v})
		return goja.Undefined()
	}

	stop := s.armInterrupt(ctx)
	defer stop()

	for _, pair := range chunk {
		if _, err := fn(goja.Undefined(), s.vm.ToValue(pair.Key), s.vm.ToValue(pair.Value), s.vm.ToValue(emit)); err != nil {
			return nil, &SandboxViolationError{Function: "mapfn", Cause: err}
		}
	}
	return out, nil
}

// RunReduceFn evaluates source as a `function(key, values)` returning
// a [newKey, newValue] pair, and calls it once with key and its
// grouped values.
func (s *Sandbox) RunReduceFn(ctx context.Context, source string, key string, values []interface{}) (ec262.Pair, error) {
	fn, err := s.compile("reducefn", source)
	if err != nil {
		return ec262.Pair{}, err
	}

	stop := s.armInterrupt(ctx)
	defer stop()

	result, err := fn(goja.Undefined(), s.vm.ToValue(key), s.vm.ToValue(values))
	if err != nil {
		return ec262.Pair{}, &SandboxViolationError{Function: "reducefn", Cause: err}
	}

	var pair [2]interface{}
	if err := s.vm.ExportTo(result, &pair); err != nil {
		return ec262.Pair{}, &SandboxViolationError{Function: "reducefn", Cause: fmt.Errorf("expected [key, value] pair: %w", err)}
	}
	newKey, ok := pair[0].(string)
	if !ok {
		return ec262.Pair{}, &SandboxViolationError{Function: "reducefn", Cause: fmt.Errorf("reduced key is not a string")}
	}
	return ec262.Pair{Key: newKey, Value: pair[1]}, nil
}

func (s *Sandbox) compile(function, source string) (goja.Callable, error) {
	var val goja.Value
	if s.cache != nil {
		prog, err := s.cache.Compile(source)
		if err != nil {
			return nil, &SandboxViolationError{Function: function, Cause: err}
		}
		val, err = s.vm.RunProgram(prog)
		if err != nil {
			return nil, &SandboxViolationError{Function: function, Cause: err}
		}
	} else {
		v, err := s.vm.RunString("(" + source + ")")
		if err != nil {
			return nil, &SandboxViolationError{Function: function, Cause: err}
		}
		val = v
	}
	fn, ok := goja.AssertFunction(val)
	if !ok {
		return nil, &SandboxViolationError{Function: function, Cause: fmt.Errorf("shipped source is not a function")}
	}
	return fn, nil
}

// armInterrupt stops the runtime's current execution once ctx is
// canceled or evalTimeout elapses, whichever comes first, and returns
// a func to disarm it once the call returns normally.
func (s *Sandbox) armInterrupt(ctx context.Context) (stop func()) {
	done := make(chan struct{})
	timer := time.NewTimer(evalTimeout)
	go func() {
		select {
		case <-ctx.Done():
			s.vm.Interrupt(ctx.Err())
		case <-timer.C:
			s.vm.Interrupt("sandbox: evaluation exceeded its deadline")
		case <-done:
		}
	}()
	return func() {
		timer.Stop()
		close(done)
	}
}
