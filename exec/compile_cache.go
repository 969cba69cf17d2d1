// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package exec

import (
	"sync"

	"github.com/dop251/goja"
	"github.com/grailbio/base/sync/once"
)

// compileCache memoizes parsing a shipped function's source into a
// *goja.Program, so a Worker serving many connections for the same
// job compiles mapfn/reducefn exactly once regardless of how many
// replicas or straggler races reattach (spec.md §4.7's generalized
// concurrency model calls for caching shipped-code compilation with
// the teacher's once.Map, the same primitive bigmachine.go uses to
// memoize per-machine invocations).
type compileCache struct {
	once     once.Map
	programs sync.Map // source string -> *goja.Program
}

// Compile returns the cached *goja.Program for source, compiling it
// at most once across every caller that shares this cache.
func (c *compileCache) Compile(source string) (*goja.Program, error) {
	var compileErr error
	err := c.once.Do(source, func() error {
		prog, err := goja.Compile("", "("+source+")", false)
		if err != nil {
			compileErr = err
			return err
		}
		c.programs.Store(source, prog)
		return nil
	})
	if err != nil {
		return nil, compileErr
	}
	prog, ok := c.programs.Load(source)
	if !ok {
		return goja.Compile("", "("+source+")", false)
	}
	return prog.(*goja.Program), nil
}
